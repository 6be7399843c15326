package routine

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
)

// BaseRoutine strings the standard frame together: a clear, the scene draw,
// and an optional tonemap stage over the finished color target. It exists so
// callers register one routine per frame instead of wiring the set by hand.
type BaseRoutine interface {
	Routine
}

// baseRoutine is the implementation of the BaseRoutine interface.
type baseRoutine struct {
	clear   Routine
	draw    Routine
	prepass graph.ExecuteFunc
	tonemap graph.ExecuteFunc
}

var _ BaseRoutine = &baseRoutine{}

// BaseRoutineOption is a functional option for configuring a BaseRoutine.
type BaseRoutineOption func(*baseRoutine)

// WithDepthPrepass registers a depth-only pass over the depth target before
// the scene draw. The body records the prepass against the frame's depth
// attachment.
//
// Parameters:
//   - fn: the prepass body
//
// Returns:
//   - BaseRoutineOption: option function to apply
func WithDepthPrepass(fn graph.ExecuteFunc) BaseRoutineOption {
	return func(r *baseRoutine) {
		r.prepass = fn
	}
}

// WithTonemap registers a tonemap pass over the color target after the scene
// draw. The body receives the frame's pass context and records whatever
// post-processing it wants.
//
// Parameters:
//   - fn: the tonemap pass body
//
// Returns:
//   - BaseRoutineOption: option function to apply
func WithTonemap(fn graph.ExecuteFunc) BaseRoutineOption {
	return func(r *baseRoutine) {
		r.tonemap = fn
	}
}

// NewBaseRoutine creates a BaseRoutine around the given scene draw routine.
//
// Parameters:
//   - draw: the routine that draws the scene, e.g. a ForwardRoutine
//   - options: functional options to configure the routine
//
// Returns:
//   - BaseRoutine: the newly created routine
func NewBaseRoutine(draw Routine, options ...BaseRoutineOption) BaseRoutine {
	r := &baseRoutine{
		clear: NewClearRoutine(),
		draw:  draw,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *baseRoutine) AddToGraph(b graph.GraphBuilder, args *Args) error {
	if err := r.clear.AddToGraph(b, args); err != nil {
		return err
	}
	if r.prepass != nil && args.Target.Depth != nil {
		depthH := b.ImportPersistent(TargetDepthResource, args.Target.Depth)
		b.AddPass(graph.NewPass("depth-prepass",
			graph.WithReadWrites(depthH),
			graph.WithExecute(r.prepass),
		))
	}
	if err := r.draw.AddToGraph(b, args); err != nil {
		return err
	}
	if r.tonemap != nil {
		colorH := b.ImportPersistent(TargetColorResource, args.Target.Color)
		b.AddPass(graph.NewPass("tonemap",
			graph.WithReadWrites(colorH),
			graph.WithExecute(r.tonemap),
		))
	}
	return nil
}
