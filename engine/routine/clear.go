package routine

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
)

// ClearRoutine clears the frame's target attachments. Any routine that later
// declares the target resources is ordered after it.
type ClearRoutine interface {
	Routine
}

// clearRoutine is the implementation of the ClearRoutine interface.
type clearRoutine struct{}

var _ ClearRoutine = &clearRoutine{}

// NewClearRoutine creates a ClearRoutine.
//
// Returns:
//   - ClearRoutine: the newly created routine
func NewClearRoutine() ClearRoutine {
	return &clearRoutine{}
}

func (r *clearRoutine) AddToGraph(b graph.GraphBuilder, args *Args) error {
	target := args.Target

	handles := []graph.ResourceHandle{b.ImportPersistent(TargetColorResource, target.Color)}
	if target.Depth != nil {
		handles = append(handles, b.ImportPersistent(TargetDepthResource, target.Depth))
	}

	b.AddPass(graph.NewPass("clear",
		graph.WithWrites(handles...),
		graph.WithExecute(func(ctx *graph.PassContext) error {
			if err := ctx.Recorder.BeginRender(device.RenderTargets{
				Color:      target.Color,
				Depth:      target.Depth,
				ClearColor: target.ClearColor,
			}); err != nil {
				return err
			}
			ctx.Recorder.EndRender()
			return nil
		}),
	))
	return nil
}
