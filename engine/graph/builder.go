package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
	"github.com/google/uuid"
)

// GraphBuilder records the passes and resource declarations of one frame and
// compiles them into an ExecutionPlan. One builder serves one frame and is
// not safe for concurrent use; each frame constructs its own.
//
// Render routines compose by each adding their passes to the same builder;
// registration order is free, ordering is derived purely from the declared
// accesses (declaration order only breaks same-resource write ties).
type GraphBuilder interface {
	// DeclareTransient declares (or re-references) a graph-owned transient
	// resource. Declaring the same name again with an identical signature
	// returns the original handle; a differing signature is a fatal build
	// error surfaced by Compile.
	//
	// Parameters:
	//   - name: the resource's unique name within this frame
	//   - sig: the resource's physical signature
	//
	// Returns:
	//   - ResourceHandle: the handle to declare accesses against
	DeclareTransient(name string, sig ResourceSignature) ResourceHandle

	// ImportPersistent registers a caller-owned resource for this frame so
	// passes can declare accesses to it. The external object is handed back
	// untouched through PassContext bindings.
	//
	// Parameters:
	//   - name: the resource's unique name within this frame
	//   - external: the caller's device object (e.g. a *wgpu.Buffer)
	//
	// Returns:
	//   - ResourceHandle: the handle to declare accesses against
	ImportPersistent(name string, external any) ResourceHandle

	// AddPass registers a pass. The pass's declaration index is its
	// registration position; it is used only to break same-resource write
	// ties deterministically.
	//
	// Parameters:
	//   - p: the pass to register
	AddPass(p Pass)

	// PassCount returns the number of registered passes.
	PassCount() int

	// Compile resolves dependencies, orders the passes, computes transient
	// lifetimes, assigns pooled slots, and inserts minimal synchronization.
	// On any BuildError no plan is produced and the frame should be skipped.
	//
	// Parameters:
	//   - pool: the frame's transient resource pool epoch
	//
	// Returns:
	//   - *ExecutionPlan: the immutable plan, nil on error
	//   - error: a *BuildError on fatal graph defects
	Compile(pool transient_pool.Pool) (*ExecutionPlan, error)
}

// builder is the implementation of the GraphBuilder interface.
type builder struct {
	resources []resourceRecord
	byName    map[string]uint32 // name -> 1-based resource index

	passes []Pass

	// conflict holds the first conflicting-declaration error; Compile
	// surfaces it instead of a plan.
	conflict *BuildError
}

var _ GraphBuilder = &builder{}

// GraphBuilderOption is a functional option for configuring a GraphBuilder.
type GraphBuilderOption func(*builder)

// WithExpectedPasses pre-sizes the builder for the given pass count, avoiding
// re-allocation in frames with many routines.
//
// Parameters:
//   - n: the expected number of passes
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithExpectedPasses(n int) GraphBuilderOption {
	return func(b *builder) {
		if n > 0 {
			b.passes = make([]Pass, 0, n)
			b.resources = make([]resourceRecord, 0, n*2)
		}
	}
}

// NewGraphBuilder creates an empty per-frame GraphBuilder.
//
// Parameters:
//   - options: functional options to configure the builder
//
// Returns:
//   - GraphBuilder: the newly created builder
func NewGraphBuilder(options ...GraphBuilderOption) GraphBuilder {
	b := &builder{
		byName: make(map[string]uint32),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func (b *builder) DeclareTransient(name string, sig ResourceSignature) ResourceHandle {
	if idx, ok := b.byName[name]; ok {
		rec := &b.resources[idx-1]
		if rec.lifetime != LifetimeTransient || rec.signature != sig {
			b.recordConflict(name)
		}
		return ResourceHandle{index: idx, lifetime: rec.lifetime}
	}

	b.resources = append(b.resources, resourceRecord{
		name:      name,
		lifetime:  LifetimeTransient,
		signature: sig,
	})
	idx := uint32(len(b.resources))
	b.byName[name] = idx
	return ResourceHandle{index: idx, lifetime: LifetimeTransient}
}

func (b *builder) ImportPersistent(name string, external any) ResourceHandle {
	if idx, ok := b.byName[name]; ok {
		rec := &b.resources[idx-1]
		if rec.lifetime != LifetimePersistent {
			b.recordConflict(name)
		}
		return ResourceHandle{index: idx, lifetime: rec.lifetime}
	}

	b.resources = append(b.resources, resourceRecord{
		name:     name,
		lifetime: LifetimePersistent,
		external: external,
	})
	idx := uint32(len(b.resources))
	b.byName[name] = idx
	return ResourceHandle{index: idx, lifetime: LifetimePersistent}
}

func (b *builder) recordConflict(name string) {
	if b.conflict == nil {
		b.conflict = &BuildError{Kind: BuildErrorConflict, Resource: name}
	}
}

func (b *builder) AddPass(p Pass) {
	b.passes = append(b.passes, p)
}

func (b *builder) PassCount() int {
	return len(b.passes)
}

func (b *builder) Compile(pool transient_pool.Pool) (*ExecutionPlan, error) {
	if b.conflict != nil {
		return nil, b.conflict
	}

	var warnings []string
	for _, p := range b.passes {
		if len(p.Accesses()) == 0 {
			warnings = append(warnings, fmt.Sprintf("pass %q declares no resources (dead code?)", p.Name()))
		}
	}

	sched, err := newSchedule(b)
	if err != nil {
		return nil, err
	}

	assignments, err := sched.assignSlots(pool)
	if err != nil {
		return nil, err
	}

	entries := make([]PlanEntry, len(sched.order))
	barriers := 0
	for pos, declIdx := range sched.order {
		p := b.passes[declIdx]
		bindings := make(Bindings, len(p.Accesses()))
		for _, acc := range p.Accesses() {
			rec := &b.resources[acc.Handle.index-1]
			phys := Physical{Name: rec.name}
			if acc.Handle.Transient() {
				phys.Slot = assignments[acc.Handle.index]
			} else {
				phys.External = rec.external
			}
			bindings[acc.Handle] = phys
		}
		waits := sched.waits[pos]
		barriers += len(waits)
		entries[pos] = PlanEntry{
			Pass:     p,
			Position: pos,
			Waits:    waits,
			Bindings: bindings,
		}
	}

	return &ExecutionPlan{
		id:        uuid.New(),
		entries:   entries,
		lifetimes: sched.lifetimes,
		warnings:  warnings,
		stats: Stats{
			Passes:             len(entries),
			Barriers:           barriers,
			TransientResources: len(sched.lifetimes),
			PoolStats:          pool.Stats(),
		},
	}, nil
}
