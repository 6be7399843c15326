package graph

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
	"github.com/google/uuid"
)

// Physical is a resolved binding for one resource handle.
type Physical struct {
	// Name is the resource's declared name, for diagnostics.
	Name string
	// Slot is the pooled slot backing a transient resource; nil for
	// persistent resources.
	Slot *transient_pool.Slot
	// External is the caller-supplied object backing a persistent resource;
	// nil for transients.
	External any
}

// Bindings maps each handle a pass declared to its physical resource.
type Bindings map[ResourceHandle]Physical

// PlanEntry is one scheduled pass with its resolved bindings and the minimal
// set of predecessor entries it must wait for.
type PlanEntry struct {
	// Pass is the scheduled pass.
	Pass Pass
	// Position is the entry's index in the execution order.
	Position int
	// Waits lists the Positions of predecessor entries whose completion this
	// entry requires. Transitively implied predecessors are omitted.
	Waits []int
	// Bindings resolves the pass's declared handles.
	Bindings Bindings
}

// Stats summarizes a compiled plan for diagnostics.
type Stats struct {
	// Passes is the number of scheduled passes.
	Passes int
	// Barriers is the number of synchronization edges the plan retains after
	// minimization.
	Barriers int
	// TransientResources is the number of transient resources assigned slots.
	TransientResources int
	// PoolStats is the transient pool's occupancy after assignment.
	PoolStats transient_pool.Stats
}

// ExecutionPlan is the immutable output of graph compilation: a linear pass
// order with resolved physical bindings and wait lists. Replaying the same
// plan yields identical resource assignments. Entries and maps returned by
// accessors are shared, not copied; treat them as read-only.
type ExecutionPlan struct {
	id        uuid.UUID
	entries   []PlanEntry
	lifetimes map[ResourceHandle]LifetimeInterval
	warnings  []string
	stats     Stats
}

// ID returns the plan's unique identifier, used to correlate diagnostics
// across the frame.
func (p *ExecutionPlan) ID() uuid.UUID { return p.id }

// Entries returns the scheduled entries in execution order.
func (p *ExecutionPlan) Entries() []PlanEntry { return p.entries }

// Len returns the number of scheduled passes.
func (p *ExecutionPlan) Len() int { return len(p.entries) }

// Lifetimes returns the computed [first-write, last-read] interval for each
// transient resource.
func (p *ExecutionPlan) Lifetimes() map[ResourceHandle]LifetimeInterval { return p.lifetimes }

// Warnings returns non-fatal diagnostics raised during compilation, such as
// passes declaring no resources.
func (p *ExecutionPlan) Warnings() []string { return p.warnings }

// Stats returns the plan's summary counters.
func (p *ExecutionPlan) Stats() Stats { return p.stats }
