// package graph implements the per-frame render graph: pass registration with
// declared resource accesses, dependency resolution into a deterministic
// execution order, transient lifetime computation, and compilation into an
// immutable ExecutionPlan the executor replays against the device.
package graph

import "fmt"

// Lifetime tags who owns a resource and for how long.
type Lifetime uint8

const (
	// LifetimePersistent marks a resource owned by the scene or caller whose
	// lifetime spans frames. The graph binds it but never allocates it.
	LifetimePersistent Lifetime = iota
	// LifetimeTransient marks a resource owned by the graph, valid only
	// between the pass that first writes it and the last pass that reads it
	// within one frame.
	LifetimeTransient
)

// String returns the lifetime name for diagnostics.
func (l Lifetime) String() string {
	switch l {
	case LifetimePersistent:
		return "persistent"
	case LifetimeTransient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", uint8(l))
	}
}

// AccessMode declares how a pass touches a resource.
type AccessMode uint8

const (
	// AccessRead is shared read-only access.
	AccessRead AccessMode = iota
	// AccessWrite is exclusive write access.
	AccessWrite
	// AccessReadWrite is exclusive read-modify-write access.
	AccessReadWrite
)

// String returns the access mode name for diagnostics.
func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("access(%d)", uint8(m))
	}
}

// reads reports whether the mode includes reading.
func (m AccessMode) reads() bool { return m == AccessRead || m == AccessReadWrite }

// writes reports whether the mode includes writing.
func (m AccessMode) writes() bool { return m == AccessWrite || m == AccessReadWrite }

// ResourceSignature identifies the physical shape of a transient resource.
// Two declarations of the same name must agree on the signature; transient
// resources only alias pooled slots with matching Format and Usage.
type ResourceSignature struct {
	// Size is the required capacity in bytes.
	Size uint64
	// Format is an opaque format tag interpreted by the device layer.
	Format uint32
	// Usage is an opaque usage-flag tag interpreted by the device layer.
	Usage uint32
}

// ResourceHandle is an opaque identifier for a buffer or image registered
// with a GraphBuilder. The zero value is invalid. Handles are only meaningful
// to the builder that issued them, for the frame they were issued in.
type ResourceHandle struct {
	index    uint32
	lifetime Lifetime
}

// Valid reports whether the handle was issued by a builder.
func (h ResourceHandle) Valid() bool { return h.index != 0 }

// Transient reports whether the handle refers to a graph-owned transient
// resource.
func (h ResourceHandle) Transient() bool { return h.lifetime == LifetimeTransient }

// ResourceAccess pairs a handle with the access mode a pass declared for it.
type ResourceAccess struct {
	Handle ResourceHandle
	Mode   AccessMode
}

// LifetimeInterval is the inclusive [FirstWrite, LastRead] pass-position range
// of a transient resource, computed after topological ordering.
type LifetimeInterval struct {
	FirstWrite int
	LastRead   int
}

// resourceRecord is the builder's bookkeeping for one declared resource.
type resourceRecord struct {
	name      string
	lifetime  Lifetime
	signature ResourceSignature
	external  any
}
