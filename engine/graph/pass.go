package graph

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/device"
)

// PassContext is handed to a pass's execute callback by the executor. It
// carries the pass's private command recorder and the physical resources
// resolved for every handle the pass declared. Accessing a resource the pass
// did not declare is a contract violation the graph cannot detect at runtime;
// the scheduler's guarantees only cover declared accesses.
type PassContext struct {
	// Recorder is the pass's private command recorder.
	Recorder device.Recorder
	// Bindings resolves each declared handle to its physical resource.
	Bindings Bindings
	// FrameIndex is the monotonically increasing index of the frame being
	// executed.
	FrameIndex uint64
}

// ExecuteFunc is the opaque record/execute callback carried by a pass. The
// graph core sequences and synchronizes these; it never interprets them.
type ExecuteFunc func(ctx *PassContext) error

// Pass is one named unit of GPU/CPU work with declared resource accesses.
// A pass must declare every resource it touches.
type Pass interface {
	// Name returns the pass's debug name.
	Name() string

	// Accesses returns the declared resource accesses.
	//
	// Returns:
	//   - []ResourceAccess: the declared (handle, mode) pairs
	Accesses() []ResourceAccess

	// ComputeOnly reports whether the pass was hinted compute-only, enabling
	// async overlap with unrelated graphics work.
	ComputeOnly() bool

	// Execute invokes the pass's record/execute callback.
	//
	// Parameters:
	//   - ctx: the executor-provided context with recorder and bindings
	//
	// Returns:
	//   - error: an error from the callback, propagated by the executor
	Execute(ctx *PassContext) error
}

// pass is the implementation of the Pass interface.
type pass struct {
	name        string
	accesses    []ResourceAccess
	computeOnly bool
	execute     ExecuteFunc
}

var _ Pass = &pass{}

// PassOption is a functional option for configuring a Pass.
type PassOption func(*pass)

// WithReads declares shared read-only access to the given resources.
//
// Parameters:
//   - handles: the resources the pass reads
//
// Returns:
//   - PassOption: option function to apply
func WithReads(handles ...ResourceHandle) PassOption {
	return func(p *pass) {
		for _, h := range handles {
			p.accesses = append(p.accesses, ResourceAccess{Handle: h, Mode: AccessRead})
		}
	}
}

// WithWrites declares exclusive write access to the given resources.
//
// Parameters:
//   - handles: the resources the pass writes
//
// Returns:
//   - PassOption: option function to apply
func WithWrites(handles ...ResourceHandle) PassOption {
	return func(p *pass) {
		for _, h := range handles {
			p.accesses = append(p.accesses, ResourceAccess{Handle: h, Mode: AccessWrite})
		}
	}
}

// WithReadWrites declares exclusive read-modify-write access to the given
// resources.
//
// Parameters:
//   - handles: the resources the pass reads and writes
//
// Returns:
//   - PassOption: option function to apply
func WithReadWrites(handles ...ResourceHandle) PassOption {
	return func(p *pass) {
		for _, h := range handles {
			p.accesses = append(p.accesses, ResourceAccess{Handle: h, Mode: AccessReadWrite})
		}
	}
}

// WithComputeOnly hints that the pass issues only compute work, allowing the
// executor to submit it on a separate queue synchronized only with its
// dependents.
//
// Returns:
//   - PassOption: option function to apply
func WithComputeOnly() PassOption {
	return func(p *pass) {
		p.computeOnly = true
	}
}

// WithExecute sets the pass's record/execute callback.
//
// Parameters:
//   - fn: the callback invoked by the executor
//
// Returns:
//   - PassOption: option function to apply
func WithExecute(fn ExecuteFunc) PassOption {
	return func(p *pass) {
		p.execute = fn
	}
}

// NewPass creates a Pass with the given name and options.
//
// Parameters:
//   - name: the pass's debug name
//   - options: functional options declaring accesses and behavior
//
// Returns:
//   - Pass: the newly created pass
func NewPass(name string, options ...PassOption) Pass {
	p := &pass{name: name}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *pass) Name() string { return p.name }

func (p *pass) Accesses() []ResourceAccess { return p.accesses }

func (p *pass) ComputeOnly() bool { return p.computeOnly }

func (p *pass) Execute(ctx *PassContext) error {
	if p.execute == nil {
		return nil
	}
	return p.execute(ctx)
}
