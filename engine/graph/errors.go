package graph

import (
	"fmt"
	"strings"
)

// BuildErrorKind classifies fatal graph compilation failures.
type BuildErrorKind uint8

const (
	// BuildErrorCycle means the declared accesses form a dependency cycle.
	BuildErrorCycle BuildErrorKind = iota
	// BuildErrorConflict means a resource name was declared twice with
	// different signatures or lifetimes.
	BuildErrorConflict
	// BuildErrorUnproduced means a pass reads a transient resource no pass
	// writes. Caught at build time so the executor stays free of validation.
	BuildErrorUnproduced
	// BuildErrorInvalidHandle means a pass declares a zero-value or otherwise
	// unregistered resource handle.
	BuildErrorInvalidHandle
)

// String returns the kind name for diagnostics.
func (k BuildErrorKind) String() string {
	switch k {
	case BuildErrorCycle:
		return "cyclic dependency"
	case BuildErrorConflict:
		return "conflicting resource declaration"
	case BuildErrorUnproduced:
		return "read of unproduced resource"
	case BuildErrorInvalidHandle:
		return "access through invalid resource handle"
	default:
		return fmt.Sprintf("build error(%d)", uint8(k))
	}
}

// BuildError is a fatal graph compilation failure. It is reported before any
// device work is submitted; the caller skips the frame.
type BuildError struct {
	// Kind classifies the failure.
	Kind BuildErrorKind
	// Passes names the participating passes, when known. For cycles this is
	// the full membership of one detected cycle.
	Passes []string
	// Resource names the offending resource, when the failure is tied to one.
	Resource string
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString("graph: ")
	b.WriteString(e.Kind.String())
	if e.Resource != "" {
		fmt.Fprintf(&b, " on resource %q", e.Resource)
	}
	if len(e.Passes) > 0 {
		fmt.Fprintf(&b, " involving passes [%s]", strings.Join(e.Passes, ", "))
	}
	return b.String()
}
