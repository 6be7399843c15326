// Package routine provides composable renderer building blocks. Each routine
// registers its passes onto a shared per-frame graph builder; ordering between
// routines is derived from the resources they declare, never from the order
// they were added.
package routine

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/cogentcore/webgpu/wgpu"
)

// Resource names shared between routines. Routines touching the same target
// import the same name, which is how the graph orders them.
const (
	TargetColorResource = "target.color"
	TargetDepthResource = "target.depth"
)

// Target is the frame's output attachments.
type Target struct {
	// Color is the color attachment view.
	Color *wgpu.TextureView
	// Depth is the depth attachment view. May be nil for depth-less targets.
	Depth *wgpu.TextureView
	// ClearColor is the clear value used by the clear routine.
	ClearColor wgpu.Color
}

// Args carries the per-frame state every routine receives.
type Args struct {
	// Camera supplies the view state for this frame.
	Camera camera.Camera
	// Target is the frame's output attachments.
	Target Target
	// FrameIndex is the monotonically increasing frame number.
	FrameIndex uint64
}

// Routine registers one renderer building block's passes for a frame.
type Routine interface {
	// AddToGraph registers the routine's passes and resource declarations.
	//
	// Parameters:
	//   - b: the frame's graph builder
	//   - args: the frame state
	//
	// Returns:
	//   - error: if the routine cannot register, e.g. no scene set
	AddToGraph(b graph.GraphBuilder, args *Args) error
}
