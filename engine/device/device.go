// package device exposes the narrow device-API surface the frame graph
// executes against. The graph core never talks to webgpu directly; it records
// through a Recorder and submits CommandBatches, so everything above this
// package can run against a fake device in tests.
package device

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Profile selects which culling path the hardware supports.
type Profile uint8

const (
	// ProfileModern is the GPU-driven path: storage-buffer atomics and
	// compute-written indirect draw arguments.
	ProfileModern Profile = iota
	// ProfileLegacy is the CPU-culling fallback with instanced direct draws,
	// for hardware lacking the Modern path's features.
	ProfileLegacy
)

// String returns the profile name for logging.
func (p Profile) String() string {
	switch p {
	case ProfileModern:
		return "modern"
	case ProfileLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// Error wraps a failure surfaced by the underlying device. The graph core
// propagates these uninterpreted; device-loss recovery is the caller's
// responsibility.
type Error struct {
	// Op names the device operation that failed.
	Op string
	// Err is the underlying device error.
	Err error
}

func (e *Error) Error() string {
	return "device: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr wraps a non-nil underlying error into an *Error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// CommandBatch is one finished unit of recorded device work, ready for
// submission. Batches are single-use: submitting releases them.
type CommandBatch interface {
	// Release frees the recorded commands without submitting them. Used when
	// a frame is abandoned before submission.
	Release()
}

// RenderTargets describes the attachments for one render pass recorded
// through a Recorder.
type RenderTargets struct {
	// Color is the color attachment view. May be nil for depth-only passes.
	Color *wgpu.TextureView
	// ResolveTarget receives the resolved output when Color is multisampled.
	ResolveTarget *wgpu.TextureView
	// Depth is the depth attachment view. May be nil.
	Depth *wgpu.TextureView
	// ClearColor is used when LoadColor is false.
	ClearColor wgpu.Color
	// LoadColor loads the existing color contents instead of clearing.
	LoadColor bool
	// LoadDepth loads the existing depth contents instead of clearing to 1.0.
	LoadDepth bool
}

// Recorder records one pass's device commands into a private encoder. Each
// pass gets its own Recorder, which is what makes parallel recording safe:
// encoders are never shared between passes.
type Recorder interface {
	// Label returns the debug label the recorder was created with.
	Label() string

	// Dispatch encodes a compute dispatch with a single bind group at index 0.
	//
	// Parameters:
	//   - pipeline: the compute pipeline to bind
	//   - bindGroup: the bind group set at group index 0
	//   - workGroupCount: workgroups to dispatch in x, y, z
	Dispatch(pipeline *wgpu.ComputePipeline, bindGroup *wgpu.BindGroup, workGroupCount [3]uint32)

	// CopyBuffer encodes a buffer-to-buffer copy.
	//
	// Parameters:
	//   - src: source buffer
	//   - srcOffset: byte offset into the source
	//   - dst: destination buffer
	//   - dstOffset: byte offset into the destination
	//   - size: number of bytes to copy
	CopyBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset, size uint64)

	// BeginRender opens a render pass targeting the given attachments. Must be
	// paired with EndRender before Finish.
	//
	// Parameters:
	//   - targets: the attachments and load/clear behavior for the pass
	//
	// Returns:
	//   - error: an error if the render pass could not be started
	BeginRender(targets RenderTargets) error

	// DrawIndexed encodes one instanced indexed draw within the open render pass.
	//
	// Parameters:
	//   - pipeline: the render pipeline to bind
	//   - vertexBuffer: the vertex buffer for slot 0
	//   - indexBuffer: the uint32 index buffer
	//   - bindGroups: bind groups set in slot order starting at 0
	//   - indexCount: indices per instance
	//   - instanceCount: number of instances
	//   - firstIndex: offset into the index buffer, in indices
	//   - baseVertex: value added to each index before vertex fetch
	//   - firstInstance: first instance_index value the shader sees
	DrawIndexed(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)

	// DrawIndexedIndirect encodes one indirect indexed draw reading its
	// arguments from indirectBuffer at the given byte offset.
	//
	// Parameters:
	//   - pipeline: the render pipeline to bind
	//   - vertexBuffer: the vertex buffer for slot 0
	//   - indexBuffer: the uint32 index buffer
	//   - bindGroups: bind groups set in slot order starting at 0
	//   - indirectBuffer: buffer holding 20-byte DrawIndexedIndirect arguments
	//   - offset: byte offset of the argument struct
	DrawIndexedIndirect(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indirectBuffer *wgpu.Buffer, offset uint64)

	// MultiDrawIndexedIndirect encodes maxDraws consecutive indirect draws
	// from indirectBuffer. Argument slots left zeroed draw zero instances.
	// webgpu has no multi-draw-with-count command; a merged indirect buffer
	// is issued as one indirect draw per reserved slot.
	//
	// Parameters:
	//   - pipeline: the render pipeline to bind
	//   - vertexBuffer: the vertex buffer for slot 0
	//   - indexBuffer: the uint32 index buffer
	//   - bindGroups: bind groups set in slot order starting at 0
	//   - indirectBuffer: buffer holding maxDraws 20-byte argument structs
	//   - argsOffset: byte offset of the first argument struct (skips any header)
	//   - maxDraws: the buffer's reserved argument capacity
	MultiDrawIndexedIndirect(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indirectBuffer *wgpu.Buffer, argsOffset uint64, maxDraws uint32)

	// EndRender closes the render pass opened by BeginRender.
	EndRender()

	// Finish ends recording and returns the batch for submission. The
	// Recorder must not be used after Finish.
	//
	// Returns:
	//   - CommandBatch: the finished command batch
	//   - error: an error if encoding failed
	Finish() (CommandBatch, error)
}

// Device is the abstracted device-API surface. One Device wraps one logical
// GPU with a unified queue; SubmitCompute exists so compute-only work can be
// batched separately from graphics work even when both map to the same
// underlying queue.
type Device interface {
	// Profile returns the culling profile this device supports.
	Profile() Profile

	// CreateBuffer creates a device buffer.
	//
	// Parameters:
	//   - label: debug label
	//   - size: buffer size in bytes
	//   - usage: webgpu usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the created buffer
	//   - error: an error if creation fails
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// WriteBuffer uploads data to a buffer through the queue.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: byte offset into the buffer
	//   - data: the bytes to upload
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// CreateTexture creates a device texture.
	//
	// Parameters:
	//   - desc: the webgpu texture descriptor
	//
	// Returns:
	//   - *wgpu.Texture: the created texture
	//   - error: an error if creation fails
	CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error)

	// CreateBindGroupLayout creates a bind group layout.
	//
	// Parameters:
	//   - desc: the webgpu layout descriptor
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the created layout
	//   - error: an error if creation fails
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error)

	// CreateBindGroup creates a bind group over the given layout.
	//
	// Parameters:
	//   - label: debug label
	//   - layout: the layout the entries conform to
	//   - entries: the resource bindings
	//
	// Returns:
	//   - *wgpu.BindGroup: the created bind group
	//   - error: an error if creation fails
	CreateBindGroup(label string, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error)

	// CreateComputePipeline compiles WGSL source and creates a compute
	// pipeline over the given bind group layouts.
	//
	// Parameters:
	//   - label: debug label and shader module label
	//   - source: WGSL source code
	//   - entryPoint: the compute entry point name
	//   - layouts: bind group layouts in group-index order
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the created pipeline
	//   - error: an error if compilation or creation fails
	CreateComputePipeline(label, source, entryPoint string, layouts []*wgpu.BindGroupLayout) (*wgpu.ComputePipeline, error)

	// CreatePipelineLayout creates a pipeline layout over the given bind group
	// layouts, for render pipeline descriptors.
	//
	// Parameters:
	//   - label: debug label for the layout
	//   - layouts: bind group layouts in group-index order
	//
	// Returns:
	//   - *wgpu.PipelineLayout: the created layout
	//   - error: an error if creation fails
	CreatePipelineLayout(label string, layouts []*wgpu.BindGroupLayout) (*wgpu.PipelineLayout, error)

	// CreateShaderModule compiles WGSL source into a shader module for use in
	// render pipeline descriptors.
	//
	// Parameters:
	//   - label: debug label for the module
	//   - source: WGSL source code
	//
	// Returns:
	//   - *wgpu.ShaderModule: the compiled module
	//   - error: an error if compilation fails
	CreateShaderModule(label, source string) (*wgpu.ShaderModule, error)

	// CreateRenderPipeline creates a render pipeline from a full descriptor.
	// Draw-pass pipeline state is the caller's concern; the core only
	// sequences the passes that use it.
	//
	// Parameters:
	//   - desc: the webgpu render pipeline descriptor
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the created pipeline
	//   - error: an error if creation fails
	CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error)

	// NewRecorder creates a fresh command recorder for one pass.
	//
	// Parameters:
	//   - label: debug label for the underlying encoder
	//
	// Returns:
	//   - Recorder: the new recorder
	//   - error: an error if the encoder could not be created
	NewRecorder(label string) (Recorder, error)

	// Submit submits finished batches to the device timeline in order, as a
	// single operation. Batches are released by submission.
	//
	// Parameters:
	//   - batches: the batches to submit, in execution order
	//
	// Returns:
	//   - error: an error if submission fails
	Submit(batches ...CommandBatch) error

	// SubmitCompute submits compute-only batches. On hardware with a single
	// queue this lands on the same timeline as Submit; the split still lets
	// dependents wait on compute work without waiting on unrelated graphics.
	//
	// Parameters:
	//   - batches: the compute batches to submit, in execution order
	//
	// Returns:
	//   - error: an error if submission fails
	SubmitCompute(batches ...CommandBatch) error

	// OnWorkDone invokes fn once all work submitted so far has completed on
	// the device timeline. Used as the per-frame fence.
	//
	// Parameters:
	//   - fn: callback invoked on completion
	OnWorkDone(fn func())

	// Poll processes outstanding device events, optionally blocking until the
	// device is idle.
	//
	// Parameters:
	//   - wait: block until submitted work completes
	Poll(wait bool)

	// Release frees the device and its queue.
	Release()
}
