package device

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// wgpuBatch wraps a finished command buffer for submission.
type wgpuBatch struct {
	buffer *wgpu.CommandBuffer
}

func (b *wgpuBatch) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// wgpuRecorder records one pass's commands into a private command encoder.
// Not safe for concurrent use; the executor gives each pass its own recorder.
type wgpuRecorder struct {
	label   string
	encoder *wgpu.CommandEncoder

	renderPass *wgpu.RenderPassEncoder
}

var _ Recorder = &wgpuRecorder{}

func (r *wgpuRecorder) Label() string {
	return r.label
}

func (r *wgpuRecorder) Dispatch(pipeline *wgpu.ComputePipeline, bindGroup *wgpu.BindGroup, workGroupCount [3]uint32) {
	pass := r.encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
}

func (r *wgpuRecorder) CopyBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset, size uint64) {
	r.encoder.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

func (r *wgpuRecorder) BeginRender(targets RenderTargets) error {
	if r.renderPass != nil {
		return wrapErr("begin render "+r.label, errors.New("render pass already open"))
	}

	desc := &wgpu.RenderPassDescriptor{Label: r.label}

	if targets.Color != nil {
		loadOp := wgpu.LoadOpClear
		if targets.LoadColor {
			loadOp = wgpu.LoadOpLoad
		}
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{
			{
				View:          targets.Color,
				ResolveTarget: targets.ResolveTarget,
				LoadOp:        loadOp,
				StoreOp:       wgpu.StoreOpStore,
				ClearValue:    targets.ClearColor,
			},
		}
	}

	if targets.Depth != nil {
		depthLoadOp := wgpu.LoadOpClear
		if targets.LoadDepth {
			depthLoadOp = wgpu.LoadOpLoad
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            targets.Depth,
			DepthLoadOp:     depthLoadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}

	r.renderPass = r.encoder.BeginRenderPass(desc)
	return nil
}

func (r *wgpuRecorder) DrawIndexed(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	r.setDrawState(pipeline, vertexBuffer, indexBuffer, bindGroups)
	r.renderPass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (r *wgpuRecorder) DrawIndexedIndirect(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indirectBuffer *wgpu.Buffer, offset uint64) {
	r.setDrawState(pipeline, vertexBuffer, indexBuffer, bindGroups)
	r.renderPass.DrawIndexedIndirect(indirectBuffer, offset)
}

func (r *wgpuRecorder) MultiDrawIndexedIndirect(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup, indirectBuffer *wgpu.Buffer, argsOffset uint64, maxDraws uint32) {
	r.setDrawState(pipeline, vertexBuffer, indexBuffer, bindGroups)
	// webgpu has no multi-draw-indirect-with-count; issue one indirect draw
	// per reserved argument slot. Slots past the culled survivor count hold
	// zeroed arguments and draw zero instances.
	const argStride = 20
	for i := uint32(0); i < maxDraws; i++ {
		r.renderPass.DrawIndexedIndirect(indirectBuffer, argsOffset+uint64(i)*argStride)
	}
}

func (r *wgpuRecorder) setDrawState(pipeline *wgpu.RenderPipeline, vertexBuffer, indexBuffer *wgpu.Buffer, bindGroups []*wgpu.BindGroup) {
	r.renderPass.SetPipeline(pipeline)
	for i, bg := range bindGroups {
		r.renderPass.SetBindGroup(uint32(i), bg, nil)
	}
	if vertexBuffer != nil {
		r.renderPass.SetVertexBuffer(0, vertexBuffer, 0, wgpu.WholeSize)
	}
	if indexBuffer != nil {
		r.renderPass.SetIndexBuffer(indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	}
}

func (r *wgpuRecorder) EndRender() {
	if r.renderPass == nil {
		return
	}
	r.renderPass.End()
	r.renderPass = nil
}

func (r *wgpuRecorder) Finish() (CommandBatch, error) {
	if r.renderPass != nil {
		r.renderPass.End()
		r.renderPass = nil
	}

	buffer, err := r.encoder.Finish(nil)
	r.encoder.Release()
	r.encoder = nil
	if err != nil {
		return nil, wrapErr("finish "+r.label, err)
	}
	return &wgpuBatch{buffer: buffer}, nil
}
