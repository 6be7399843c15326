package routine

import (
	_ "embed"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/culling"
	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

//go:embed assets/forward.wgsl
var forwardSource string

// ForwardRoutine draws the scene through the GPU-driven path: it registers
// the culling passes and a forward pass that consumes the merged indirect
// buffer with one multi-draw.
type ForwardRoutine interface {
	Routine

	// SetScene uploads the scene's geometry and object data and hands the
	// culler its records.
	//
	// Parameters:
	//   - sc: the scene to draw
	//
	// Returns:
	//   - error: a buffer creation failure
	SetScene(sc scene.Scene) error

	// Release frees the routine's device objects.
	Release()
}

// forwardRoutine is the implementation of the ForwardRoutine interface.
type forwardRoutine struct {
	mu sync.Mutex

	dev    device.Device
	culler culling.GPUCuller

	pipeline *wgpu.RenderPipeline
	layout   *wgpu.BindGroupLayout

	uniformBuf *wgpu.Buffer
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer
	modelBuf   *wgpu.Buffer

	hasScene bool

	colorFormat wgpu.TextureFormat
	depthFormat wgpu.TextureFormat
}

var _ ForwardRoutine = &forwardRoutine{}

// ForwardRoutineOption is a functional option for configuring a ForwardRoutine.
type ForwardRoutineOption func(*forwardRoutine)

// WithColorFormat sets the color target format the pipeline renders to.
// Defaults to BGRA8 unorm.
//
// Parameters:
//   - format: the color attachment format
//
// Returns:
//   - ForwardRoutineOption: option function to apply
func WithColorFormat(format wgpu.TextureFormat) ForwardRoutineOption {
	return func(r *forwardRoutine) {
		r.colorFormat = format
	}
}

// WithDepthFormat sets the depth target format. Defaults to Depth24Plus.
//
// Parameters:
//   - format: the depth attachment format
//
// Returns:
//   - ForwardRoutineOption: option function to apply
func WithDepthFormat(format wgpu.TextureFormat) ForwardRoutineOption {
	return func(r *forwardRoutine) {
		r.depthFormat = format
	}
}

// NewForwardRoutine creates the forward pipeline on the given device.
//
// Parameters:
//   - dev: the device the pipeline and buffers live on
//   - culler: the GPU culler whose outputs the forward pass consumes
//   - options: functional options to configure the routine
//
// Returns:
//   - ForwardRoutine: the newly created routine
//   - error: a pipeline or layout creation failure
func NewForwardRoutine(dev device.Device, culler culling.GPUCuller, options ...ForwardRoutineOption) (ForwardRoutine, error) {
	r := &forwardRoutine{
		dev:         dev,
		culler:      culler,
		colorFormat: wgpu.TextureFormatBGRA8Unorm,
		depthFormat: wgpu.TextureFormatDepth24Plus,
	}
	for _, option := range options {
		option(r)
	}

	var err error
	r.layout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "forward layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageVertex,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "forward: bind group layout")
	}

	r.pipeline, err = buildDrawPipeline(dev, "forward", r.layout, r.colorFormat, r.depthFormat)
	if err != nil {
		return nil, err
	}

	r.uniformBuf, err = dev.CreateBuffer("forward uniforms", uint64((&GPUFrameUniforms{}).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, errors.Wrap(err, "forward: uniform buffer")
	}
	return r, nil
}

// buildDrawPipeline creates the position-only draw pipeline shared by the
// forward paths.
func buildDrawPipeline(dev device.Device, label string, layout *wgpu.BindGroupLayout, colorFormat, depthFormat wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	pipelineLayout, err := dev.CreatePipelineLayout(label, []*wgpu.BindGroupLayout{layout})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: pipeline layout", label)
	}

	module, err := dev.CreateShaderModule(label, GPUFrameUniformsSource+forwardSource)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: shader module", label)
	}

	pipeline, err := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: 12,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{ShaderLocation: 0, Offset: 0, Format: wgpu.VertexFormatFloat32x3},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    colorFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: render pipeline", label)
	}
	return pipeline, nil
}

func (r *forwardRoutine) SetScene(sc scene.Scene) error {
	objects, clusters := sc.SnapshotGPU()
	positions, indices := sc.Geometry()

	if err := r.culler.SetScene(objects, clusters); err != nil {
		return err
	}

	models := make([][16]float32, len(objects))
	for i := range objects {
		models[i] = objects[i].Model
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseSceneBuffers()

	var err error
	r.vertexBuf, err = r.dev.CreateBuffer("forward vertices", nonZero(uint64(len(positions))*12), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "forward: vertex buffer")
	}
	r.indexBuf, err = r.dev.CreateBuffer("forward indices", nonZero(uint64(len(indices))*4), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "forward: index buffer")
	}
	r.modelBuf, err = r.dev.CreateBuffer("forward models", nonZero(uint64(len(models))*64), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "forward: model buffer")
	}

	if len(positions) > 0 {
		r.dev.WriteBuffer(r.vertexBuf, 0, common.SliceToBytes(positions))
	}
	if len(indices) > 0 {
		r.dev.WriteBuffer(r.indexBuf, 0, common.SliceToBytes(indices))
	}
	if len(models) > 0 {
		r.dev.WriteBuffer(r.modelBuf, 0, common.SliceToBytes(models))
	}
	r.hasScene = true
	return nil
}

func (r *forwardRoutine) AddToGraph(b graph.GraphBuilder, args *Args) error {
	r.mu.Lock()
	if !r.hasScene {
		r.mu.Unlock()
		return errors.New("forward: no scene set")
	}
	vertexBuf, indexBuf, modelBuf := r.vertexBuf, r.indexBuf, r.modelBuf
	r.mu.Unlock()

	outs, err := r.culler.AddToGraph(b, cullingUniforms(args.Camera), args.FrameIndex)
	if err != nil {
		return err
	}

	uniforms := GPUFrameUniforms{ViewProj: args.Camera.ViewProjectionMatrix()}
	r.dev.WriteBuffer(r.uniformBuf, 0, uniforms.Marshal())

	target := args.Target
	colorH := b.ImportPersistent(TargetColorResource, target.Color)
	depthH := b.ImportPersistent(TargetDepthResource, target.Depth)
	uniformH := b.ImportPersistent("forward.uniforms", r.uniformBuf)
	modelH := b.ImportPersistent("forward.models", modelBuf)

	b.AddPass(graph.NewPass("forward",
		graph.WithReads(outs.IndirectDraws, uniformH, modelH),
		graph.WithReadWrites(colorH, depthH),
		graph.WithExecute(func(ctx *graph.PassContext) error {
			indirectBuf, err := ctx.Bindings[outs.IndirectDraws].Buffer(r.dev)
			if err != nil {
				return err
			}
			group, err := r.dev.CreateBindGroup("forward", r.layout, []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: r.uniformBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: modelBuf, Offset: 0, Size: wgpu.WholeSize},
			})
			if err != nil {
				return err
			}
			if err := ctx.Recorder.BeginRender(device.RenderTargets{
				Color:     target.Color,
				Depth:     target.Depth,
				LoadColor: true,
				LoadDepth: true,
			}); err != nil {
				return err
			}
			ctx.Recorder.MultiDrawIndexedIndirect(r.pipeline, vertexBuf, indexBuf, []*wgpu.BindGroup{group}, indirectBuf, outs.ArgsOffset, outs.MaxDraws)
			ctx.Recorder.EndRender()
			return nil
		}),
	))
	return nil
}

func (r *forwardRoutine) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseSceneBuffers()
	if r.uniformBuf != nil {
		r.uniformBuf.Release()
		r.uniformBuf = nil
	}
	if r.pipeline != nil {
		r.pipeline.Release()
		r.pipeline = nil
	}
}

func (r *forwardRoutine) releaseSceneBuffers() {
	if r.vertexBuf != nil {
		r.vertexBuf.Release()
		r.vertexBuf = nil
	}
	if r.indexBuf != nil {
		r.indexBuf.Release()
		r.indexBuf = nil
	}
	if r.modelBuf != nil {
		r.modelBuf.Release()
		r.modelBuf = nil
	}
}

// cullingUniforms fills the camera-dependent fields of the culling uniforms;
// the culler fills in the counts.
func cullingUniforms(cam camera.Camera) culling.GPUCullingUniforms {
	var u culling.GPUCullingUniforms
	f := cam.Frustum()
	for i, plane := range f.Planes {
		u.Planes[i] = [4]float32{plane.Normal[0], plane.Normal[1], plane.Normal[2], plane.Distance}
	}
	u.CameraPos = cam.Position()
	return u
}

// nonZero clamps a buffer size to a bindable minimum for empty scenes.
func nonZero(size uint64) uint64 {
	if size == 0 {
		return 4
	}
	return size
}
