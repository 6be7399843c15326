package routine

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	cpu_culling "github.com/Carmen-Shannon/oxy-graph/engine/culling/cpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// LegacyForwardRoutine draws the scene through the fallback path for devices
// without the GPU-driven feature set: frustum culling on the CPU worker pool,
// then one instanced draw per (mesh, material) batch.
type LegacyForwardRoutine interface {
	Routine

	// SetScene uploads the scene's geometry and snapshots its instances for
	// CPU culling.
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

// legacyRoutine is the implementation of the LegacyForwardRoutine interface.
type legacyRoutine struct {
	mu sync.Mutex

	dev    device.Device
	culler cpu_culling.Culler

	pipeline *wgpu.RenderPipeline
	layout   *wgpu.BindGroupLayout

	uniformBuf *wgpu.Buffer
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer

	// modelBuf is rewritten each frame with the visible instances' matrices
	// and grows when a frame needs more capacity.
	modelBuf    *wgpu.Buffer
	modelBufCap uint64

	instances []cpu_culling.Instance
	ranges    map[uint32]scene.MeshRange
	hasScene  bool

	colorFormat wgpu.TextureFormat
	depthFormat wgpu.TextureFormat
}

var _ LegacyForwardRoutine = &legacyRoutine{}

// LegacyForwardRoutineOption is a functional option for configuring a
// LegacyForwardRoutine.
type LegacyForwardRoutineOption func(*legacyRoutine)

// WithLegacyColorFormat sets the color target format. Defaults to BGRA8 unorm.
//
// Parameters:
//   - format: the color attachment format
//
// Returns:
//   - LegacyForwardRoutineOption: option function to apply
func WithLegacyColorFormat(format wgpu.TextureFormat) LegacyForwardRoutineOption {
	return func(r *legacyRoutine) {
		r.colorFormat = format
	}
}

// WithLegacyDepthFormat sets the depth target format. Defaults to Depth24Plus.
//
// Parameters:
//   - format: the depth attachment format
//
// Returns:
//   - LegacyForwardRoutineOption: option function to apply
func WithLegacyDepthFormat(format wgpu.TextureFormat) LegacyForwardRoutineOption {
	return func(r *legacyRoutine) {
		r.depthFormat = format
	}
}

// NewLegacyForwardRoutine creates the fallback draw pipeline on the given
// device.
//
// Parameters:
//   - dev: the device the pipeline and buffers live on
//   - culler: the CPU culler producing per-frame draw lists
//   - options: functional options to configure the routine
//
// Returns:
//   - LegacyForwardRoutine: the newly created routine
//   - error: a pipeline or layout creation failure
func NewLegacyForwardRoutine(dev device.Device, culler cpu_culling.Culler, options ...LegacyForwardRoutineOption) (LegacyForwardRoutine, error) {
	r := &legacyRoutine{
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
		Label: "legacy forward layout",
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
		return nil, errors.Wrap(err, "legacy forward: bind group layout")
	}

	r.pipeline, err = buildDrawPipeline(dev, "legacy forward", r.layout, r.colorFormat, r.depthFormat)
	if err != nil {
		return nil, err
	}

	r.uniformBuf, err = dev.CreateBuffer("legacy forward uniforms", uint64((&GPUFrameUniforms{}).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, errors.Wrap(err, "legacy forward: uniform buffer")
	}
	return r, nil
}

func (r *legacyRoutine) SetScene(sc scene.Scene) error {
	positions, indices := sc.Geometry()
	instances := sc.SnapshotCPU()
	ranges := sc.MeshRanges()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseSceneBuffers()

	var err error
	r.vertexBuf, err = r.dev.CreateBuffer("legacy forward vertices", nonZero(uint64(len(positions))*12), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "legacy forward: vertex buffer")
	}
	r.indexBuf, err = r.dev.CreateBuffer("legacy forward indices", nonZero(uint64(len(indices))*4), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "legacy forward: index buffer")
	}

	if len(positions) > 0 {
		r.dev.WriteBuffer(r.vertexBuf, 0, common.SliceToBytes(positions))
	}
	if len(indices) > 0 {
		r.dev.WriteBuffer(r.indexBuf, 0, common.SliceToBytes(indices))
	}

	r.instances = instances
	r.ranges = ranges
	r.hasScene = true
	return nil
}

func (r *legacyRoutine) AddToGraph(b graph.GraphBuilder, args *Args) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasScene {
		return errors.New("legacy forward: no scene set")
	}

	drawList := r.culler.Cull(args.Camera.Frustum(), r.instances)

	// Concatenate every batch's matrices; each batch remembers where its
	// instances start so instance_index addresses the right matrix.
	type batchDraw struct {
		rng           scene.MeshRange
		instanceCount uint32
		firstInstance uint32
	}
	draws := make([]batchDraw, 0, len(drawList.Batches))
	models := make([][16]float32, 0, drawList.Visible)
	for i := range drawList.Batches {
		batch := &drawList.Batches[i]
		rng, ok := r.ranges[batch.Mesh]
		if !ok {
			return errors.Errorf("legacy forward: batch references unknown mesh %d", batch.Mesh)
		}
		draws = append(draws, batchDraw{
			rng:           rng,
			instanceCount: batch.InstanceCount(),
			firstInstance: uint32(len(models)),
		})
		models = append(models, batch.Models...)
	}

	if err := r.ensureModelCapacityLocked(uint64(len(models)) * 64); err != nil {
		return err
	}
	if len(models) > 0 {
		r.dev.WriteBuffer(r.modelBuf, 0, common.SliceToBytes(models))
	}

	uniforms := GPUFrameUniforms{ViewProj: args.Camera.ViewProjectionMatrix()}
	r.dev.WriteBuffer(r.uniformBuf, 0, uniforms.Marshal())

	target := args.Target
	colorH := b.ImportPersistent(TargetColorResource, target.Color)
	depthH := b.ImportPersistent(TargetDepthResource, target.Depth)
	uniformH := b.ImportPersistent("forward.uniforms", r.uniformBuf)
	modelH := b.ImportPersistent("forward.models", r.modelBuf)

	vertexBuf, indexBuf, modelBuf := r.vertexBuf, r.indexBuf, r.modelBuf

	b.AddPass(graph.NewPass("forward-legacy",
		graph.WithReads(uniformH, modelH),
		graph.WithReadWrites(colorH, depthH),
		graph.WithExecute(func(ctx *graph.PassContext) error {
			group, err := r.dev.CreateBindGroup("legacy forward", r.layout, []wgpu.BindGroupEntry{
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
			for _, d := range draws {
				ctx.Recorder.DrawIndexed(r.pipeline, vertexBuf, indexBuf, []*wgpu.BindGroup{group},
					d.rng.IndexCount, d.instanceCount, d.rng.FirstIndex, d.rng.BaseVertex, d.firstInstance)
			}
			ctx.Recorder.EndRender()
			return nil
		}),
	))
	return nil
}

// ensureModelCapacityLocked grows the per-frame model buffer to at least the
// given byte size.
func (r *legacyRoutine) ensureModelCapacityLocked(size uint64) error {
	size = nonZero(size)
	if r.modelBuf != nil && r.modelBufCap >= size {
		return nil
	}
	if r.modelBuf != nil {
		r.modelBuf.Release()
		r.modelBuf = nil
	}
	capacity := r.modelBufCap
	if capacity == 0 {
		capacity = 64
	}
	for capacity < size {
		capacity *= 2
	}
	buf, err := r.dev.CreateBuffer("legacy forward models", capacity, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "legacy forward: model buffer")
	}
	r.modelBuf = buf
	r.modelBufCap = capacity
	return nil
}

func (r *legacyRoutine) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseSceneBuffers()
	if r.modelBuf != nil {
		r.modelBuf.Release()
		r.modelBuf = nil
		r.modelBufCap = 0
	}
	if r.uniformBuf != nil {
		r.uniformBuf.Release()
		r.uniformBuf = nil
	}
	if r.pipeline != nil {
		r.pipeline.Release()
		r.pipeline = nil
	}
}

func (r *legacyRoutine) releaseSceneBuffers() {
	if r.vertexBuf != nil {
		r.vertexBuf.Release()
		r.vertexBuf = nil
	}
	if r.indexBuf != nil {
		r.indexBuf.Release()
		r.indexBuf = nil
	}
}