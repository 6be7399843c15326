// package culling implements GPU-driven visibility for the modern profile:
// an object pass that frustum-tests every registered object and compacts the
// survivors into a visible-index list, and a cluster pass that frustum- and
// cone-tests each survivor's triangle clusters and appends merged indirect
// draw arguments. Both passes register onto the frame graph as compute-only
// passes; the forward pass consumes the merged indirect buffer with a single
// multi-draw.
package culling

import (
	_ "embed"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

//go:embed assets/object_cull.wgsl
var objectCullSource string

//go:embed assets/object_cull_hiz.wgsl
var objectCullHiZSource string

//go:embed assets/cluster_cull.wgsl
var clusterCullSource string

const (
	// ListHeaderBytes is the size of the atomic-count header at the front of
	// the visible list and the indirect buffer (count + 3 pad words).
	ListHeaderBytes = 16

	// IndirectArgStride is the byte stride of one DrawIndexedIndirect
	// argument struct.
	IndirectArgStride = 20

	cullWorkgroupSize = 64
)

// CapacityExceeded reports that a culling pass had more survivors than its
// reserved capacity and clamped. The frame still renders, minus the excess;
// the caller may resize for the next frame.
type CapacityExceeded struct {
	Pass       string
	Capacity   uint32
	Requested  uint32
	FrameIndex uint64
}

// String formats the diagnostic for logging.
func (e CapacityExceeded) String() string {
	return fmt.Sprintf("%s clamped at capacity %d (requested %d) on frame %d", e.Pass, e.Capacity, e.Requested, e.FrameIndex)
}

// GraphOutputs are the handles a culler registration leaves behind for
// downstream passes in the same frame.
type GraphOutputs struct {
	// VisibleList is the transient compacted visible-object index buffer.
	VisibleList graph.ResourceHandle
	// IndirectDraws is the transient merged indirect-draw buffer. Arguments
	// start at ArgsOffset; the shared count lives in the header before them.
	IndirectDraws graph.ResourceHandle
	// ArgsOffset is the byte offset of the first argument struct.
	ArgsOffset uint64
	// MaxDraws is the reserved argument capacity, the multi-draw's slot count.
	MaxDraws uint32
}

// GPUCuller owns the culling pipelines and scene-side buffers and registers
// the two culling passes onto a frame's graph.
type GPUCuller interface {
	// SetScene replaces the object and cluster buffers. Capacity for the
	// merged indirect buffer is derived from the total cluster count unless
	// overridden, so a frame can never need more slots than reserved.
	//
	// Parameters:
	//   - objects: one record per renderable object
	//   - clusters: all objects' cluster bounds, indexed by FirstCluster
	//
	// Returns:
	//   - error: a buffer creation failure
	SetScene(objects []GPUObjectRecord, clusters []GPUClusterBounds) error

	// AddToGraph registers the object and cluster culling passes for one
	// frame. The caller fills the uniform's Planes and CameraPos; counts and
	// capacities are filled in here.
	//
	// Parameters:
	//   - b: the frame's graph builder
	//   - uniforms: per-frame culling uniforms with camera state filled in
	//   - frameIndex: the frame number, carried into diagnostics
	//
	// Returns:
	//   - GraphOutputs: handles for downstream passes
	//   - error: when no scene has been set
	AddToGraph(b graph.GraphBuilder, uniforms GPUCullingUniforms, frameIndex uint64) (GraphOutputs, error)

	// SetDepthPyramid attaches the prior frame's hierarchical depth pyramid
	// as an occlusion input for the object pass. Each mip texel must hold the
	// farthest depth of the screen region it covers; the pass then drops
	// objects whose bounding sphere is provably behind it. A nil view detaches
	// the pyramid and restores pure frustum culling.
	//
	// Parameters:
	//   - view: a view over all mips of the depth pyramid, or nil
	//   - mipCount: the pyramid's mip level count
	//   - viewProj: the view-projection matrix the pyramid was rendered with
	SetDepthPyramid(view *wgpu.TextureView, mipCount uint32, viewProj [16]float32)

	// Capacity returns the reserved indirect-draw slot count.
	Capacity() uint32

	// DrainEvents returns and clears the accumulated capacity diagnostics.
	DrainEvents() []CapacityExceeded

	// Release frees the culler's device objects.
	Release()
}

// gpuCuller is the implementation of the GPUCuller interface.
type gpuCuller struct {
	mu sync.Mutex

	dev device.Device

	objectPipeline    *wgpu.ComputePipeline
	objectHiZPipeline *wgpu.ComputePipeline
	clusterPipeline   *wgpu.ComputePipeline
	objectLayout      *wgpu.BindGroupLayout
	objectHiZLayout   *wgpu.BindGroupLayout
	clusterLayout     *wgpu.BindGroupLayout

	hizView     *wgpu.TextureView
	hizMipCount uint32
	hizViewProj [16]float32

	uniformBuf *wgpu.Buffer
	objectBuf  *wgpu.Buffer
	clusterBuf *wgpu.Buffer

	// zeroBuf stays zero-filled for its whole life; the cluster pass copies
	// from it to reset the indirect buffer before appending.
	zeroBuf     *wgpu.Buffer
	zeroBufSize uint64

	objectCount      uint32
	clusterDemand    uint32
	capacity         uint32
	capacityOverride uint32

	events []CapacityExceeded
}

var _ GPUCuller = &gpuCuller{}

// GPUCullerOption is a functional option for configuring a GPUCuller.
type GPUCullerOption func(*gpuCuller)

// WithClusterCapacity overrides the derived indirect-draw capacity. A value
// below the scene's total cluster count makes clamping possible and raises
// CapacityExceeded diagnostics when it happens.
//
// Parameters:
//   - n: the reserved indirect-draw slot count
//
// Returns:
//   - GPUCullerOption: option function to apply
func WithClusterCapacity(n uint32) GPUCullerOption {
	return func(c *gpuCuller) {
		c.capacityOverride = n
	}
}

// NewGPUCuller creates the culling pipelines on the given device.
//
// Parameters:
//   - dev: the device the pipelines and buffers live on
//   - options: functional options to configure the culler
//
// Returns:
//   - GPUCuller: the newly created culler
//   - error: a pipeline or layout creation failure
func NewGPUCuller(dev device.Device, options ...GPUCullerOption) (GPUCuller, error) {
	c := &gpuCuller{dev: dev}
	for _, option := range options {
		option(c)
	}

	computeBuffer := func(binding uint32, t wgpu.BufferBindingType) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: t},
		}
	}

	var err error
	c.objectLayout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "object cull layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			computeBuffer(0, wgpu.BufferBindingTypeUniform),
			computeBuffer(1, wgpu.BufferBindingTypeReadOnlyStorage),
			computeBuffer(2, wgpu.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "culling: object layout")
	}
	c.objectHiZLayout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "object cull hi-z layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			computeBuffer(0, wgpu.BufferBindingTypeUniform),
			computeBuffer(1, wgpu.BufferBindingTypeReadOnlyStorage),
			computeBuffer(2, wgpu.BufferBindingTypeStorage),
			{
				Binding:    3,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "culling: object hi-z layout")
	}
	c.clusterLayout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "cluster cull layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			computeBuffer(0, wgpu.BufferBindingTypeUniform),
			computeBuffer(1, wgpu.BufferBindingTypeReadOnlyStorage),
			computeBuffer(2, wgpu.BufferBindingTypeReadOnlyStorage),
			computeBuffer(3, wgpu.BufferBindingTypeStorage),
			computeBuffer(4, wgpu.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "culling: cluster layout")
	}

	objectSource := GPUCullingUniformsSource + GPUObjectRecordSource + objectCullSource
	c.objectPipeline, err = dev.CreateComputePipeline("object cull", objectSource, "cull_objects", []*wgpu.BindGroupLayout{c.objectLayout})
	if err != nil {
		return nil, errors.Wrap(err, "culling: object pipeline")
	}

	objectHiZSource := GPUCullingUniformsSource + GPUObjectRecordSource + objectCullHiZSource
	c.objectHiZPipeline, err = dev.CreateComputePipeline("object cull hi-z", objectHiZSource, "cull_objects", []*wgpu.BindGroupLayout{c.objectHiZLayout})
	if err != nil {
		return nil, errors.Wrap(err, "culling: object hi-z pipeline")
	}

	clusterSource := GPUCullingUniformsSource + GPUObjectRecordSource + GPUClusterBoundsSource + GPUIndirectArgsSource + clusterCullSource
	c.clusterPipeline, err = dev.CreateComputePipeline("cluster cull", clusterSource, "cull_clusters", []*wgpu.BindGroupLayout{c.clusterLayout})
	if err != nil {
		return nil, errors.Wrap(err, "culling: cluster pipeline")
	}

	c.uniformBuf, err = dev.CreateBuffer("culling uniforms", uint64((&GPUCullingUniforms{}).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, errors.Wrap(err, "culling: uniform buffer")
	}
	return c, nil
}

func (c *gpuCuller) SetScene(objects []GPUObjectRecord, clusters []GPUClusterBounds) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.objectCount = uint32(len(objects))
	c.clusterDemand = uint32(len(clusters))
	if c.capacityOverride > 0 {
		c.capacity = c.capacityOverride
	} else {
		c.capacity = CapacityForClusterCount(len(clusters))
	}

	objectData := make([]byte, 0, len(objects)*96)
	for i := range objects {
		objectData = append(objectData, objects[i].Marshal()...)
	}
	clusterData := make([]byte, 0, len(clusters)*48)
	for i := range clusters {
		clusterData = append(clusterData, clusters[i].Marshal()...)
	}

	c.releaseSceneBuffers()

	var err error
	c.objectBuf, err = c.dev.CreateBuffer("culling objects", atLeast(uint64(len(objectData)), 96), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "culling: object buffer")
	}
	c.clusterBuf, err = c.dev.CreateBuffer("culling clusters", atLeast(uint64(len(clusterData)), 48), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return errors.Wrap(err, "culling: cluster buffer")
	}

	// New buffers are zero-initialized, so this stays a valid copy source as
	// long as nothing ever writes to it.
	c.zeroBufSize = ListHeaderBytes + uint64(c.capacity)*IndirectArgStride
	c.zeroBuf, err = c.dev.CreateBuffer("culling zero source", c.zeroBufSize, wgpu.BufferUsageCopySrc)
	if err != nil {
		return errors.Wrap(err, "culling: zero buffer")
	}

	if len(objectData) > 0 {
		c.dev.WriteBuffer(c.objectBuf, 0, objectData)
	}
	if len(clusterData) > 0 {
		c.dev.WriteBuffer(c.clusterBuf, 0, clusterData)
	}
	return nil
}

func (c *gpuCuller) SetDepthPyramid(view *wgpu.TextureView, mipCount uint32, viewProj [16]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view == nil || mipCount == 0 {
		c.hizView = nil
		c.hizMipCount = 0
		return
	}
	c.hizView = view
	c.hizMipCount = mipCount
	c.hizViewProj = viewProj
}

func (c *gpuCuller) AddToGraph(b graph.GraphBuilder, uniforms GPUCullingUniforms, frameIndex uint64) (GraphOutputs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.objectBuf == nil {
		return GraphOutputs{}, fmt.Errorf("culling: no scene set")
	}

	hizView := c.hizView
	uniforms.ObjectCount = c.objectCount
	uniforms.ClusterCapacity = c.capacity
	uniforms.ObjectCapacity = c.objectCount
	if hizView != nil {
		uniforms.ViewProj = c.hizViewProj
		uniforms.HiZMipCount = c.hizMipCount
		uniforms.OcclusionEnabled = 1
	}
	c.dev.WriteBuffer(c.uniformBuf, 0, uniforms.Marshal())

	if c.clusterDemand > c.capacity {
		event := CapacityExceeded{
			Pass:       "cluster-cull",
			Capacity:   c.capacity,
			Requested:  c.clusterDemand,
			FrameIndex: frameIndex,
		}
		c.events = append(c.events, event)
		log.Printf("[culling] %s", event)
	}

	uniformH := b.ImportPersistent("culling.uniforms", c.uniformBuf)
	objectsH := b.ImportPersistent("culling.objects", c.objectBuf)
	clustersH := b.ImportPersistent("culling.clusters", c.clusterBuf)

	visibleH := b.DeclareTransient("culling.visible", graph.ResourceSignature{
		Size:  ListHeaderBytes + uint64(c.objectCount)*4,
		Usage: uint32(wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst),
	})
	indirectH := b.DeclareTransient("culling.indirect", graph.ResourceSignature{
		Size:  c.zeroBufSize,
		Usage: uint32(wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst),
	})

	objectGroups := (c.objectCount + cullWorkgroupSize - 1) / cullWorkgroupSize
	if objectGroups == 0 {
		objectGroups = 1
	}

	objectReads := []graph.ResourceHandle{uniformH, objectsH}
	if hizView != nil {
		objectReads = append(objectReads, b.ImportPersistent("culling.hiz", hizView))
	}

	b.AddPass(graph.NewPass("object-cull",
		graph.WithReads(objectReads...),
		graph.WithWrites(visibleH),
		graph.WithComputeOnly(),
		graph.WithExecute(func(ctx *graph.PassContext) error {
			visibleBuf, err := ctx.Bindings[visibleH].Buffer(c.dev)
			if err != nil {
				return err
			}
			ctx.Recorder.CopyBuffer(c.zeroBuf, 0, visibleBuf, 0, ListHeaderBytes)
			entries := []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: c.uniformBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: c.objectBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: visibleBuf, Offset: 0, Size: wgpu.WholeSize},
			}
			layout, pipeline := c.objectLayout, c.objectPipeline
			if hizView != nil {
				entries = append(entries, wgpu.BindGroupEntry{Binding: 3, TextureView: hizView})
				layout, pipeline = c.objectHiZLayout, c.objectHiZPipeline
			}
			group, err := c.dev.CreateBindGroup("object cull", layout, entries)
			if err != nil {
				return err
			}
			ctx.Recorder.Dispatch(pipeline, group, [3]uint32{objectGroups, 1, 1})
			return nil
		}),
	))

	// One workgroup per potential survivor; workgroups past the compacted
	// count exit immediately.
	clusterGroups := c.objectCount
	if clusterGroups == 0 {
		clusterGroups = 1
	}

	b.AddPass(graph.NewPass("cluster-cull",
		graph.WithReads(uniformH, objectsH, clustersH, visibleH),
		graph.WithWrites(indirectH),
		graph.WithComputeOnly(),
		graph.WithExecute(func(ctx *graph.PassContext) error {
			visibleBuf, err := ctx.Bindings[visibleH].Buffer(c.dev)
			if err != nil {
				return err
			}
			indirectBuf, err := ctx.Bindings[indirectH].Buffer(c.dev)
			if err != nil {
				return err
			}
			// Reset the count and every argument slot; stale arguments from
			// a previous occupant would otherwise draw.
			ctx.Recorder.CopyBuffer(c.zeroBuf, 0, indirectBuf, 0, c.zeroBufSize)
			group, err := c.dev.CreateBindGroup("cluster cull", c.clusterLayout, []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: c.uniformBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: c.objectBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: c.clusterBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 3, Buffer: visibleBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 4, Buffer: indirectBuf, Offset: 0, Size: wgpu.WholeSize},
			})
			if err != nil {
				return err
			}
			ctx.Recorder.Dispatch(c.clusterPipeline, group, [3]uint32{clusterGroups, 1, 1})
			return nil
		}),
	))

	return GraphOutputs{
		VisibleList:   visibleH,
		IndirectDraws: indirectH,
		ArgsOffset:    ListHeaderBytes,
		MaxDraws:      c.capacity,
	}, nil
}

func (c *gpuCuller) Capacity() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

func (c *gpuCuller) DrainEvents() []CapacityExceeded {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events
}

func (c *gpuCuller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseSceneBuffers()
	if c.uniformBuf != nil {
		c.uniformBuf.Release()
		c.uniformBuf = nil
	}
	if c.objectPipeline != nil {
		c.objectPipeline.Release()
		c.objectPipeline = nil
	}
	if c.objectHiZPipeline != nil {
		c.objectHiZPipeline.Release()
		c.objectHiZPipeline = nil
	}
	if c.clusterPipeline != nil {
		c.clusterPipeline.Release()
		c.clusterPipeline = nil
	}
}

func (c *gpuCuller) releaseSceneBuffers() {
	if c.objectBuf != nil {
		c.objectBuf.Release()
		c.objectBuf = nil
	}
	if c.clusterBuf != nil {
		c.clusterBuf.Release()
		c.clusterBuf = nil
	}
	if c.zeroBuf != nil {
		c.zeroBuf.Release()
		c.zeroBuf = nil
	}
}

// atLeast clamps a buffer size to a nonzero minimum so empty scenes still get
// bindable buffers.
func atLeast(size, min uint64) uint64 {
	if size < min {
		return min
	}
	return size
}
