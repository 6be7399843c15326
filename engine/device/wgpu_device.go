package device

import (
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// SurfaceDevice extends Device with swap-chain presentation. Presentation is
// a collaborator concern, not part of the graph core contract; it exists so
// the example programs can get pixels on screen through the same device.
type SurfaceDevice interface {
	Device

	// ConfigureSurface configures the swap chain for a new surface size.
	//
	// Parameters:
	//   - width: surface width in pixels
	//   - height: surface height in pixels
	ConfigureSurface(width, height int)

	// SurfaceFormat returns the configured swap-chain texture format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the surface format
	SurfaceFormat() wgpu.TextureFormat

	// AcquireFrame acquires the next swap-chain texture view.
	//
	// Returns:
	//   - *wgpu.TextureView: the view to render the frame into
	//   - error: an error if acquisition fails
	AcquireFrame() (*wgpu.TextureView, error)

	// Present presents the most recently acquired frame and releases it.
	Present()
}

// wgpuDevice is the webgpu implementation of Device.
type wgpuDevice struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	profile Profile

	surface       *wgpu.Surface
	surfaceFormat wgpu.TextureFormat

	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	forceLegacy          bool
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	maxBindGroups        uint32
}

var _ SurfaceDevice = &wgpuDevice{}

// WGPUDeviceOption is a functional option for configuring the wgpu device.
type WGPUDeviceOption func(*wgpuDevice)

// WithForceFallbackAdapter forces selection of the software fallback adapter.
// Implies the Legacy profile.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithForceFallbackAdapter(force bool) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithLegacyProfile forces the Legacy culling profile even when the adapter
// would support the Modern path. Useful for testing the fallback and for
// hardware where indirect-draw or storage-atomic support is unreliable.
//
// Parameters:
//   - legacy: whether to force the Legacy profile
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithLegacyProfile(legacy bool) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.forceLegacy = legacy
	}
}

// WithSurfaceDescriptor supplies the windowing system's surface so the device
// can present. Without it the device runs headless.
//
// Parameters:
//   - desc: the surface descriptor from the window layer
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.surfaceDescriptor = desc
	}
}

// WithMaxBindGroups raises the MaxBindGroups device limit. Defaults to the
// spec default (4).
//
// Parameters:
//   - n: the bind group limit to request
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithMaxBindGroups(n uint32) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.maxBindGroups = n
	}
}

// NewWGPUDevice creates the webgpu device, requesting an adapter and queue.
// Panics if the adapter or device cannot be acquired, matching the engine's
// treatment of unrecoverable setup failures.
//
// Parameters:
//   - options: functional options to configure the device
//
// Returns:
//   - SurfaceDevice: the initialized device
func NewWGPUDevice(options ...WGPUDeviceOption) SurfaceDevice {
	runtime.LockOSThread()
	d := &wgpuDevice{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}
	for _, option := range options {
		option(d)
	}

	if d.surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(d.surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		panic(err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	if d.maxBindGroups > limits.MaxBindGroups {
		limits.MaxBindGroups = d.maxBindGroups
	}

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Graph Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		panic(err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	// The fallback adapter runs compute in software where indirect-draw
	// argument writes are not worth the overhead; everything else defaults to
	// the GPU-driven path unless the caller opts out.
	if d.forceLegacy || d.forceFallbackAdapter {
		d.profile = ProfileLegacy
	} else {
		d.profile = ProfileModern
	}

	return d
}

func (d *wgpuDevice) Profile() Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profile
}

func (d *wgpuDevice) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, wrapErr("create buffer "+label, err)
	}
	return buf, nil
}

func (d *wgpuDevice) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.WriteBuffer(buf, offset, data)
}

func (d *wgpuDevice) CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.device.CreateTexture(desc)
	if err != nil {
		return nil, wrapErr("create texture "+desc.Label, err)
	}
	return tex, nil
}

func (d *wgpuDevice) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout, err := d.device.CreateBindGroupLayout(desc)
	if err != nil {
		return nil, wrapErr("create bind group layout "+desc.Label, err)
	}
	return layout, nil
}

func (d *wgpuDevice) CreateBindGroup(label string, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, wrapErr("create bind group "+label, err)
	}
	return bg, nil
}

func (d *wgpuDevice) CreateComputePipeline(label, source, entryPoint string, layouts []*wgpu.BindGroupLayout) (*wgpu.ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, wrapErr("create shader module "+label, err)
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, wrapErr("create pipeline layout "+label, err)
	}

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return nil, wrapErr("create compute pipeline "+label, err)
	}
	return created, nil
}

func (d *wgpuDevice) CreatePipelineLayout(label string, layouts []*wgpu.BindGroupLayout) (*wgpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	created, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, wrapErr("create pipeline layout "+label, err)
	}
	return created, nil
}

func (d *wgpuDevice) CreateShaderModule(label, source string) (*wgpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, wrapErr("create shader module "+label, err)
	}
	return module, nil
}

func (d *wgpuDevice) CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	created, err := d.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, wrapErr("create render pipeline "+desc.Label, err)
	}
	return created, nil
}

func (d *wgpuDevice) NewRecorder(label string) (Recorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, wrapErr("create command encoder "+label, err)
	}
	return &wgpuRecorder{label: label, encoder: encoder}, nil
}

func (d *wgpuDevice) Submit(batches ...CommandBatch) error {
	return d.submit("submit", batches)
}

func (d *wgpuDevice) SubmitCompute(batches ...CommandBatch) error {
	// wgpu exposes a single unified queue; the separate entry point keeps the
	// compute-only batching explicit for devices that grow a second queue.
	return d.submit("submit compute", batches)
}

func (d *wgpuDevice) submit(op string, batches []CommandBatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buffers := make([]*wgpu.CommandBuffer, 0, len(batches))
	for _, b := range batches {
		wb, ok := b.(*wgpuBatch)
		if !ok {
			return wrapErr(op, errors.Errorf("foreign command batch %T", b))
		}
		buffers = append(buffers, wb.buffer)
	}

	d.queue.Submit(buffers...)

	for _, buf := range buffers {
		buf.Release()
	}
	return nil
}

func (d *wgpuDevice) OnWorkDone(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.OnSubmittedWorkDone(func(wgpu.QueueWorkDoneStatus) {
		fn()
	})
}

func (d *wgpuDevice) Poll(wait bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.device.Poll(wait, nil)
}

func (d *wgpuDevice) ConfigureSurface(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]

	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (d *wgpuDevice) SurfaceFormat() wgpu.TextureFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceFormat
}

func (d *wgpuDevice) AcquireFrame() (*wgpu.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return nil, wrapErr("acquire frame", errors.New("device is headless"))
	}
	if d.frameSurface != nil {
		return nil, wrapErr("acquire frame", errors.New("previous frame surface not yet presented"))
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, wrapErr("acquire frame", err)
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, wrapErr("acquire frame", err)
	}

	d.frameSurface = surfaceTexture
	d.frameView = view
	return view, nil
}

func (d *wgpuDevice) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return
	}
	d.surface.Present()
	d.frameView.Release()
	d.frameSurface.Release()
	d.frameView = nil
	d.frameSurface = nil
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
