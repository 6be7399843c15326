package frame

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fenceDevice queues OnWorkDone callbacks so tests control when the device
// "completes" submitted work.
type fenceDevice struct {
	mu      sync.Mutex
	pending []func()
}

var _ device.Device = &fenceDevice{}

func (d *fenceDevice) Profile() device.Profile { return device.ProfileModern }
func (d *fenceDevice) CreateBuffer(string, uint64, wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return &wgpu.Buffer{}, nil
}
func (d *fenceDevice) WriteBuffer(*wgpu.Buffer, uint64, []byte) {}
func (d *fenceDevice) CreateTexture(*wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	return &wgpu.Texture{}, nil
}
func (d *fenceDevice) CreateBindGroupLayout(*wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	return &wgpu.BindGroupLayout{}, nil
}
func (d *fenceDevice) CreateBindGroup(string, *wgpu.BindGroupLayout, []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	return &wgpu.BindGroup{}, nil
}
func (d *fenceDevice) CreateComputePipeline(string, string, string, []*wgpu.BindGroupLayout) (*wgpu.ComputePipeline, error) {
	return &wgpu.ComputePipeline{}, nil
}
func (d *fenceDevice) CreatePipelineLayout(string, []*wgpu.BindGroupLayout) (*wgpu.PipelineLayout, error) {
	return &wgpu.PipelineLayout{}, nil
}
func (d *fenceDevice) CreateShaderModule(string, string) (*wgpu.ShaderModule, error) {
	return &wgpu.ShaderModule{}, nil
}
func (d *fenceDevice) CreateRenderPipeline(*wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	return &wgpu.RenderPipeline{}, nil
}
func (d *fenceDevice) NewRecorder(string) (device.Recorder, error) { return nil, nil }
func (d *fenceDevice) Submit(...device.CommandBatch) error         { return nil }
func (d *fenceDevice) SubmitCompute(...device.CommandBatch) error  { return nil }
func (d *fenceDevice) OnWorkDone(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, fn)
}
func (d *fenceDevice) Poll(bool) {}
func (d *fenceDevice) Release()  {}

// signal fires the oldest queued work-done callback.
func (d *fenceDevice) signal() {
	d.mu.Lock()
	fn := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()
	fn()
}

func TestNewPacerRequiresDevice(t *testing.T) {
	_, err := NewPacer(nil)
	require.Error(t, err)
}

func TestAcquireAssignsMonotonicIndices(t *testing.T) {
	dev := &fenceDevice{}
	p, err := NewPacer(dev, WithFramesInFlight(3))
	require.NoError(t, err)

	ctx := context.Background()
	for want := range 3 {
		f, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(want), f.Index())
		require.NotNil(t, f.Pool())
		f.Abandon()
	}
}

func TestAcquireBlocksAtFrameLimit(t *testing.T) {
	dev := &fenceDevice{}
	p, err := NewPacer(dev, WithFramesInFlight(2))
	require.NoError(t, err)

	ctx := context.Background()
	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	a.Abandon()
	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Index())

	b.Abandon()
	c.Abandon()
}

func TestFinishReleasesOnlyAfterWorkDone(t *testing.T) {
	dev := &fenceDevice{}
	p, err := NewPacer(dev, WithFramesInFlight(1))
	require.NoError(t, err)

	ctx := context.Background()
	f, err := p.Acquire(ctx)
	require.NoError(t, err)
	f.Finish()

	// The permit is still held until the device signals.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	dev.signal()
	next, err := p.Acquire(ctx)
	require.NoError(t, err)
	next.Abandon()
}

func TestFinishAndAbandonAreIdempotent(t *testing.T) {
	dev := &fenceDevice{}
	p, err := NewPacer(dev, WithFramesInFlight(1))
	require.NoError(t, err)

	f, err := p.Acquire(context.Background())
	require.NoError(t, err)
	f.Abandon()
	f.Abandon()
	f.Finish()

	// One release total: exactly one permit is available again.
	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	g.Abandon()
}

func TestDrainWaitsForInFlightFrames(t *testing.T) {
	dev := &fenceDevice{}
	p, err := NewPacer(dev, WithFramesInFlight(2))
	require.NoError(t, err)

	ctx := context.Background()
	f, err := p.Acquire(ctx)
	require.NoError(t, err)
	f.Finish()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Drain(short), context.DeadlineExceeded)

	dev.signal()
	require.NoError(t, p.Drain(ctx))
}
