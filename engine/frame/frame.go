// Package frame paces CPU frame production against GPU consumption. A Pacer
// bounds the number of frames in flight with a weighted semaphore; each
// acquired Frame owns a transient pool epoch so aliased slots are never shared
// with a frame the device is still executing.
package frame

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultFramesInFlight is how many frames may be in flight at once when no
// override is given.
const DefaultFramesInFlight = 2

// Frame is one acquired frame epoch. Exactly one of Finish or Abandon must be
// called; both are safe to call at most once.
type Frame struct {
	index uint64
	pool  transient_pool.Pool

	mu     sync.Mutex
	closed bool

	release func(pool transient_pool.Pool)
	dev     device.Device
}

// Index returns the monotonically increasing frame number.
//
// Returns:
//   - uint64: the frame index
func (f *Frame) Index() uint64 {
	return f.index
}

// Pool returns the transient pool epoch owned by this frame. Pass it to
// GraphBuilder.Compile.
//
// Returns:
//   - transient_pool.Pool: the frame's pool
func (f *Frame) Pool() transient_pool.Pool {
	return f.pool
}

// Finish marks the frame's device work as submitted. The frame's pool epoch
// and pacing permit are released once the device signals that the submitted
// work has completed, so aliased slots only return to the free lists after
// the GPU is done with them.
func (f *Frame) Finish() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	pool := f.pool
	release := f.release
	f.dev.OnWorkDone(func() {
		release(pool)
	})
}

// Abandon releases the frame immediately without waiting on the device. Use
// it when the frame produced no device work, such as a failed graph compile
// or a cancelled context.
func (f *Frame) Abandon() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.release(f.pool)
}

// Pacer hands out frame epochs while bounding how many are in flight.
type Pacer interface {
	// Acquire blocks until a frame permit is available, then opens a new frame
	// epoch.
	//
	// Parameters:
	//   - ctx: cancels the wait for a permit
	//
	// Returns:
	//   - *Frame: the acquired frame
	//   - error: if the context is cancelled before a permit frees up
	Acquire(ctx context.Context) (*Frame, error)

	// Drain blocks until every in-flight frame has been released.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//
	// Returns:
	//   - error: if the context is cancelled first
	Drain(ctx context.Context) error
}

// pacer is the implementation of the Pacer interface.
type pacer struct {
	mu *sync.Mutex

	dev     device.Device
	sem     *semaphore.Weighted
	pools   []transient_pool.Pool
	free    []transient_pool.Pool
	next    uint64
	permits int64
}

var _ Pacer = &pacer{}

// PacerOption is a functional option for configuring a Pacer.
type PacerOption func(*pacer)

// WithFramesInFlight sets how many frames may be in flight at once.
//
// Parameters:
//   - n: the frame permit count, must be at least 1
//
// Returns:
//   - PacerOption: option function to apply
func WithFramesInFlight(n int) PacerOption {
	return func(p *pacer) {
		if n >= 1 {
			p.permits = int64(n)
		}
	}
}

// NewPacer creates a Pacer for the given device. One transient pool is
// created per permit; pools rotate between frames so slot reuse stays within
// a single epoch.
//
// Parameters:
//   - dev: the device whose work-done signal gates frame release
//   - options: functional options to configure the pacer
//
// Returns:
//   - Pacer: the newly created pacer
//   - error: if the device is nil
func NewPacer(dev device.Device, options ...PacerOption) (Pacer, error) {
	if dev == nil {
		return nil, errors.New("pacer: device is required")
	}
	p := &pacer{
		mu:      &sync.Mutex{},
		dev:     dev,
		permits: DefaultFramesInFlight,
	}
	for _, option := range options {
		option(p)
	}
	p.sem = semaphore.NewWeighted(p.permits)
	p.pools = make([]transient_pool.Pool, p.permits)
	p.free = make([]transient_pool.Pool, 0, p.permits)
	for i := range p.pools {
		p.pools[i] = transient_pool.NewPool()
		p.free = append(p.free, p.pools[i])
	}
	return p, nil
}

func (p *pacer) Acquire(ctx context.Context) (*Frame, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "pacer: acquire frame permit")
	}

	p.mu.Lock()
	pool := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	index := p.next
	p.next++
	p.mu.Unlock()

	pool.BeginFrame()
	return &Frame{
		index:   index,
		pool:    pool,
		dev:     p.dev,
		release: p.releaseFrame,
	}, nil
}

func (p *pacer) Drain(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.permits); err != nil {
		return errors.Wrap(err, "pacer: drain")
	}
	p.sem.Release(p.permits)
	return nil
}

// releaseFrame returns a frame's pool to the free list and gives back its
// permit. Called from Finish's work-done callback or from Abandon.
func (p *pacer) releaseFrame(pool transient_pool.Pool) {
	pool.EndFrame()
	p.mu.Lock()
	p.free = append(p.free, pool)
	p.mu.Unlock()
	p.sem.Release(1)
}
