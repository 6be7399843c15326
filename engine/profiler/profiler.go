package profiler

import (
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/loov/hrtime"
)

// Profiler tracks frame timing, per-frame graph statistics, and memory
// statistics for performance monitoring. Outputs stats to the log at a
// configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastTotalAlloc uint64

	frameStart time.Duration
	durations  []time.Duration

	lastGraph      graph.Stats
	capacityEvents int
}

// ProfilerOption is a functional option for configuring a Profiler.
type ProfilerOption func(*Profiler)

// WithUpdateInterval sets how often Tick logs accumulated statistics.
//
// Parameters:
//   - d: the logging interval
//
// Returns:
//   - ProfilerOption: option function to apply
func WithUpdateInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// BeginFrame marks the start of a frame's CPU work.
func (p *Profiler) BeginFrame() {
	p.frameStart = hrtime.Now()
}

// NoteGraph records the compiled graph's statistics for the current frame.
//
// Parameters:
//   - stats: the plan statistics from the last compile
func (p *Profiler) NoteGraph(stats graph.Stats) {
	p.lastGraph = stats
}

// NoteCapacityExceeded counts culling capacity clamps since the last log line.
//
// Parameters:
//   - n: the number of clamp diagnostics raised this frame
func (p *Profiler) NoteCapacityExceeded(n int) {
	p.capacityEvents += n
}

// EndFrame closes the frame opened by BeginFrame and logs accumulated
// statistics when the update interval has elapsed: FPS, frame-time
// percentiles, graph shape, pool occupancy, clamp count, and heap churn.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) EndFrame() bool {
	p.durations = append(p.durations, hrtime.Now()-p.frameStart)
	p.frameCount++

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	p50, p99 := percentiles(p.durations)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	log.Printf("[Profiler] FPS: %.2f | Frame: p50 %.2f ms, p99 %.2f ms | Passes: %d | Barriers: %d | Transients: %d | Pool: %d slots / %.2f MB, %d reuses | Clamps: %d | Heap: %.2f MB | Alloc Rate: %.2f MB/s",
		fps,
		float64(p50.Microseconds())/1000,
		float64(p99.Microseconds())/1000,
		p.lastGraph.Passes,
		p.lastGraph.Barriers,
		p.lastGraph.TransientResources,
		p.lastGraph.PoolStats.SlotCount,
		float64(p.lastGraph.PoolStats.SlotBytes)/1024/1024,
		p.lastGraph.PoolStats.FrameReuses,
		p.capacityEvents,
		allocMB,
		allocRateMB,
	)

	p.frameCount = 0
	p.durations = p.durations[:0]
	p.capacityEvents = 0
	p.lastTime = currentTime
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// percentiles returns the 50th and 99th percentile of the sampled durations.
func percentiles(samples []time.Duration) (p50, p99 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 = sorted[len(sorted)/2]
	p99 = sorted[len(sorted)*99/100]
	return p50, p99
}
