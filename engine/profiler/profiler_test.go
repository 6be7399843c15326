package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndFrameLogsOnlyAfterInterval(t *testing.T) {
	p := NewProfiler(WithUpdateInterval(50 * time.Millisecond))

	p.BeginFrame()
	assert.False(t, p.EndFrame())

	time.Sleep(60 * time.Millisecond)

	p.BeginFrame()
	assert.True(t, p.EndFrame())
}

func TestEndFrameResetsAccumulators(t *testing.T) {
	p := NewProfiler(WithUpdateInterval(10 * time.Millisecond))
	p.NoteCapacityExceeded(3)
	p.NoteGraph(graph.Stats{Passes: 4, Barriers: 2, TransientResources: 1,
		PoolStats: transient_pool.Stats{SlotCount: 1, SlotBytes: 4096}})

	for range 5 {
		p.BeginFrame()
		p.EndFrame()
	}
	time.Sleep(15 * time.Millisecond)
	p.BeginFrame()
	require.True(t, p.EndFrame())

	assert.Equal(t, 0, p.frameCount)
	assert.Empty(t, p.durations)
	assert.Equal(t, 0, p.capacityEvents)
}

func TestPercentiles(t *testing.T) {
	p50, p99 := percentiles(nil)
	assert.Zero(t, p50)
	assert.Zero(t, p99)

	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	p50, p99 = percentiles(samples)
	assert.Equal(t, 51*time.Millisecond, p50)
	assert.Equal(t, 100*time.Millisecond, p99)
}
