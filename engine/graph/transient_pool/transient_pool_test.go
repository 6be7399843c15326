package transient_pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisjointIntervalsShareASlot(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	out, err := p.Assign([]Request{
		{ID: 1, Size: 1024, Start: 0, End: 1},
		{ID: 2, Size: 1024, Start: 2, End: 3},
	})
	require.NoError(t, err)

	assert.Same(t, out[1], out[2], "disjoint intervals with identical signatures should alias")
	assert.Equal(t, 1, p.Stats().SlotCount)
}

func TestOverlappingIntervalsNeverShare(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	out, err := p.Assign([]Request{
		{ID: 1, Size: 1024, Start: 0, End: 2},
		{ID: 2, Size: 1024, Start: 2, End: 4}, // inclusive ends: position 2 overlaps
		{ID: 3, Size: 1024, Start: 5, End: 6},
	})
	require.NoError(t, err)

	assert.NotSame(t, out[1], out[2])
	// 3 starts after both 1 and 2 ended, so it reuses one of their slots.
	assert.Equal(t, 2, p.Stats().SlotCount)
}

func TestSignatureMismatchNeverShares(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	out, err := p.Assign([]Request{
		{ID: 1, Size: 512, Format: 7, Usage: 1, Start: 0, End: 0},
		{ID: 2, Size: 512, Format: 8, Usage: 1, Start: 1, End: 1},
		{ID: 3, Size: 512, Format: 7, Usage: 2, Start: 2, End: 2},
	})
	require.NoError(t, err)

	assert.NotSame(t, out[1], out[2])
	assert.NotSame(t, out[1], out[3])
	assert.Equal(t, 3, p.Stats().SlotCount)
}

func TestBestFitPrefersSmallestAdequateSlot(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	// Frame 1 creates a small and a large slot.
	out, err := p.Assign([]Request{
		{ID: 1, Size: 256, Start: 0, End: 0},
		{ID: 2, Size: 1 << 20, Start: 0, End: 0},
	})
	require.NoError(t, err)
	small, large := out[1], out[2]

	p.EndFrame()
	p.BeginFrame()

	// A small request must take the small slot, not the megabyte one.
	out, err = p.Assign([]Request{{ID: 3, Size: 100, Start: 0, End: 0}})
	require.NoError(t, err)
	assert.Same(t, small, out[3])
	assert.NotSame(t, large, out[3])
}

func TestSlotsPersistAcrossFrames(t *testing.T) {
	p := NewPool()

	var firstFrame *Slot
	for frame := 0; frame < 10; frame++ {
		p.BeginFrame()
		out, err := p.Assign([]Request{{ID: 1, Size: 4096, Start: 0, End: 3}})
		require.NoError(t, err)
		if firstFrame == nil {
			firstFrame = out[1]
			firstFrame.SetPayload("device buffer")
		} else {
			assert.Same(t, firstFrame, out[1])
			assert.Equal(t, "device buffer", out[1].Payload())
		}
		p.EndFrame()
	}
	assert.Equal(t, 1, p.Stats().SlotCount)
}

func TestAssignRejectsBadInput(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	_, err := p.Assign([]Request{{ID: 1, Size: 16, Start: 3, End: 1}})
	assert.Error(t, err)

	_, err = p.Assign([]Request{
		{ID: 1, Size: 16, Start: 0, End: 1},
		{ID: 1, Size: 16, Start: 2, End: 3},
	})
	assert.Error(t, err)
}

func TestAssignDeterministicForIdenticalInput(t *testing.T) {
	reqs := []Request{
		{ID: 4, Size: 512, Start: 1, End: 4},
		{ID: 9, Size: 512, Start: 0, End: 0},
		{ID: 2, Size: 2048, Start: 2, End: 5},
		{ID: 7, Size: 512, Start: 5, End: 6},
	}

	run := func() map[uint32]uint64 {
		p := NewPool()
		p.BeginFrame()
		out, err := p.Assign(reqs)
		require.NoError(t, err)
		ids := make(map[uint32]uint64, len(out))
		for id, slot := range out {
			ids[id] = slot.ID()
		}
		return ids
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}

// TestMidFrameReuseDoesNotAliasNextFrame covers releasing a slot that served
// two disjoint occupants within one frame: the following frame's overlapping
// requests must still get distinct slots.
func TestMidFrameReuseDoesNotAliasNextFrame(t *testing.T) {
	p := NewPool()
	p.BeginFrame()

	out, err := p.Assign([]Request{
		{ID: 1, Size: 1024, Start: 0, End: 1},
		{ID: 2, Size: 1024, Start: 3, End: 4},
	})
	require.NoError(t, err)
	require.Same(t, out[1], out[2], "disjoint intervals should reuse the slot within the frame")

	p.EndFrame()
	p.BeginFrame()

	out, err = p.Assign([]Request{
		{ID: 1, Size: 1024, Start: 0, End: 5},
		{ID: 2, Size: 1024, Start: 0, End: 5},
	})
	require.NoError(t, err)
	assert.NotSame(t, out[1], out[2])

	p.EndFrame()
}

// TestRandomIntervalsNeverAlias is the aliasing-invariant property test:
// random interval sets are generated and every pair of requests assigned the
// same slot must have disjoint intervals. Each trial runs several consecutive
// frames against one pool so released slots re-enter the free lists between
// checks.
func TestRandomIntervalsNeverAlias(t *testing.T) {
	rng := rand.New(rand.NewSource(0x0c11))

	for trial := 0; trial < 200; trial++ {
		p := NewPool()
		frames := 1 + rng.Intn(4)
		for f := 0; f < frames; f++ {
			p.BeginFrame()

			n := 1 + rng.Intn(64)
			reqs := make([]Request, n)
			for i := range reqs {
				start := rng.Intn(32)
				reqs[i] = Request{
					ID:     uint32(i),
					Size:   uint64(1 + rng.Intn(8192)),
					Format: uint32(rng.Intn(3)),
					Usage:  uint32(rng.Intn(2)),
					Start:  start,
					End:    start + rng.Intn(8),
				}
			}

			out, err := p.Assign(reqs)
			require.NoError(t, err)

			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					a, b := reqs[i], reqs[j]
					if out[a.ID] != out[b.ID] {
						continue
					}
					overlap := a.Start <= b.End && b.Start <= a.End
					assert.False(t, overlap,
						"trial %d frame %d: resources %d [%d,%d] and %d [%d,%d] share slot %d",
						trial, f, a.ID, a.Start, a.End, b.ID, b.Start, b.End, out[a.ID].ID())
					assert.GreaterOrEqual(t, out[a.ID].Capacity(), a.Size)
					assert.GreaterOrEqual(t, out[b.ID].Capacity(), b.Size)
				}
			}

			p.EndFrame()
		}
	}
}
