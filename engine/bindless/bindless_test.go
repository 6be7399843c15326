package bindless

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandsOutDistinctSlots(t *testing.T) {
	tbl := NewTable(WithInitialCapacity(4))
	seen := make(map[uint32]bool)
	for i := 0; i < 4; i++ {
		slot, err := tbl.Register(fmt.Sprintf("tex-%d", i))
		require.NoError(t, err)
		assert.False(t, seen[slot], "slot %d handed out twice", slot)
		seen[slot] = true
	}
	assert.Equal(t, 4, tbl.Len())
}

func TestSlotStableWhileAlive(t *testing.T) {
	tbl := NewTable(WithInitialCapacity(2))
	slot, err := tbl.Register("albedo")
	require.NoError(t, err)

	// Growth and churn around the slot must not move it.
	for i := 0; i < 20; i++ {
		other, err := tbl.Register(i)
		require.NoError(t, err)
		require.NotEqual(t, slot, other)
	}
	desc, ok := tbl.Descriptor(slot)
	require.True(t, ok)
	assert.Equal(t, "albedo", desc)
}

func TestUnregisterReleasesForReuse(t *testing.T) {
	tbl := NewTable(WithInitialCapacity(8))
	slot, err := tbl.Register("a")
	require.NoError(t, err)
	require.NoError(t, tbl.Unregister(slot))

	// Freed slots come back LIFO, so the next registration reuses it.
	next, err := tbl.Register("b")
	require.NoError(t, err)
	assert.Equal(t, slot, next)

	desc, ok := tbl.Descriptor(next)
	require.True(t, ok)
	assert.Equal(t, "b", desc)
}

func TestSlotChurnNeverAliasesLiveSlots(t *testing.T) {
	tbl := NewTable(WithInitialCapacity(4))
	live := make(map[uint32]int)
	for i := 0; i < 200; i++ {
		slot, err := tbl.Register(i)
		require.NoError(t, err)
		_, taken := live[slot]
		require.False(t, taken, "slot %d reused while alive", slot)
		live[slot] = i

		if i%3 == 0 {
			require.NoError(t, tbl.Unregister(slot))
			delete(live, slot)
		}
	}
	for slot, want := range live {
		got, ok := tbl.Descriptor(slot)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, len(live), tbl.Len())
}

func TestGrowDoublesAndRebuilds(t *testing.T) {
	var rebuiltCap uint32
	var rebuiltEntries []Entry
	tbl := NewTable(
		WithInitialCapacity(2),
		WithRebuildFunc(func(capacity uint32, entries []Entry) error {
			rebuiltCap = capacity
			rebuiltEntries = entries
			return nil
		}),
	)

	_, err := tbl.Register("a")
	require.NoError(t, err)
	_, err = tbl.Register("b")
	require.NoError(t, err)
	require.Zero(t, rebuiltCap, "no rebuild before the table is full")

	_, err = tbl.Register("c")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), rebuiltCap)
	assert.Len(t, rebuiltEntries, 2)
	assert.Equal(t, uint32(4), tbl.Capacity())
}

func TestGrowFailureLeavesTableUsable(t *testing.T) {
	boom := fmt.Errorf("device out of memory")
	tbl := NewTable(
		WithInitialCapacity(1),
		WithRebuildFunc(func(uint32, []Entry) error { return boom }),
	)

	slot, err := tbl.Register("a")
	require.NoError(t, err)

	_, err = tbl.Register("b")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint32(1), tbl.Capacity())

	// The existing slot is untouched by the failed growth.
	desc, ok := tbl.Descriptor(slot)
	require.True(t, ok)
	assert.Equal(t, "a", desc)
}

func TestInvalidSlotOperations(t *testing.T) {
	tbl := NewTable(WithInitialCapacity(2))
	assert.ErrorIs(t, tbl.Unregister(7), ErrInvalidSlot)
	assert.ErrorIs(t, tbl.Update(0, "x"), ErrInvalidSlot)

	slot, err := tbl.Register("a")
	require.NoError(t, err)
	require.NoError(t, tbl.Unregister(slot))
	assert.ErrorIs(t, errors.Cause(tbl.Unregister(slot)), ErrInvalidSlot)
}

func TestUpdateReplacesDescriptorInPlace(t *testing.T) {
	tbl := NewTable()
	slot, err := tbl.Register("old")
	require.NoError(t, err)
	require.NoError(t, tbl.Update(slot, "new"))

	desc, ok := tbl.Descriptor(slot)
	require.True(t, ok)
	assert.Equal(t, "new", desc)
}
