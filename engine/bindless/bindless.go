// package bindless implements the slot table backing bindless resource access
// on the modern profile. Shaders index resources by stable slot number, so a
// slot must keep its index for as long as the registered object is alive and
// must never be handed out twice concurrently.
package bindless

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidSlot is returned for operations on a slot that is out of range or
// not currently registered.
var ErrInvalidSlot = fmt.Errorf("bindless: invalid slot")

// Entry pairs an occupied slot with its current descriptor, as handed to the
// rebuild hook after the table grows.
type Entry struct {
	Slot       uint32
	Descriptor any
}

// RebuildFunc recreates the device-side descriptor table at a new capacity.
// It receives every live entry so the device table can be repopulated; slot
// indices are unchanged by growth.
type RebuildFunc func(capacity uint32, entries []Entry) error

// Table is the interface for the bindless resource table.
type Table interface {
	// Register claims a slot for the given descriptor. Freed slots are reused
	// first; when the table is full it grows by doubling and the rebuild hook
	// runs before the new slot is returned.
	//
	// Parameters:
	//   - descriptor: the opaque per-resource descriptor stored in the slot
	//
	// Returns:
	//   - uint32: the stable slot index
	//   - error: a rebuild failure, leaving the table unchanged
	Register(descriptor any) (uint32, error)

	// Unregister releases a slot for later reuse.
	//
	// Parameters:
	//   - slot: the slot index returned by Register
	//
	// Returns:
	//   - error: ErrInvalidSlot if the slot is not registered
	Unregister(slot uint32) error

	// Update replaces the descriptor in a live slot without changing its
	// index.
	//
	// Parameters:
	//   - slot: the slot index returned by Register
	//   - descriptor: the replacement descriptor
	//
	// Returns:
	//   - error: ErrInvalidSlot if the slot is not registered
	Update(slot uint32, descriptor any) error

	// Descriptor returns the descriptor stored in a slot.
	//
	// Parameters:
	//   - slot: the slot index to read
	//
	// Returns:
	//   - any: the stored descriptor
	//   - bool: whether the slot is registered
	Descriptor(slot uint32) (any, bool)

	// Len returns the number of registered slots.
	Len() int

	// Capacity returns the current table capacity.
	Capacity() uint32
}

// table is the implementation of the Table interface.
type table struct {
	mu sync.Mutex

	descriptors []any
	live        []bool
	free        []uint32 // LIFO stack of released slots
	count       int

	rebuild RebuildFunc
}

var _ Table = &table{}

// TableOption is a functional option for configuring a Table.
type TableOption func(*table)

// WithInitialCapacity sets the table's starting capacity.
//
// Parameters:
//   - n: the initial slot count, rounded up to at least 1
//
// Returns:
//   - TableOption: option function to apply
func WithInitialCapacity(n uint32) TableOption {
	return func(t *table) {
		if n > 0 {
			t.descriptors = make([]any, n)
			t.live = make([]bool, n)
		}
	}
}

// WithRebuildFunc sets the hook invoked after the table grows, so the
// device-side descriptor array can be recreated at the new capacity.
//
// Parameters:
//   - fn: the rebuild hook
//
// Returns:
//   - TableOption: option function to apply
func WithRebuildFunc(fn RebuildFunc) TableOption {
	return func(t *table) {
		t.rebuild = fn
	}
}

// NewTable creates an empty bindless table.
//
// Parameters:
//   - options: functional options to configure the table
//
// Returns:
//   - Table: the newly created table
func NewTable(options ...TableOption) Table {
	t := &table{
		descriptors: make([]any, 16),
		live:        make([]bool, 16),
	}
	for _, option := range options {
		option(t)
	}
	// Seed the free stack so slot 0 is handed out first.
	t.free = make([]uint32, 0, len(t.descriptors))
	for i := len(t.descriptors) - 1; i >= 0; i-- {
		t.free = append(t.free, uint32(i))
	}
	return t
}

func (t *table) Register(descriptor any) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) == 0 {
		if err := t.grow(); err != nil {
			return 0, err
		}
	}

	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.descriptors[slot] = descriptor
	t.live[slot] = true
	t.count++
	return slot, nil
}

// grow doubles capacity and replays live entries through the rebuild hook.
// Existing slot indices are preserved; only new indices join the free stack.
func (t *table) grow() error {
	oldCap := uint32(len(t.descriptors))
	newCap := oldCap * 2
	if newCap == 0 {
		newCap = 16
	}

	if t.rebuild != nil {
		entries := make([]Entry, 0, t.count)
		for i, alive := range t.live {
			if alive {
				entries = append(entries, Entry{Slot: uint32(i), Descriptor: t.descriptors[i]})
			}
		}
		if err := t.rebuild(newCap, entries); err != nil {
			return errors.Wrap(err, "bindless: table rebuild failed")
		}
	}

	t.descriptors = append(t.descriptors, make([]any, newCap-oldCap)...)
	t.live = append(t.live, make([]bool, newCap-oldCap)...)
	for i := int(newCap) - 1; i >= int(oldCap); i-- {
		t.free = append(t.free, uint32(i))
	}
	return nil
}

func (t *table) Unregister(slot uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slot) >= len(t.live) || !t.live[slot] {
		return errors.Wrapf(ErrInvalidSlot, "unregister slot %d", slot)
	}
	t.descriptors[slot] = nil
	t.live[slot] = false
	t.count--
	t.free = append(t.free, slot)
	return nil
}

func (t *table) Update(slot uint32, descriptor any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slot) >= len(t.live) || !t.live[slot] {
		return errors.Wrapf(ErrInvalidSlot, "update slot %d", slot)
	}
	t.descriptors[slot] = descriptor
	return nil
}

func (t *table) Descriptor(slot uint32) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slot) >= len(t.live) || !t.live[slot] {
		return nil, false
	}
	return t.descriptors[slot], true
}

func (t *table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *table) Capacity() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(len(t.descriptors))
}
