// package transient_pool implements the aliasing allocator backing the frame
// graph's transient resources. Resources whose lifetime intervals do not
// overlap may share the same pooled slot of device memory; slots persist
// across frames so steady-state frames allocate nothing.
package transient_pool

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"
)

// Request describes one transient resource needing a slot for the current
// frame. Start and End are pass positions in scheduled order; the interval is
// inclusive on both ends.
type Request struct {
	// ID is the caller's identifier for the resource (the graph uses the
	// resource handle index). Must be unique within one Assign call.
	ID uint32
	// Size is the required capacity in bytes.
	Size uint64
	// Format is an opaque format tag; slots are only shared between resources
	// with identical Format.
	Format uint32
	// Usage is an opaque usage-flag tag; slots are only shared between
	// resources with identical Usage.
	Usage uint32
	// Start is the scheduled position of the first pass writing the resource.
	Start int
	// End is the scheduled position of the last pass reading the resource.
	End int
}

// Slot is a pooled block of device memory. The pool hands out the same *Slot
// value across frames, so device-layer payloads attached via SetPayload stay
// valid for the life of the pool.
type Slot struct {
	id       uint64
	capacity uint64
	format   uint32
	usage    uint32

	mu      sync.Mutex
	payload any

	// pooled marks a slot currently sitting in a free bucket. Guarded by the
	// owning pool's mutex, not the slot's.
	pooled bool
}

// ID returns the pool-unique slot identifier.
func (s *Slot) ID() uint64 { return s.id }

// Capacity returns the slot's byte capacity (the size class it was created in,
// which may exceed the size of any individual occupant).
func (s *Slot) Capacity() uint64 { return s.capacity }

// Format returns the opaque format tag the slot was created with.
func (s *Slot) Format() uint32 { return s.format }

// Usage returns the opaque usage tag the slot was created with.
func (s *Slot) Usage() uint32 { return s.usage }

// Payload returns the device-layer object attached to this slot, or nil.
func (s *Slot) Payload() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// SetPayload attaches a device-layer object (e.g. a *wgpu.Buffer) to the slot.
// The device layer calls this lazily the first time a slot is realized.
//
// Parameters:
//   - p: the device object to attach
func (s *Slot) SetPayload(p any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = p
}

// EnsurePayload returns the slot's payload, invoking create to produce it
// first if none is set. The check and the store happen under the slot's lock,
// so concurrent callers observe exactly one payload.
//
// Parameters:
//   - create: factory invoked at most once while the payload is unset
//
// Returns:
//   - any: the slot's payload
//   - error: the factory's error, leaving the payload unset
func (s *Slot) EnsurePayload(create func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload != nil {
		return s.payload, nil
	}
	p, err := create()
	if err != nil {
		return nil, err
	}
	s.payload = p
	return p, nil
}

// Stats reports pool occupancy for diagnostics.
type Stats struct {
	// SlotCount is the total number of slots the pool has ever created.
	SlotCount int
	// SlotBytes is the summed capacity of all slots.
	SlotBytes uint64
	// FrameAssignments is the number of resources assigned during the current
	// (or most recent) frame.
	FrameAssignments int
	// FrameReuses is how many of those assignments reused an existing slot
	// rather than allocating a new one.
	FrameReuses int
}

// Pool assigns transient resources to aliasable slots. One Pool instance
// belongs to one frame epoch; with multiple frames in flight each frame owns
// its own Pool so slots are never shared with a frame still executing.
//
// Usage per frame: BeginFrame, one Assign call with the scheduled intervals,
// then EndFrame once the frame's device work has completed.
type Pool interface {
	// BeginFrame starts a new assignment epoch. Any assignments from the
	// previous frame are released back to the free lists.
	BeginFrame()

	// Assign maps every request to a Slot such that requests with overlapping
	// intervals never share a slot. Requests are processed in increasing
	// interval-start order; freed slots are reused best-fit (smallest adequate
	// capacity with matching format and usage).
	//
	// Parameters:
	//   - requests: the transient resources of this frame, with lifetimes
	//
	// Returns:
	//   - map[uint32]*Slot: assignment keyed by Request.ID
	//   - error: if two requests share an ID or an interval is inverted
	Assign(requests []Request) (map[uint32]*Slot, error)

	// EndFrame releases the frame's assignments. Slots persist for reuse by
	// later frames; only the interval bookkeeping resets.
	EndFrame()

	// Stats returns occupancy counters for the current epoch.
	//
	// Returns:
	//   - Stats: the pool statistics snapshot
	Stats() Stats
}

// pool is the implementation of the Pool interface.
type pool struct {
	mu *sync.Mutex

	nextSlotID uint64
	slots      []*Slot

	// free holds slots available for reuse, keyed by format and usage. Each
	// bucket is kept sorted by ascending capacity so a linear scan finds the
	// best (smallest adequate) fit.
	free map[freeKey][]*Slot

	// assigned tracks the current frame's assignments alongside their
	// intervals, for release at EndFrame and for the overlap invariant check.
	assigned []assignment

	frameAssignments int
	frameReuses      int

	minSlotSize uint64
}

type freeKey struct {
	format uint32
	usage  uint32
}

type assignment struct {
	slot  *Slot
	start int
	end   int
}

var _ Pool = &pool{}

// PoolOption is a functional option for configuring a Pool.
type PoolOption func(*pool)

// WithMinSlotSize sets the smallest slot capacity the pool will create.
// Requests below this size are rounded up, improving reuse between many tiny
// transients at the cost of some padding. Defaults to 256 bytes.
//
// Parameters:
//   - size: the minimum slot capacity in bytes
//
// Returns:
//   - PoolOption: option function to apply
func WithMinSlotSize(size uint64) PoolOption {
	return func(p *pool) {
		if size > 0 {
			p.minSlotSize = size
		}
	}
}

// NewPool creates an empty Pool.
//
// Parameters:
//   - options: functional options to configure the pool
//
// Returns:
//   - Pool: the newly created pool
func NewPool(options ...PoolOption) Pool {
	p := &pool{
		mu:          &sync.Mutex{},
		free:        make(map[freeKey][]*Slot),
		minSlotSize: 256,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *pool) BeginFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.frameAssignments = 0
	p.frameReuses = 0
}

func (p *pool) EndFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

// releaseLocked returns every assigned slot to its free bucket.
func (p *pool) releaseLocked() {
	for _, a := range p.assigned {
		p.pushFreeLocked(a.slot)
	}
	p.assigned = p.assigned[:0]
}

// pushFreeLocked inserts a slot into its free bucket. A slot that served
// several disjoint occupants in one frame is released once per occupant, so
// the pooled flag keeps it from entering the bucket more than once.
func (p *pool) pushFreeLocked(s *Slot) {
	if s.pooled {
		return
	}
	s.pooled = true
	key := freeKey{format: s.format, usage: s.usage}
	bucket := p.free[key]
	idx := sort.Search(len(bucket), func(i int) bool { return bucket[i].capacity >= s.capacity })
	bucket = append(bucket, nil)
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = s
	p.free[key] = bucket
}

func (p *pool) Assign(requests []Request) (map[uint32]*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[uint32]struct{}, len(requests))
	for _, r := range requests {
		if r.End < r.Start {
			return nil, fmt.Errorf("transient_pool: inverted interval [%d, %d] for resource %d", r.Start, r.End, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("transient_pool: duplicate resource id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	// Process in increasing interval-start order; ties broken by ID so the
	// assignment is deterministic for identical input.
	sorted := make([]Request, len(requests))
	copy(sorted, requests)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].ID < sorted[j].ID
	})

	// active holds this Assign call's live occupancies, sorted by interval end
	// so expiry is a prefix pop.
	var active []assignment

	out := make(map[uint32]*Slot, len(sorted))
	for _, r := range sorted {
		// Expire occupants whose interval ended strictly before this start.
		i := 0
		for ; i < len(active); i++ {
			if active[i].end >= r.Start {
				break
			}
			p.pushFreeLocked(active[i].slot)
		}
		active = active[i:]

		slot := p.popBestFitLocked(r)
		if slot == nil {
			slot = p.newSlotLocked(r)
		} else {
			p.frameReuses++
		}
		p.frameAssignments++

		a := assignment{slot: slot, start: r.Start, end: r.End}
		idx := sort.Search(len(active), func(i int) bool { return active[i].end >= r.End })
		active = append(active, assignment{})
		copy(active[idx+1:], active[idx:])
		active[idx] = a

		p.assigned = append(p.assigned, a)
		out[r.ID] = slot
	}

	return out, nil
}

// popBestFitLocked removes and returns the smallest free slot that can hold
// the request, or nil when no compatible slot fits.
func (p *pool) popBestFitLocked(r Request) *Slot {
	key := freeKey{format: r.Format, usage: r.Usage}
	bucket := p.free[key]
	idx := sort.Search(len(bucket), func(i int) bool { return bucket[i].capacity >= r.Size })
	if idx == len(bucket) {
		return nil
	}
	s := bucket[idx]
	p.free[key] = append(bucket[:idx], bucket[idx+1:]...)
	s.pooled = false
	return s
}

// newSlotLocked creates a slot in the power-of-two size class covering the
// request, bounding fragmentation across differently sized transients.
func (p *pool) newSlotLocked(r Request) *Slot {
	capacity := sizeClass(r.Size)
	if capacity < p.minSlotSize {
		capacity = p.minSlotSize
	}
	p.nextSlotID++
	s := &Slot{
		id:       p.nextSlotID,
		capacity: capacity,
		format:   r.Format,
		usage:    r.Usage,
	}
	p.slots = append(p.slots, s)
	return s
}

func (p *pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{
		SlotCount:        len(p.slots),
		FrameAssignments: p.frameAssignments,
		FrameReuses:      p.frameReuses,
	}
	for _, s := range p.slots {
		st.SlotBytes += s.capacity
	}
	return st
}

// sizeClass rounds a byte size up to the next power of two.
func sizeClass(size uint64) uint64 {
	if size <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(size-1))
}
