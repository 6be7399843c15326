package graph

import (
	"container/heap"
	"sort"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
)

// schedule holds the intermediate results of graph compilation: the stable
// topological order, per-pass minimal wait lists, and transient lifetimes.
type schedule struct {
	b *builder

	// order maps execution position -> declaration index.
	order []int
	// posOf maps declaration index -> execution position.
	posOf []int
	// waits maps execution position -> minimal predecessor positions.
	waits [][]int

	lifetimes map[ResourceHandle]LifetimeInterval
}

// resourceUse collects which passes (by declaration index) touch a resource.
type resourceUse struct {
	writers []int // declaration order, preserved for write-after-write ties
	readers []int
}

// newSchedule resolves the builder's declarations into a schedule, or fails
// with a *BuildError.
func newSchedule(b *builder) (*schedule, error) {
	n := len(b.passes)

	uses := make(map[uint32]*resourceUse)
	for _, p := range b.passes {
		for _, acc := range p.Accesses() {
			// Zero-value handles (or handles from another builder) must fail
			// here, not panic during binding.
			if acc.Handle.index == 0 || int(acc.Handle.index) > len(b.resources) {
				return nil, &BuildError{Kind: BuildErrorInvalidHandle, Passes: []string{p.Name()}}
			}
		}
	}
	for declIdx, p := range b.passes {
		for _, acc := range p.Accesses() {
			u := uses[acc.Handle.index]
			if u == nil {
				u = &resourceUse{}
				uses[acc.Handle.index] = u
			}
			if acc.Mode.writes() {
				u.writers = append(u.writers, declIdx)
			}
			if acc.Mode.reads() {
				u.readers = append(u.readers, declIdx)
			}
		}
	}

	// A transient read with no producer is fatal here, not at execution time.
	for idx, u := range uses {
		rec := &b.resources[idx-1]
		if rec.lifetime == LifetimeTransient && len(u.writers) == 0 && len(u.readers) > 0 {
			names := make([]string, 0, len(u.readers))
			for _, r := range u.readers {
				names = append(names, b.passes[r].Name())
			}
			sort.Strings(names)
			return nil, &BuildError{Kind: BuildErrorUnproduced, Resource: rec.name, Passes: names}
		}
	}

	// Dependency edges: every writer precedes every reader of the same
	// resource, and writers of the same resource are chained in declaration
	// order (write-after-write). Reads do not order against later writers;
	// the edge rules are exactly write->read plus the write chain.
	adj := make([][]int, n)
	seen := make([]map[int]struct{}, n)
	indegree := make([]int, n)
	addEdge := func(from, to int) {
		if from == to {
			return
		}
		if seen[from] == nil {
			seen[from] = make(map[int]struct{})
		}
		if _, dup := seen[from][to]; dup {
			return
		}
		seen[from][to] = struct{}{}
		adj[from] = append(adj[from], to)
		indegree[to]++
	}
	for _, u := range uses {
		for i := 1; i < len(u.writers); i++ {
			addEdge(u.writers[i-1], u.writers[i])
		}
		for _, w := range u.writers {
			for _, r := range u.readers {
				addEdge(w, r)
			}
		}
	}

	if cycle := findCycle(adj, n); cycle != nil {
		names := make([]string, len(cycle))
		for i, declIdx := range cycle {
			names[i] = b.passes[declIdx].Name()
		}
		return nil, &BuildError{Kind: BuildErrorCycle, Passes: names}
	}

	s := &schedule{
		b:     b,
		order: make([]int, 0, n),
		posOf: make([]int, n),
	}

	// Stable topological sort: among ready passes always pick the smallest
	// declaration index, making the output deterministic for identical input.
	ready := &intHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}
	for ready.Len() > 0 {
		declIdx := heap.Pop(ready).(int)
		s.posOf[declIdx] = len(s.order)
		s.order = append(s.order, declIdx)
		for _, next := range adj[declIdx] {
			indegree[next]--
			if indegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	s.computeLifetimes(uses)
	s.computeWaits(adj)
	return s, nil
}

// computeLifetimes derives each transient resource's [first-write, last-read]
// interval from the sorted order. A trailing write with no later read extends
// the interval, since the slot is occupied through that write.
func (s *schedule) computeLifetimes(uses map[uint32]*resourceUse) {
	s.lifetimes = make(map[ResourceHandle]LifetimeInterval)
	for idx, u := range uses {
		rec := &s.b.resources[idx-1]
		if rec.lifetime != LifetimeTransient || len(u.writers) == 0 {
			continue
		}
		interval := LifetimeInterval{FirstWrite: len(s.order), LastRead: -1}
		for _, w := range u.writers {
			pos := s.posOf[w]
			if pos < interval.FirstWrite {
				interval.FirstWrite = pos
			}
			if pos > interval.LastRead {
				interval.LastRead = pos
			}
		}
		for _, r := range u.readers {
			if pos := s.posOf[r]; pos > interval.LastRead {
				interval.LastRead = pos
			}
		}
		s.lifetimes[ResourceHandle{index: idx, lifetime: LifetimeTransient}] = interval
	}
}

// computeWaits converts dependency edges into per-pass wait lists, keeping
// only the minimal predecessor set: a wait already implied transitively by
// another wait is dropped, avoiding barrier-per-edge over-synchronization.
func (s *schedule) computeWaits(adj [][]int) {
	n := len(s.order)
	s.waits = make([][]int, n)

	// deps in position space
	deps := make([][]int, n)
	for from, edges := range adj {
		for _, to := range edges {
			deps[s.posOf[to]] = append(deps[s.posOf[to]], s.posOf[from])
		}
	}

	words := (n + 63) / 64
	ancestors := make([][]uint64, n)
	for pos := 0; pos < n; pos++ {
		anc := make([]uint64, words)
		for _, d := range deps[pos] {
			anc[d/64] |= 1 << (uint(d) % 64)
			for w, bits := range ancestors[d] {
				anc[w] |= bits
			}
		}
		ancestors[pos] = anc

		minimal := make([]int, 0, len(deps[pos]))
		for _, d := range deps[pos] {
			implied := false
			for _, other := range deps[pos] {
				if other == d {
					continue
				}
				if ancestors[other][d/64]&(1<<(uint(d)%64)) != 0 {
					implied = true
					break
				}
			}
			if !implied {
				minimal = append(minimal, d)
			}
		}
		sort.Ints(minimal)
		s.waits[pos] = minimal
	}
}

// assignSlots feeds the transient lifetimes through the pool's allocation
// algorithm, returning the slot for each transient resource index.
func (s *schedule) assignSlots(pool transient_pool.Pool) (map[uint32]*transient_pool.Slot, error) {
	requests := make([]transient_pool.Request, 0, len(s.lifetimes))
	for h, interval := range s.lifetimes {
		rec := &s.b.resources[h.index-1]
		requests = append(requests, transient_pool.Request{
			ID:     h.index,
			Size:   rec.signature.Size,
			Format: rec.signature.Format,
			Usage:  rec.signature.Usage,
			Start:  interval.FirstWrite,
			End:    interval.LastRead,
		})
	}
	return pool.Assign(requests)
}

// findCycle runs DFS coloring over the adjacency list and returns the
// declaration indices of one cycle, or nil if the graph is acyclic.
func findCycle(adj [][]int, n int) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, n)
	var stack []int
	var cycle []int

	var visit func(v int) bool
	visit = func(v int) bool {
		color[v] = gray
		stack = append(stack, v)
		for _, next := range adj[v] {
			switch color[next] {
			case gray:
				// Found a back edge; the cycle is the stack suffix from next.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle = append(cycle, stack[i:]...)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[v] = black
		return false
	}

	for v := 0; v < n; v++ {
		if color[v] == white && visit(v) {
			return cycle
		}
	}
	return nil
}

// intHeap is a min-heap of declaration indices.
type intHeap []int

func (h intHeap) Len() int            { return len(h) }
func (h intHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
