package graph

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/graph/transient_pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFrame(t *testing.T, build func(b GraphBuilder)) (*ExecutionPlan, error) {
	t.Helper()
	pool := transient_pool.NewPool()
	pool.BeginFrame()
	b := NewGraphBuilder()
	build(b)
	plan, err := b.Compile(pool)
	pool.EndFrame()
	return plan, err
}

func orderOf(plan *ExecutionPlan) []string {
	names := make([]string, plan.Len())
	for i, e := range plan.Entries() {
		names[i] = e.Pass.Name()
	}
	return names
}

func TestCompileOrdersByAccessesNotRegistration(t *testing.T) {
	sig := ResourceSignature{Size: 1024}
	plan, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("r", sig)
		s := b.DeclareTransient("s", sig)
		// Registered out of order on purpose.
		b.AddPass(NewPass("c", WithReads(s)))
		b.AddPass(NewPass("a", WithWrites(r)))
		b.AddPass(NewPass("b", WithReads(r), WithWrites(s)))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, orderOf(plan))

	entries := plan.Entries()
	assert.Empty(t, entries[0].Waits)
	assert.Equal(t, []int{0}, entries[1].Waits)
	assert.Equal(t, []int{1}, entries[2].Waits)
}

func TestCompileIndependentPassesDoNotWait(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	plan, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("r", sig)
		s := b.DeclareTransient("s", sig)
		b.AddPass(NewPass("d", WithWrites(r)))
		b.AddPass(NewPass("e", WithWrites(s)))
	})
	require.NoError(t, err)
	require.Equal(t, 2, plan.Len())
	for _, e := range plan.Entries() {
		assert.Empty(t, e.Waits, "pass %s should not wait", e.Pass.Name())
	}
	assert.Equal(t, 0, plan.Stats().Barriers)
}

func TestCompileDropsTransitivelyImpliedWaits(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	plan, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("r", sig)
		s := b.DeclareTransient("s", sig)
		b.AddPass(NewPass("a", WithWrites(r)))
		b.AddPass(NewPass("b", WithReads(r), WithWrites(s)))
		// c depends on a directly and through b; only the wait on b survives.
		b.AddPass(NewPass("c", WithReads(r), WithReads(s)))
	})
	require.NoError(t, err)
	entries := plan.Entries()
	require.Equal(t, []string{"a", "b", "c"}, orderOf(plan))
	assert.Equal(t, []int{1}, entries[2].Waits)
	assert.Equal(t, 2, plan.Stats().Barriers)
}

func TestCompileCycleNamesParticipants(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	_, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("r", sig)
		s := b.DeclareTransient("s", sig)
		b.AddPass(NewPass("a", WithReads(s), WithWrites(r)))
		b.AddPass(NewPass("b", WithReads(r), WithWrites(s)))
	})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, BuildErrorCycle, buildErr.Kind)
	assert.ElementsMatch(t, []string{"a", "b"}, buildErr.Passes)
}

func TestCompileUnproducedTransientRead(t *testing.T) {
	_, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("orphan", ResourceSignature{Size: 64})
		b.AddPass(NewPass("reader", WithReads(r)))
	})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, BuildErrorUnproduced, buildErr.Kind)
	assert.Equal(t, "orphan", buildErr.Resource)
	assert.Equal(t, []string{"reader"}, buildErr.Passes)
}

func TestCompileZeroHandleFails(t *testing.T) {
	_, err := compileFrame(t, func(b GraphBuilder) {
		b.AddPass(NewPass("broken", WithReads(ResourceHandle{})))
	})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, BuildErrorInvalidHandle, buildErr.Kind)
	assert.Equal(t, []string{"broken"}, buildErr.Passes)
}

func TestCompileConflictingRedeclaration(t *testing.T) {
	_, err := compileFrame(t, func(b GraphBuilder) {
		b.DeclareTransient("r", ResourceSignature{Size: 64})
		b.DeclareTransient("r", ResourceSignature{Size: 128})
	})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, BuildErrorConflict, buildErr.Kind)
	assert.Equal(t, "r", buildErr.Resource)
}

func TestCompileIdenticalRedeclarationSharesHandle(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	plan, err := compileFrame(t, func(b GraphBuilder) {
		first := b.DeclareTransient("shared", sig)
		second := b.DeclareTransient("shared", sig)
		assert.Equal(t, first, second)
		b.AddPass(NewPass("w", WithWrites(first)))
		b.AddPass(NewPass("r", WithReads(second)))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "r"}, orderOf(plan))
	assert.Equal(t, 1, plan.Stats().TransientResources)
}

func TestCompileZeroResourcePassWarns(t *testing.T) {
	plan, err := compileFrame(t, func(b GraphBuilder) {
		b.AddPass(NewPass("idle"))
	})
	require.NoError(t, err)
	require.Len(t, plan.Warnings(), 1)
	assert.Contains(t, plan.Warnings()[0], "idle")
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func(b GraphBuilder) {
		sig := ResourceSignature{Size: 256}
		r := b.DeclareTransient("r", sig)
		s := b.DeclareTransient("s", sig)
		u := b.DeclareTransient("u", sig)
		b.AddPass(NewPass("p3", WithReads(s), WithWrites(u)))
		b.AddPass(NewPass("p1", WithWrites(r)))
		b.AddPass(NewPass("p4", WithReads(u)))
		b.AddPass(NewPass("p2", WithReads(r), WithWrites(s)))
	}

	first, err := compileFrame(t, build)
	require.NoError(t, err)
	second, err := compileFrame(t, build)
	require.NoError(t, err)

	assert.Equal(t, orderOf(first), orderOf(second))
	for i := range first.Entries() {
		assert.Equal(t, first.Entries()[i].Waits, second.Entries()[i].Waits)
	}
	assert.Equal(t, first.Lifetimes(), second.Lifetimes())
}

func TestCompileDisjointLifetimesShareSlot(t *testing.T) {
	pool := transient_pool.NewPool()
	sig := ResourceSignature{Size: 512}

	pool.BeginFrame()
	b := NewGraphBuilder()
	early := b.DeclareTransient("early", sig)
	late := b.DeclareTransient("late", sig)
	b.AddPass(NewPass("p0", WithWrites(early)))
	b.AddPass(NewPass("p1", WithReads(early)))
	b.AddPass(NewPass("p2", WithWrites(late)))
	b.AddPass(NewPass("p3", WithReads(late)))
	plan, err := b.Compile(pool)
	pool.EndFrame()
	require.NoError(t, err)

	var slots []uint64
	for _, e := range plan.Entries() {
		for _, phys := range e.Bindings {
			require.NotNil(t, phys.Slot)
			slots = append(slots, phys.Slot.ID())
		}
	}
	require.Len(t, slots, 4)
	assert.Equal(t, slots[0], slots[2], "disjoint intervals should alias one slot")
	assert.Equal(t, 1, plan.Stats().PoolStats.SlotCount)
}

func TestCompileLifetimeIntervals(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	var handle ResourceHandle
	plan, err := compileFrame(t, func(b GraphBuilder) {
		handle = b.DeclareTransient("depth", sig)
		b.AddPass(NewPass("prepass", WithWrites(handle)))
		b.AddPass(NewPass("shade", WithReads(handle)))
		b.AddPass(NewPass("post", WithReads(handle)))
	})
	require.NoError(t, err)
	interval, ok := plan.Lifetimes()[handle]
	require.True(t, ok)
	assert.Equal(t, 0, interval.FirstWrite)
	assert.Equal(t, 2, interval.LastRead)
}

func TestCompileBindsPersistentExternal(t *testing.T) {
	type fakeBuffer struct{ tag string }
	external := &fakeBuffer{tag: "scene-objects"}

	plan, err := compileFrame(t, func(b GraphBuilder) {
		h := b.ImportPersistent("objects", external)
		b.AddPass(NewPass("cull", WithReads(h), WithComputeOnly()))
	})
	require.NoError(t, err)
	entry := plan.Entries()[0]
	assert.True(t, entry.Pass.ComputeOnly())
	require.Len(t, entry.Bindings, 1)
	for _, phys := range entry.Bindings {
		assert.Nil(t, phys.Slot)
		assert.Same(t, external, phys.External)
		assert.Equal(t, "objects", phys.Name)
	}
}

func TestCompileWriteAfterWriteKeepsDeclarationOrder(t *testing.T) {
	sig := ResourceSignature{Size: 64}
	plan, err := compileFrame(t, func(b GraphBuilder) {
		r := b.DeclareTransient("accum", sig)
		b.AddPass(NewPass("first", WithWrites(r)))
		b.AddPass(NewPass("second", WithReadWrites(r)))
		b.AddPass(NewPass("third", WithReadWrites(r)))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, orderOf(plan))
}
