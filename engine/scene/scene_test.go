package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/bindless"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangleMesh(t *testing.T, s Scene) uint32 {
	t.Helper()
	id, err := s.RegisterMesh(
		[][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]uint32{0, 1, 2},
	)
	require.NoError(t, err)
	return id
}

func identity() [16]float32 {
	m := make([]float32, 16)
	common.Identity(m)
	var out [16]float32
	copy(out[:], m)
	return out
}

func translated(x float32) [16]float32 {
	m := identity()
	m[12] = x
	return m
}

func TestRegisterMeshValidatesGeometry(t *testing.T) {
	s := NewScene()
	_, err := s.RegisterMesh(nil, nil)
	assert.Error(t, err)

	_, err = s.RegisterMesh([][3]float32{{0, 0, 0}}, []uint32{0, 0})
	assert.Error(t, err, "index count not a multiple of 3")

	_, err = s.RegisterMesh([][3]float32{{0, 0, 0}}, []uint32{0, 1, 2})
	assert.Error(t, err, "index out of range")
}

func TestAddUpdateRemoveObject(t *testing.T) {
	s := NewScene()
	meshID := triangleMesh(t, s)

	id, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Material: 3, Transform: identity()})
	require.NoError(t, err)
	assert.Equal(t, 1, s.ObjectCount())
	assert.Equal(t, 1, s.TotalClusterCount())

	require.NoError(t, s.UpdateTransform(id, translated(5)))
	records, _ := s.SnapshotGPU()
	require.Len(t, records, 1)
	assert.Equal(t, float32(5), records[0].Model[12])

	require.NoError(t, s.RemoveObject(id))
	assert.Equal(t, 0, s.ObjectCount())
	assert.Equal(t, 0, s.TotalClusterCount())
	assert.Error(t, s.RemoveObject(id))
	assert.Error(t, s.UpdateTransform(id, identity()))
}

func TestAddObjectUnknownMesh(t *testing.T) {
	s := NewScene()
	_, err := s.AddObject(ObjectDescriptor{Mesh: 99})
	assert.Error(t, err)
}

func TestRemovalCompactsRegistrationOrder(t *testing.T) {
	s := NewScene()
	meshID := triangleMesh(t, s)

	var ids []uuid.UUID
	for i := range 3 {
		id, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Transform: translated(float32(i) * 10)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, s.RemoveObject(ids[1]))
	require.Equal(t, 2, s.ObjectCount())

	// Survivors keep their relative order and stay addressable.
	records, _ := s.SnapshotGPU()
	require.Len(t, records, 2)
	assert.Equal(t, float32(0), records[0].Model[12])
	assert.Equal(t, float32(20), records[1].Model[12])
	require.NoError(t, s.UpdateTransform(ids[2], translated(30)))
}

func TestSnapshotGPUClusterIndexing(t *testing.T) {
	s := NewScene(WithClusterTriangles(1))
	meshID, err := s.RegisterMesh(
		[][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		[]uint32{0, 1, 2, 1, 3, 2},
	)
	require.NoError(t, err)

	for range 2 {
		_, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Transform: identity()})
		require.NoError(t, err)
	}

	records, clusters := s.SnapshotGPU()
	require.Len(t, records, 2)
	require.Len(t, clusters, 4)
	assert.Equal(t, uint32(0), records[0].FirstCluster)
	assert.Equal(t, uint32(2), records[0].ClusterCount)
	assert.Equal(t, uint32(2), records[1].FirstCluster)
	assert.Equal(t, uint32(2), records[1].ClusterCount)
	assert.Equal(t, 4, s.TotalClusterCount())
}

func TestSnapshotGPUWorldSpaceBounds(t *testing.T) {
	s := NewScene()
	meshID := triangleMesh(t, s)
	_, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Transform: translated(100)})
	require.NoError(t, err)

	records, _ := s.SnapshotGPU()
	require.Len(t, records, 1)
	assert.InDelta(t, 100.5, records[0].BoundingSphere[0], 1e-3)
}

func TestBindlessSlotLifecycle(t *testing.T) {
	table := bindless.NewTable(bindless.WithInitialCapacity(4))
	s := NewScene(WithBindlessTable(table))
	meshID := triangleMesh(t, s)

	a, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Material: 1, Transform: identity()})
	require.NoError(t, err)
	b, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Material: 2, Transform: identity()})
	require.NoError(t, err)

	slotA, ok := s.BindlessSlot(a)
	require.True(t, ok)
	slotB, ok := s.BindlessSlot(b)
	require.True(t, ok)
	assert.NotEqual(t, slotA, slotB)

	desc, ok := table.Descriptor(slotB)
	require.True(t, ok)
	assert.Equal(t, b, desc.(BindlessObject).Object)

	require.NoError(t, s.RemoveObject(a))
	_, ok = table.Descriptor(slotA)
	assert.False(t, ok, "removed object's slot is released")
	assert.Equal(t, 1, table.Len())
}

func TestSnapshotCPUCarriesBatchKeys(t *testing.T) {
	s := NewScene()
	meshID := triangleMesh(t, s)
	_, err := s.AddObject(ObjectDescriptor{Mesh: meshID, Material: 7, Transform: identity()})
	require.NoError(t, err)

	instances := s.SnapshotCPU()
	require.Len(t, instances, 1)
	assert.Equal(t, meshID, instances[0].Mesh)
	assert.Equal(t, uint32(7), instances[0].Material)
	assert.Equal(t, uint32(0), instances[0].Object)
}

func TestMergedGeometryOffsets(t *testing.T) {
	s := NewScene()
	first := triangleMesh(t, s)
	second, err := s.RegisterMesh(
		[][3]float32{{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0}},
		[]uint32{0, 1, 2, 0, 2, 3},
	)
	require.NoError(t, err)

	positions, indices := s.Geometry()
	require.Len(t, positions, 7)
	require.Len(t, indices, 9)
	assert.Equal(t, [3]float32{2, 2, 0}, positions[5], "second mesh follows the first")
	assert.Equal(t, []uint32{0, 1, 2}, indices[:3], "indices stay mesh-local")

	ranges := s.MeshRanges()
	assert.Equal(t, MeshRange{FirstIndex: 0, IndexCount: 3, BaseVertex: 0}, ranges[first])
	assert.Equal(t, MeshRange{FirstIndex: 3, IndexCount: 6, BaseVertex: 3}, ranges[second])
}

func TestSnapshotGPUCarriesGeometryOffsets(t *testing.T) {
	s := NewScene()
	_ = triangleMesh(t, s)
	second, err := s.RegisterMesh(
		[][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		[]uint32{0, 1, 2},
	)
	require.NoError(t, err)
	_, err = s.AddObject(ObjectDescriptor{Mesh: second, Transform: identity()})
	require.NoError(t, err)

	records, _ := s.SnapshotGPU()
	require.Len(t, records, 1)
	assert.Equal(t, int32(3), records[0].BaseVertex)
	assert.Equal(t, uint32(3), records[0].FirstIndex)
}
