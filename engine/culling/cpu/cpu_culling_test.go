package cpu_culling

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrustum returns a frustum for a camera at (0, 0, 10) looking at the
// origin down -Z, 60 degree vertical FOV.
func testFrustum() common.Frustum {
	proj := make([]float32, 16)
	view := make([]float32, 16)
	viewProj := make([]float32, 16)
	common.Perspective(proj, 1.0472, 1.0, 0.1, 1000)
	common.LookAt(view, 0, 0, 10, 0, 0, 0, 0, 1, 0)
	common.Mul4(viewProj, proj, view)
	return common.ExtractFrustumFromMatrix(viewProj)
}

func instanceAt(object, mesh, material uint32, x, y, z float32) Instance {
	model := make([]float32, 16)
	common.BuildModelMatrix(model, x, y, z, 0, 0, 0, 1, 1, 1)
	var m [16]float32
	copy(m[:], model)
	return Instance{
		Object:   object,
		Mesh:     mesh,
		Material: material,
		Model:    m,
		Bounds:   common.Sphere{Radius: 1},
	}
}

func TestCullKeepsInsideDropsOutside(t *testing.T) {
	c := NewCuller(WithWorkers(2))
	instances := []Instance{
		instanceAt(0, 1, 1, 0, 0, 0),      // dead ahead
		instanceAt(1, 1, 1, 1000, 0, 0),   // far right, outside
		instanceAt(2, 1, 1, 0, 0, -500),   // ahead, within far plane
		instanceAt(3, 1, 1, 0, 0, 100),    // behind the camera
		instanceAt(4, 1, 1, 0, 0, -1500),  // beyond the far plane
		instanceAt(5, 1, 1, 3, 2, -20),    // inside at an angle
	}

	list := c.Cull(testFrustum(), instances)
	assert.Equal(t, 6, list.Tested)
	assert.Equal(t, 3, list.Visible)

	var objects []uint32
	for _, b := range list.Batches {
		objects = append(objects, b.Objects...)
	}
	assert.Equal(t, []uint32{0, 2, 5}, objects)
}

func TestCullGroupsByMeshAndMaterial(t *testing.T) {
	c := NewCuller(WithWorkers(2))
	instances := []Instance{
		instanceAt(0, 1, 1, 0, 0, 0),
		instanceAt(1, 2, 1, 1, 0, 0),
		instanceAt(2, 1, 1, -1, 0, 0),
		instanceAt(3, 1, 2, 0, 1, 0),
		instanceAt(4, 2, 1, 0, -1, 0),
	}

	list := c.Cull(testFrustum(), instances)
	require.Len(t, list.Batches, 3)

	// Batches appear in first-seen order of their (mesh, material) key.
	assert.Equal(t, uint32(1), list.Batches[0].Mesh)
	assert.Equal(t, uint32(1), list.Batches[0].Material)
	assert.Equal(t, []uint32{0, 2}, list.Batches[0].Objects)

	assert.Equal(t, uint32(2), list.Batches[1].Mesh)
	assert.Equal(t, []uint32{1, 4}, list.Batches[1].Objects)

	assert.Equal(t, uint32(2), list.Batches[2].Material)
	assert.Equal(t, []uint32{3}, list.Batches[2].Objects)
}

func TestCullDeterministicAcrossWorkerCounts(t *testing.T) {
	var instances []Instance
	for i := range 500 {
		x := float32(i%40) - 20
		z := -float32(i % 90)
		instances = append(instances, instanceAt(uint32(i), uint32(i%4), uint32(i%3), x, 0, z))
	}

	frustum := testFrustum()
	serial := NewCuller(WithWorkers(1), WithChunkSize(7)).Cull(frustum, instances)
	parallel := NewCuller(WithWorkers(8), WithChunkSize(7)).Cull(frustum, instances)

	require.Equal(t, serial.Visible, parallel.Visible)
	require.Len(t, parallel.Batches, len(serial.Batches))
	for i := range serial.Batches {
		assert.Equal(t, serial.Batches[i].Mesh, parallel.Batches[i].Mesh)
		assert.Equal(t, serial.Batches[i].Material, parallel.Batches[i].Material)
		assert.Equal(t, serial.Batches[i].Objects, parallel.Batches[i].Objects)
	}
}

func TestBatchInstanceData(t *testing.T) {
	c := NewCuller(WithWorkers(1))
	list := c.Cull(testFrustum(), []Instance{
		instanceAt(0, 1, 1, 0, 0, 0),
		instanceAt(1, 1, 1, 1, 0, 0),
	})
	require.Len(t, list.Batches, 1)

	b := &list.Batches[0]
	assert.Equal(t, uint32(2), b.InstanceCount())
	assert.Len(t, b.InstanceData(), 2*16*4)
}

func TestCullEmptyInput(t *testing.T) {
	c := NewCuller(WithWorkers(1))
	list := c.Cull(testFrustum(), nil)
	assert.Zero(t, list.Tested)
	assert.Zero(t, list.Visible)
	assert.Empty(t, list.Batches)
}
