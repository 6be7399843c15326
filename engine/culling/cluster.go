package culling

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/chewxy/math32"
)

// DefaultClusterTriangles is the cluster granularity used when the caller does
// not specify one. Matches the culling shaders' workgroup size so one thread
// maps to one cluster in the common case.
const DefaultClusterTriangles = 64

// ComputeClusterBounds splits an indexed triangle list into clusters of at
// most trianglesPerCluster consecutive triangles and computes local-space
// bounds for each: a bounding sphere and a normal cone for backface culling.
//
// Degenerate clusters (zero-area triangles, or normals spanning more than a
// hemisphere) get a cone cutoff of 1.0, which disables the cone test.
//
// Parameters:
//   - positions: vertex positions indexed by the index list
//   - indices: triangle index list, length a multiple of 3
//   - trianglesPerCluster: cluster granularity; <= 0 uses DefaultClusterTriangles
//
// Returns:
//   - []GPUClusterBounds: one bounds record per cluster, in index order
func ComputeClusterBounds(positions [][3]float32, indices []uint32, trianglesPerCluster int) []GPUClusterBounds {
	if trianglesPerCluster <= 0 {
		trianglesPerCluster = DefaultClusterTriangles
	}
	triangleCount := len(indices) / 3
	if triangleCount == 0 {
		return nil
	}

	clusterCount := (triangleCount + trianglesPerCluster - 1) / trianglesPerCluster
	bounds := make([]GPUClusterBounds, 0, clusterCount)

	for first := 0; first < triangleCount; first += trianglesPerCluster {
		last := first + trianglesPerCluster
		if last > triangleCount {
			last = triangleCount
		}

		var box common.AABB
		var normals [][3]float32
		for tri := first; tri < last; tri++ {
			a := positions[indices[tri*3]]
			b := positions[indices[tri*3+1]]
			c := positions[indices[tri*3+2]]
			if tri == first {
				box = common.AABB{Min: a, Max: a}
			}
			box.Extend(a)
			box.Extend(b)
			box.Extend(c)
			if n, ok := triangleNormal(a, b, c); ok {
				normals = append(normals, n)
			}
		}

		sphere := box.BoundingSphere()
		axis, cutoff := normalCone(normals)
		bounds = append(bounds, GPUClusterBounds{
			BoundingSphere: [4]float32{sphere.Center[0], sphere.Center[1], sphere.Center[2], sphere.Radius},
			ConeAxis:       axis,
			ConeCutoff:     cutoff,
			IndexOffset:    uint32(first * 3),
			IndexCount:     uint32((last - first) * 3),
		})
	}
	return bounds
}

// triangleNormal returns the unit normal of triangle abc, or ok=false for a
// degenerate triangle.
func triangleNormal(a, b, c [3]float32) ([3]float32, bool) {
	e1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	e2 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float32{
		e1[1]*e2[2] - e1[2]*e2[1],
		e1[2]*e2[0] - e1[0]*e2[2],
		e1[0]*e2[1] - e1[1]*e2[0],
	}
	length := math32.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if length < 1e-8 {
		return [3]float32{}, false
	}
	return [3]float32{n[0] / length, n[1] / length, n[2] / length}, true
}

// normalCone fits a cone around the given unit normals. The returned cutoff
// follows the convention used by the cluster shader: a cluster is backfacing
// when dot(view_dir, axis) >= cutoff. A cutoff of 1.0 disables the test.
func normalCone(normals [][3]float32) ([3]float32, float32) {
	if len(normals) == 0 {
		return [3]float32{0, 0, 1}, 1.0
	}

	var sum [3]float32
	for _, n := range normals {
		sum[0] += n[0]
		sum[1] += n[1]
		sum[2] += n[2]
	}
	length := math32.Sqrt(sum[0]*sum[0] + sum[1]*sum[1] + sum[2]*sum[2])
	if length < 1e-8 {
		return [3]float32{0, 0, 1}, 1.0
	}
	axis := [3]float32{sum[0] / length, sum[1] / length, sum[2] / length}

	minDot := float32(1.0)
	for _, n := range normals {
		d := axis[0]*n[0] + axis[1]*n[1] + axis[2]*n[2]
		if d < minDot {
			minDot = d
		}
	}
	if minDot <= 0 {
		// Normals span a hemisphere or more, the cone cannot cull anything.
		return axis, 1.0
	}
	cutoff := math32.Sqrt(1 - minDot*minDot)
	if cutoff >= 1 {
		cutoff = 1.0
	}
	return axis, cutoff
}

// BackfaceCulled is the CPU mirror of the shader's cone test for a cluster in
// world space (identity model). Used for diagnostics and tests.
//
// Parameters:
//   - bounds: the cluster bounds
//   - cameraPos: world-space camera position
//
// Returns:
//   - bool: true when the cone test rejects the cluster
func BackfaceCulled(bounds GPUClusterBounds, cameraPos [3]float32) bool {
	if bounds.ConeCutoff >= 1.0 {
		return false
	}
	view := [3]float32{
		bounds.BoundingSphere[0] - cameraPos[0],
		bounds.BoundingSphere[1] - cameraPos[1],
		bounds.BoundingSphere[2] - cameraPos[2],
	}
	length := math32.Sqrt(view[0]*view[0] + view[1]*view[1] + view[2]*view[2])
	if length < 1e-8 {
		return false
	}
	d := (view[0]*bounds.ConeAxis[0] + view[1]*bounds.ConeAxis[1] + view[2]*bounds.ConeAxis[2]) / length
	return d >= bounds.ConeCutoff
}

// CapacityForClusterCount sizes the indirect-draw reservation from the total
// cluster count of the scene: the conservative maximum number of survivors,
// rounded up to a whole workgroup.
//
// Parameters:
//   - totalClusters: sum of cluster counts across all registered objects
//
// Returns:
//   - uint32: the reserved indirect-draw slot count
func CapacityForClusterCount(totalClusters int) uint32 {
	if totalClusters <= 0 {
		return 64
	}
	c := uint32(totalClusters)
	const step = 64
	return (c + step - 1) / step * step
}
