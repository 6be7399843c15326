package common

// AABB is an axis-aligned bounding box in whatever space the caller keeps it
// in. Min must be component-wise <= Max for a non-degenerate box.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the box center point.
func (b AABB) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) * 0.5,
		(b.Min[1] + b.Max[1]) * 0.5,
		(b.Min[2] + b.Max[2]) * 0.5,
	}
}

// BoundingSphere returns the tightest sphere centered on the box center that
// fully contains the box. Used to derive the coarse sphere bound the culling
// passes test first.
//
// Returns:
//   - Sphere: sphere centered on the box center containing all eight corners
func (b AABB) BoundingSphere() Sphere {
	c := b.Center()
	dx := b.Max[0] - c[0]
	dy := b.Max[1] - c[1]
	dz := b.Max[2] - c[2]
	return Sphere{
		Center: c,
		Radius: Sqrt(dx*dx + dy*dy + dz*dz),
	}
}

// Extend grows the box to include the given point.
//
// Parameters:
//   - p: the point to include
func (b *AABB) Extend(p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Transformed returns the AABB of this box after applying a column-major model
// matrix, using the Arvo method (per-axis min/max of the transformed extents).
// The result conservatively bounds the rotated box.
//
// Parameters:
//   - model: 4x4 column-major model matrix (16 elements)
//
// Returns:
//   - AABB: the world-space bounding box
func (b AABB) Transformed(model []float32) AABB {
	var out AABB
	// Start from the translation column.
	for i := 0; i < 3; i++ {
		out.Min[i] = model[12+i]
		out.Max[i] = model[12+i]
	}
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			e := model[col*4+row] * b.Min[col]
			f := model[col*4+row] * b.Max[col]
			if e < f {
				out.Min[row] += e
				out.Max[row] += f
			} else {
				out.Min[row] += f
				out.Max[row] += e
			}
		}
	}
	return out
}
