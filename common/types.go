// package common contains common types that are used throughout this library. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// Sphere is a bounding sphere used as the coarse bounding volume for
// object-level culling. Center is in the object's local space; callers apply
// the object transform (translation plus maximum scale on the radius) before
// testing against a world-space frustum.
type Sphere struct {
	// Center is the sphere center (x, y, z).
	Center [3]float32
	// Radius is the sphere radius. Must be >= 0.
	Radius float32
}

// Transformed returns the sphere moved by the given column-major model matrix.
// The radius is scaled by the largest axis scale so the result conservatively
// bounds the transformed geometry.
//
// Parameters:
//   - model: 4x4 column-major model matrix (16 elements)
//
// Returns:
//   - Sphere: the world-space bounding sphere
func (s Sphere) Transformed(model []float32) Sphere {
	var out Sphere
	x, y, z := s.Center[0], s.Center[1], s.Center[2]
	out.Center[0] = model[0]*x + model[4]*y + model[8]*z + model[12]
	out.Center[1] = model[1]*x + model[5]*y + model[9]*z + model[13]
	out.Center[2] = model[2]*x + model[6]*y + model[10]*z + model[14]
	out.Radius = s.Radius * maxAxisScale(model)
	return out
}

// maxAxisScale returns the length of the longest basis vector of a column-major
// 4x4 matrix, i.e. the largest scale factor the matrix applies along any axis.
func maxAxisScale(m []float32) float32 {
	sx := m[0]*m[0] + m[1]*m[1] + m[2]*m[2]
	sy := m[4]*m[4] + m[5]*m[5] + m[6]*m[6]
	sz := m[8]*m[8] + m[9]*m[9] + m[10]*m[10]
	s := sx
	if sy > s {
		s = sy
	}
	if sz > s {
		s = sz
	}
	return Sqrt(s)
}
