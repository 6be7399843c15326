package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrustum builds a frustum looking down -Z from the origin with a 90°
// vertical FOV, near 0.1 and far 100.
func testFrustum(t *testing.T) Frustum {
	t.Helper()
	proj := make([]float32, 16)
	view := make([]float32, 16)
	viewProj := make([]float32, 16)
	Perspective(proj, 3.14159265/2, 1.0, 0.1, 100.0)
	LookAt(view, 0, 0, 0, 0, 0, -1, 0, 1, 0)
	Mul4(viewProj, proj, view)
	return ExtractFrustumFromMatrix(viewProj)
}

func TestFrustumPlanesAreNormalized(t *testing.T) {
	f := testFrustum(t)
	for i, p := range f.Planes {
		length := Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2])
		assert.InDelta(t, 1.0, length, 1e-4, "plane %d", i)
	}
}

func TestIntersectsSphere(t *testing.T) {
	f := testFrustum(t)

	tests := []struct {
		name    string
		sphere  Sphere
		visible bool
	}{
		{"directly ahead", Sphere{Center: [3]float32{0, 0, -10}, Radius: 1}, true},
		{"behind camera", Sphere{Center: [3]float32{0, 0, 10}, Radius: 1}, false},
		{"beyond far plane", Sphere{Center: [3]float32{0, 0, -500}, Radius: 1}, false},
		{"far left", Sphere{Center: [3]float32{-100, 0, -10}, Radius: 1}, false},
		{"straddling left plane", Sphere{Center: [3]float32{-10, 0, -10}, Radius: 2}, true},
		{"huge sphere containing camera", Sphere{Center: [3]float32{0, 0, 0}, Radius: 50}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, f.IntersectsSphere(tt.sphere))
		})
	}
}

func TestIntersectsAABB(t *testing.T) {
	f := testFrustum(t)

	inside := AABB{Min: [3]float32{-1, -1, -11}, Max: [3]float32{1, 1, -9}}
	behind := AABB{Min: [3]float32{-1, -1, 9}, Max: [3]float32{1, 1, 11}}
	straddling := AABB{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, -3}}

	assert.True(t, f.IntersectsAABB(inside))
	assert.False(t, f.IntersectsAABB(behind))
	// Min.Z > Max.Z here is intentional: normalize before testing.
	straddling.Min[2], straddling.Max[2] = straddling.Max[2], straddling.Min[2]
	assert.True(t, f.IntersectsAABB(straddling))
}

func TestSphereTransformed(t *testing.T) {
	model := make([]float32, 16)
	BuildModelMatrix(model, 5, 0, 0, 0, 0, 0, 2, 2, 2)

	s := Sphere{Center: [3]float32{1, 0, 0}, Radius: 1}.Transformed(model)
	assert.InDelta(t, 7.0, s.Center[0], 1e-4)
	assert.InDelta(t, 2.0, s.Radius, 1e-4)
}

func TestAABBBoundingSphere(t *testing.T) {
	box := AABB{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, 1}}
	s := box.BoundingSphere()
	require.Equal(t, [3]float32{0, 0, 0}, s.Center)
	assert.InDelta(t, Sqrt(3), s.Radius, 1e-4)
}

func TestAABBTransformedRotation(t *testing.T) {
	box := AABB{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, 1}}
	model := make([]float32, 16)
	// 45° yaw: the rotated unit cube's XZ extent grows to sqrt(2).
	BuildModelMatrix(model, 0, 0, 0, 0, 3.14159265/4, 0, 1, 1, 1)

	out := box.Transformed(model)
	assert.InDelta(t, -Sqrt(2), out.Min[0], 1e-3)
	assert.InDelta(t, Sqrt(2), out.Max[0], 1e-3)
	assert.InDelta(t, -1, out.Min[1], 1e-3)
	assert.InDelta(t, 1, out.Max[1], 1e-3)
}
