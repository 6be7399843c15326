package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCameraDefaults(t *testing.T) {
	c := NewCamera()
	assert.InDelta(t, 1.0472, c.Fov(), 1e-6)
	assert.InDelta(t, 16.0/9.0, c.Aspect(), 1e-6)
	assert.InDelta(t, 0.1, c.Near(), 1e-6)
	assert.InDelta(t, 1000.0, c.Far(), 1e-3)
}

func TestOptionsRejectInvalidValues(t *testing.T) {
	c := NewCamera(WithFov(-1), WithAspect(0), WithClipPlanes(5, 1))
	assert.InDelta(t, 1.0472, c.Fov(), 1e-6)
	assert.InDelta(t, 16.0/9.0, c.Aspect(), 1e-6)
	assert.InDelta(t, 0.1, c.Near(), 1e-6)
}

func TestLookAtUpdatesPositionAndView(t *testing.T) {
	c := NewCamera()
	c.LookAt([3]float32{0, 0, 10}, [3]float32{0, 0, 0})
	assert.Equal(t, [3]float32{0, 0, 10}, c.Position())

	// The origin sits 10 units down the view direction: view * eye = origin.
	view := c.ViewMatrix()
	x := view[0]*0 + view[4]*0 + view[8]*10 + view[12]
	y := view[1]*0 + view[5]*0 + view[9]*10 + view[13]
	z := view[2]*0 + view[6]*0 + view[10]*10 + view[14]
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestFrustumContainsLookedAtPoint(t *testing.T) {
	c := NewCamera(WithAspect(1))
	c.LookAt([3]float32{0, 0, 10}, [3]float32{0, 0, 0})

	f := c.Frustum()
	require.True(t, f.IntersectsSphere(common.Sphere{Center: [3]float32{0, 0, 0}, Radius: 0.5}))
	assert.False(t, f.IntersectsSphere(common.Sphere{Center: [3]float32{0, 0, 20}, Radius: 0.5}))
	assert.False(t, f.IntersectsSphere(common.Sphere{Center: [3]float32{100, 0, 0}, Radius: 0.5}))
}

func TestSetAspectRecomputesProjection(t *testing.T) {
	c := NewCamera(WithAspect(1))
	before := c.ProjectionMatrix()
	c.SetAspect(2)
	after := c.ProjectionMatrix()
	assert.NotEqual(t, before[0], after[0])
	assert.Equal(t, before[5], after[5])
}
