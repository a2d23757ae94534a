package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func cameraFrustum() *Frustum {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	proj := NewMat4PerspectiveReverseZ(DegToRad(90), 1, 0.1, 100)
	return NewFrustum(view.Mul(proj))
}

func TestFrustumSphereVisibility(t *testing.T) {
	f := cameraFrustum()

	assert.True(t, f.Intersects(NewVec3Zero(), 1))
	assert.False(t, f.Intersects(NewVec3(1e6, 0, 0), 1))
	assert.False(t, f.Intersects(NewVec3(0, 0, -200), 1), "beyond the far plane")
	assert.False(t, f.Intersects(NewVec3(0, 0, 10), 1), "behind the camera")
	assert.True(t, f.Intersects(NewVec3(0, 0, 10), 6), "large sphere reaching past the near plane")
}

func TestFrustumPlanesNormalized(t *testing.T) {
	f := cameraFrustum()
	for i, p := range f.Planes {
		assert.InDelta(t, 1.0, p.Normal.Length(), 1e-5, "plane %d", i)
	}
}

func TestFrustumSphereOnPlaneIsVisible(t *testing.T) {
	f := cameraFrustum()
	// the far plane sits at z = 5 - 100
	assert.True(t, f.Intersects(NewVec3(0, 0, -95.4), 0.5))
	assert.False(t, f.Intersects(NewVec3(0, 0, -95.6), 0.5))
}

func TestFrustumNearPlaneZeroToOneDepth(t *testing.T) {
	f := cameraFrustum()
	// the near plane sits at z = 5 - 0.1
	assert.False(t, f.Intersects(NewVec3(0, 0, 4.95), 0.01), "between the eye and the near plane")
	assert.True(t, f.Intersects(NewVec3(0, 0, 4.8), 0.01))
	// depth 0 is the far distance with reversed depth, r3+r2 would put the bound at -1
	assert.Less(t, f.Planes[PlaneNear].Distance+f.Planes[PlaneNear].Normal.Dot(NewVec3(0, 0, -200)), float32(0))
}

func TestFrustumAABB(t *testing.T) {
	f := cameraFrustum()
	assert.True(t, f.IntersectsAABB(NewVec3(-1, -1, -1), NewVec3(1, 1, 1)))
	assert.True(t, f.IntersectsAABB(NewVec3(-1000, -1, -1), NewVec3(1000, 1, 1)), "straddling box")
	assert.False(t, f.IntersectsAABB(NewVec3(500, 500, 500), NewVec3(501, 501, 501)))
}

func TestFrustumOrthographic(t *testing.T) {
	view := NewMat4LookAt(NewVec3(4, -4, 4), NewVec3Zero(), NewVec3Up())
	proj := NewMat4OrthographicReverseZ(-50, 50, -50, 50, 0.1, 100)
	f := NewFrustum(view.Mul(proj))

	assert.True(t, f.Intersects(NewVec3Zero(), 1))
	assert.True(t, f.Intersects(NewVec3(0, 10, 0), 1))
	assert.False(t, f.Intersects(NewVec3(0, 0, 200), 1))
}

func TestBoundingSphere(t *testing.T) {
	m := NewMat4Scale(NewVec3(3, 1, 1)).Mul(NewMat4Translation(NewVec3(1, 2, 3)))
	c, r := BoundingSphere(m)
	assert.Equal(t, NewVec3(1, 2, 3), c)
	assert.InDelta(t, 3.0, r, 1e-6)
}
