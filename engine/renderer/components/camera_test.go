package components

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestCameraLooksDownNegativeZ(t *testing.T) {
	c := NewCamera(16.0 / 9.0)
	assert.True(t, c.Forward().Compare(math.NewVec3(0, 0, -1), 1e-5))
	assert.True(t, c.Right().Compare(math.NewVec3(1, 0, 0), 1e-5))

	c.MoveForward(2)
	assert.True(t, c.Position.Compare(math.NewVec3(0, 0, -2), 1e-5))
	c.MoveRight(1)
	c.MoveUp(3)
	assert.True(t, c.Position.Compare(math.NewVec3(1, 3, -2), 1e-5))
}

func TestCameraLookAtSeesTarget(t *testing.T) {
	c := NewCamera(1)
	c.SetPosition(math.NewVec3(5, 2, 5))
	c.LookAt(math.NewVec3Zero())

	f := math.NewFrustum(c.View().Mul(c.Projection()))
	assert.True(t, f.Intersects(math.NewVec3Zero(), 0.5))
	assert.False(t, f.Intersects(math.NewVec3(20, 2, 20), 0.5), "behind the camera")
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera(1)
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.PitchAngle, 1e-6)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.PitchAngle, 1e-6)
}

func TestCameraViewIsCached(t *testing.T) {
	c := NewCamera(1)
	first := c.View()
	assert.False(t, c.IsDirty)
	c.Yaw(0.5)
	assert.True(t, c.IsDirty)
	assert.False(t, first.Compare(c.View(), 1e-6))
}
