package components

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/lumen/engine/math"
)

// 89 degrees, keeps the view away from the poles.
const pitchLimit float32 = 1.55334306

/**
 * @brief Represents a perspective camera. Orientation is kept as yaw and
 * pitch angles in radians; a yaw of zero looks down -Z.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	YawAngle   float32
	PitchAngle float32

	FovRadians float32
	Aspect     float32
	Near       float32
	Far        float32

	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty    bool
	ViewMatrix math.Mat4
}

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

func NewCamera(aspect float32) *Camera {
	camera := &Camera{Aspect: aspect}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Position = math.NewVec3Zero()
	c.YawAngle = 0
	c.PitchAngle = 0
	c.FovRadians = math.DegToRad(60)
	c.Near = 0.1
	c.Far = 1000
	c.ViewMatrix = math.NewMat4Identity()
	c.IsDirty = true
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetAspect(aspect float32) {
	if aspect > 0 {
		c.Aspect = aspect
	}
}

// LookAt orients the camera towards target.
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position).Normalize()
	c.YawAngle = math32.Atan2(dir.X, -dir.Z)
	c.PitchAngle = math.Clamp(math32.Asin(dir.Y), -pitchLimit, pitchLimit)
	c.IsDirty = true
}

func (c *Camera) Forward() math.Vec3 {
	cp := math32.Cos(c.PitchAngle)
	return math.NewVec3(math32.Sin(c.YawAngle)*cp, math32.Sin(c.PitchAngle), -math32.Cos(c.YawAngle)*cp)
}

func (c *Camera) Right() math.Vec3 {
	return c.Forward().Cross(math.NewVec3Up()).Normalize()
}

func (c *Camera) View() math.Mat4 {
	if c.IsDirty {
		c.ViewMatrix = math.NewMat4LookAt(c.Position, c.Position.Add(c.Forward()), math.NewVec3Up())
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Projection() math.Mat4 {
	return math.NewMat4PerspectiveReverseZ(c.FovRadians, c.Aspect, c.Near, c.Far)
}

func (c *Camera) InverseProjection() math.Mat4 {
	return c.Projection().Inverse()
}

func (c *Camera) MoveForward(amount float32) {
	c.translate(c.Forward().MulScalar(amount))
}

func (c *Camera) MoveBackward(amount float32) {
	c.translate(c.Forward().MulScalar(-amount))
}

func (c *Camera) MoveLeft(amount float32) {
	c.translate(c.Right().MulScalar(-amount))
}

func (c *Camera) MoveRight(amount float32) {
	c.translate(c.Right().MulScalar(amount))
}

func (c *Camera) MoveUp(amount float32) {
	c.translate(math.NewVec3Up().MulScalar(amount))
}

func (c *Camera) MoveDown(amount float32) {
	c.translate(math.NewVec3Up().MulScalar(-amount))
}

func (c *Camera) translate(delta math.Vec3) {
	c.Position = c.Position.Add(delta)
	c.IsDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.YawAngle += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	// Clamp to avoid Gimbal lock.
	c.PitchAngle = math.Clamp(c.PitchAngle+amount, -pitchLimit, pitchLimit)
	c.IsDirty = true
}
