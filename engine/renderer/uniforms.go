package renderer

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/lumen/engine/math"
)

// CameraUBO is binding 0 of the global set (336 bytes).
type CameraUBO struct {
	View                  math.Mat4
	Projection            math.Mat4
	InverseProjection     math.Mat4
	ViewProjection        math.Mat4
	InverseViewProjection math.Mat4
	Position              math.Vec4
}

// ShadowUBO is binding 1 of the global set (112 bytes).
type ShadowUBO struct {
	LightViewProjection math.Mat4
	LightPosition       math.Vec4
	LightColour         math.Vec4
	Ambient             math.Vec4
}

// FrustumUBO feeds the culling compute shader, one inward plane per vec4 (96 bytes).
type FrustumUBO struct {
	Planes [6]math.Vec4
}

const (
	cameraUBOSize  = 336
	shadowUBOSize  = 112
	frustumUBOSize = 96
)

/** @brief The directional light used by the shadow and composite passes. */
type LightEnvironment struct {
	Position  math.Vec3
	Target    math.Vec3
	Colour    math.Vec4
	Ambient   math.Vec4
	OrthoSize float32
	Near      float32
	Far       float32
}

func NewLightEnvironment() *LightEnvironment {
	return &LightEnvironment{
		Position:  math.NewVec3(4, -4, 4),
		Target:    math.NewVec3Zero(),
		Colour:    math.NewVec4One(),
		Ambient:   math.NewVec4(0.1, 0.1, 0.1, 1),
		OrthoSize: 50,
		Near:      0.1,
		Far:       100,
	}
}

// ViewProjection is the light's orthographic view projection, reverse-Z like the camera.
func (l *LightEnvironment) ViewProjection() math.Mat4 {
	up := math.NewVec3Up()
	dir := l.Target.Sub(l.Position).Normalize()
	if math32.Abs(dir.Dot(up)) > 0.999 {
		up = math.NewVec3Forward()
	}
	view := math.NewMat4LookAt(l.Position, l.Target, up)
	half := l.OrthoSize * 0.5
	proj := math.NewMat4OrthographicReverseZ(-half, half, -half, half, l.Near, l.Far)
	return view.Mul(proj)
}

func (l *LightEnvironment) uniform() ShadowUBO {
	return ShadowUBO{
		LightViewProjection: l.ViewProjection(),
		LightPosition:       l.Position.ToVec4(1),
		LightColour:         l.Colour,
		Ambient:             l.Ambient,
	}
}

// PackColour packs an RGBA colour as a<<24 | b<<16 | g<<8 | r.
func PackColour(c math.Vec4) uint32 {
	channel := func(v float32) uint32 {
		return uint32(math32.Round(math.Clamp(v, 0, 1) * 255))
	}
	return channel(c.W)<<24 | channel(c.Z)<<16 | channel(c.Y)<<8 | channel(c.X)
}
