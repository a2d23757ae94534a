package math

import "github.com/chewxy/math32"

// Plane is n·p + d = 0 with n pointing into the visible half-space.
type Plane struct {
	Normal   Vec3
	Distance float32
}

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum holds six inward facing, normalized planes. Point, sphere or box
// are visible iff they lie on the positive side of all of them.
type Frustum struct {
	Planes [6]Plane
}

func NewFrustum(viewProjection Mat4) *Frustum {
	f := &Frustum{}
	f.Update(viewProjection)
	return f
}

// Update extracts the planes from the rows of a view-projection matrix
// targeting a [0,1] clip depth range. With reversed depth the near and far
// planes swap roles but bound the same volume.
func (f *Frustum) Update(vp Mat4) {
	r0, r1, r2, r3 := vp.Row(0), vp.Row(1), vp.Row(2), vp.Row(3)

	f.Planes[PlaneLeft] = planeFrom(add4(r3, r0))
	f.Planes[PlaneRight] = planeFrom(sub4(r3, r0))
	f.Planes[PlaneBottom] = planeFrom(add4(r3, r1))
	f.Planes[PlaneTop] = planeFrom(sub4(r3, r1))
	f.Planes[PlaneNear] = planeFrom(r2)
	f.Planes[PlaneFar] = planeFrom(sub4(r3, r2))
}

// Intersects tests a bounding sphere. Spheres near frustum corners may pass
// without touching the volume.
func (f *Frustum) Intersects(center Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.Normal.Dot(center)+p.Distance+radius < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB tests only the box corner furthest along each plane normal.
func (f *Frustum) IntersectsAABB(min, max Vec3) bool {
	for _, p := range f.Planes {
		v := min
		if p.Normal.X >= 0 {
			v.X = max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = max.Z
		}
		if p.Normal.Dot(v)+p.Distance < 0 {
			return false
		}
	}
	return true
}

// AsVec4 packs the planes as (nx, ny, nz, d) for upload to the GPU.
func (f *Frustum) AsVec4() [6]Vec4 {
	var out [6]Vec4
	for i, p := range f.Planes {
		out[i] = p.Normal.ToVec4(p.Distance)
	}
	return out
}

func planeFrom(v Vec4) Plane {
	n := Vec3{v.X, v.Y, v.Z}
	l := n.Length()
	if l == 0 {
		return Plane{Normal: n, Distance: v.W}
	}
	return Plane{Normal: n.MulScalar(1 / l), Distance: v.W / l}
}

func add4(a, b Vec4) Vec4 {
	return Vec4{a.X + b.X, a.Y + b.Y, a.Z + b.Z, a.W + b.W}
}

func sub4(a, b Vec4) Vec4 {
	return Vec4{a.X - b.X, a.Y - b.Y, a.Z - b.Z, a.W - b.W}
}

// BoundingSphere approximates an instance as a unit sphere scaled by the
// length of its first basis column, centred on its translation.
func BoundingSphere(transform Mat4) (Vec3, float32) {
	d := transform.Data
	radius := math32.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	return Vec3{d[12], d[13], d[14]}, radius
}
