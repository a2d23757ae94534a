package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4MulAppliesLeftFirst(t *testing.T) {
	s := NewMat4Scale(NewVec3(2, 2, 2))
	tr := NewMat4Translation(NewVec3(1, 0, 0))

	p := NewVec3(1, 1, 1).Transform(s.Mul(tr))
	assert.True(t, p.Compare(NewVec3(3, 2, 2), 1e-6), "scale then translate, got %v", p)

	p = NewVec3(1, 1, 1).Transform(tr.Mul(s))
	assert.True(t, p.Compare(NewVec3(4, 2, 2), 1e-6), "translate then scale, got %v", p)
}

func TestMat4Inverse(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 3, 4)).
		Mul(NewQuatFromAxisAngle(NewVec3Up(), 0.7, true).ToMat4()).
		Mul(NewMat4Translation(NewVec3(5, -1, 2)))

	assert.True(t, m.Mul(m.Inverse()).Compare(NewMat4Identity(), 1e-5))
	assert.True(t, m.Inverse().Mul(m).Compare(NewMat4Identity(), 1e-5))
}

func TestMat4Transposed(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	tr := m.Transposed()
	assert.Equal(t, float32(1), tr.Data[3])
	assert.Equal(t, float32(3), tr.Data[11])
	assert.Equal(t, m, tr.Transposed())
}

func TestLookAtMapsTargetOntoNegativeZ(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	p := NewVec3Zero().Transform(view)
	assert.True(t, p.Compare(NewVec3(0, 0, -5), 1e-5), "got %v", p)

	right := NewVec3(1, 0, 0).Transform(view)
	assert.InDelta(t, 1.0, right.X, 1e-5, "x axis is not mirrored")
}

func TestPerspectiveReverseZDepth(t *testing.T) {
	proj := NewMat4PerspectiveReverseZ(DegToRad(60), 1.5, 0.1, 100)
	depth := func(z float32) float32 {
		clipZ := z*proj.Data[10] + proj.Data[14]
		clipW := z * proj.Data[11]
		return clipZ / clipW
	}
	assert.InDelta(t, 1.0, depth(-0.1), 1e-5)
	assert.InDelta(t, 0.0, depth(-100), 1e-5)
}

func TestQuaternionRotation(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3Up(), K_HALF_PI, true)
	p := NewVec3(1, 0, 0).Transform(q.ToMat4())
	assert.True(t, p.Compare(NewVec3(0, 0, -1), 1e-5), "got %v", p)

	ry := NewMat4EulerY(K_HALF_PI)
	assert.True(t, ry.Compare(q.ToMat4(), 1e-5))
}

func TestTransformCachesLocal(t *testing.T) {
	parent := NewTransformFromPosition(NewVec3(10, 0, 0))
	child := NewTransformFromPosition(NewVec3(1, 0, 0))
	child.Parent = parent

	w := child.GetWorld()
	assert.True(t, w.Translation().Compare(NewVec3(11, 0, 0), 1e-6))
	assert.False(t, child.IsDirty)

	child.SetScale(NewVec3(2, 2, 2))
	assert.True(t, child.IsDirty)
	assert.InDelta(t, 2.0, child.GetLocal().Data[0], 1e-6)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, float32(0), Clamp(float32(-1), 0, 1))
	assert.Equal(t, uint32(3), Clamp(uint32(3), 1, 4))
}

func TestRandomDeterministic(t *testing.T) {
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 8; i++ {
		v := a.InRange(-5, 5)
		assert.Equal(t, v, b.InRange(-5, 5))
		assert.GreaterOrEqual(t, v, float32(-5))
		assert.Less(t, v, float32(5))
	}
}

func TestGeometryExtents(t *testing.T) {
	verts := []Vertex3D{
		{Position: NewVec3(-1, 2, 0)},
		{Position: NewVec3(3, -4, 1)},
	}
	ext := GeometryExtents(verts)
	assert.Equal(t, NewVec3(-1, -4, 0), ext.Min)
	assert.Equal(t, NewVec3(3, 2, 1), ext.Max)
}
