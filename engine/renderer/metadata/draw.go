package metadata

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

// DrawCommand identifies one batch of instances. It is comparable and used as a map key.
type DrawCommand struct {
	Mesh    MeshHandle
	Submesh uint32
	// Zero means the mesh's own material.
	Override     MaterialHandle
	CastsShadows bool
}

// InstanceData is the per-instance vertex binding 1, a column-major model matrix.
type InstanceData struct {
	Transform math.Mat4
}

const InstanceDataSize = 64

type DrawMap map[DrawCommand][]InstanceData

// InstanceCount sums the instances of every command.
func (m DrawMap) InstanceCount() int {
	n := 0
	for _, inst := range m {
		n += len(inst)
	}
	return n
}

// Reset empties every slice but keeps the keys and their capacity for the next frame.
func (m DrawMap) Reset() {
	for k, v := range m {
		m[k] = v[:0]
	}
}

// DrawItem is a contiguous range of the instance buffer drawn with one command.
type DrawItem struct {
	Command       DrawCommand
	FirstInstance uint32
	InstanceCount uint32
}

type DrawList []DrawItem

type LineInstanceData struct {
	Start math.Vec3
	Width float32
	End   math.Vec3
	// Packed as a<<24 | b<<16 | g<<8 | r.
	Colour uint32
}

const LineInstanceDataSize = 32

// AsBytes reinterprets a slice of plain data as its raw bytes without copying.
func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// ValueBytes returns the raw bytes of a single value.
func ValueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}

/** @brief The fixed set of passes, in recording order. */
type PassName int

const (
	PassComputeCulling PassName = iota
	PassShadow
	PassZPrepass
	PassMainGeometry
	PassSkybox
	PassLine
	PassComposite
	PassColourCorrection
	// PassCount is the number of passes, not a pass.
	PassCount
)

var passNames = [PassCount]string{
	"compute_culling",
	"shadow",
	"z_prepass",
	"main_geometry",
	"skybox",
	"line",
	"composite",
	"colour_correction",
}

func (p PassName) String() string {
	if p < 0 || p >= PassCount {
		return fmt.Sprintf("pass(%d)", int(p))
	}
	return passNames[p]
}

// AllPasses lists every pass in recording order.
func AllPasses() []PassName {
	out := make([]PassName, PassCount)
	for i := range out {
		out[i] = PassName(i)
	}
	return out
}

func ParsePassName(s string) (PassName, error) {
	for i, n := range passNames {
		if n == s {
			return PassName(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownPass, s)
}
