package metadata

import (
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/math"
)

type (
	MeshHandle     = containers.Handle
	MaterialHandle = containers.Handle
)

// Vertex is the interleaved layout of vertex binding 0 (48 bytes).
type Vertex = math.Vertex3D

const VertexSize = 48

type Submesh struct {
	VertexOffset  uint32
	IndexOffset   uint32
	IndexCount    uint32
	MaterialIndex uint32
}

type Mesh struct {
	Name         string
	Vertices     []Vertex
	Indices      []uint32
	VertexBuffer DeviceBuffer
	IndexBuffer  DeviceBuffer
	Submeshes    []Submesh
	// Indexed by Submesh.MaterialIndex, a zero handle falls back to the pass default.
	Materials []MaterialHandle
	Extents   math.Extents3D
}

// SubmeshMaterial resolves the material of submesh i, ok is false when none is assigned.
func (m *Mesh) SubmeshMaterial(i uint32) (MaterialHandle, bool) {
	if int(i) >= len(m.Submeshes) {
		return MaterialHandle{}, false
	}
	idx := m.Submeshes[i].MaterialIndex
	if int(idx) >= len(m.Materials) || !m.Materials[idx].IsValid() {
		return MaterialHandle{}, false
	}
	return m.Materials[idx], true
}
