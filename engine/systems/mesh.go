package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type MeshSystemConfig struct {
	/** @brief The maximum number of meshes alive at once. */
	MaxMeshCount uint32
}

// MeshSystem owns every mesh and its vertex and index buffers. Lookups are
// safe from the culling workers while the frame goroutine creates meshes.
type MeshSystem struct {
	config MeshSystemConfig
	device metadata.Device

	mu     sync.RWMutex
	meshes *containers.Registry[*metadata.Mesh]
	names  map[string]metadata.MeshHandle
}

func NewMeshSystem(config MeshSystemConfig, device metadata.Device) (*MeshSystem, error) {
	if config.MaxMeshCount == 0 {
		err := fmt.Errorf("func NewMeshSystem - config.MaxMeshCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &MeshSystem{
		config: config,
		device: device,
		meshes: containers.NewRegistry[*metadata.Mesh](int(config.MaxMeshCount)),
		names:  map[string]metadata.MeshHandle{},
	}, nil
}

/**
 * @brief Uploads the geometry into new device buffers and registers it as a
 * mesh with a single submesh drawn with material.
 * @param material The material of the submesh, the zero handle uses the pass default.
 */
func (ms *MeshSystem) Create(config *GeometryConfig, material metadata.MaterialHandle) (metadata.MeshHandle, error) {
	if len(config.Vertices) == 0 || len(config.Indices) == 0 {
		return metadata.MeshHandle{}, fmt.Errorf("mesh %s has no geometry", config.Name)
	}
	ms.mu.RLock()
	_, exists := ms.names[config.Name]
	full := ms.meshes.Len() >= int(ms.config.MaxMeshCount)
	ms.mu.RUnlock()
	if exists {
		return metadata.MeshHandle{}, fmt.Errorf("mesh %s already exists", config.Name)
	}
	if full {
		return metadata.MeshHandle{}, fmt.Errorf("mesh system is full, cannot create %s", config.Name)
	}

	vertices := metadata.AsBytes(config.Vertices)
	vb, err := ms.device.CreateBuffer(metadata.BufferDesc{
		Label: config.Name + "_vertices",
		Size:  uint64(len(vertices)),
		Usage: metadata.BufferUsageVertex,
	})
	if err != nil {
		return metadata.MeshHandle{}, fmt.Errorf("creating vertex buffer of %s: %w", config.Name, err)
	}
	indices := metadata.AsBytes(config.Indices)
	ib, err := ms.device.CreateBuffer(metadata.BufferDesc{
		Label: config.Name + "_indices",
		Size:  uint64(len(indices)),
		Usage: metadata.BufferUsageIndex,
	})
	if err != nil {
		vb.Destroy()
		return metadata.MeshHandle{}, fmt.Errorf("creating index buffer of %s: %w", config.Name, err)
	}
	if err := vb.Write(0, vertices); err != nil {
		vb.Destroy()
		ib.Destroy()
		return metadata.MeshHandle{}, err
	}
	if err := ib.Write(0, indices); err != nil {
		vb.Destroy()
		ib.Destroy()
		return metadata.MeshHandle{}, err
	}

	mesh := &metadata.Mesh{
		Name:         config.Name,
		Vertices:     config.Vertices,
		Indices:      config.Indices,
		VertexBuffer: vb,
		IndexBuffer:  ib,
		Submeshes:    []metadata.Submesh{{IndexCount: uint32(len(config.Indices))}},
		Materials:    []metadata.MaterialHandle{material},
		Extents:      config.Extents,
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	h := ms.meshes.Insert(mesh)
	ms.names[config.Name] = h
	core.LogDebug("mesh %s created with %d vertices", config.Name, len(config.Vertices))
	return h, nil
}

func (ms *MeshSystem) Mesh(h metadata.MeshHandle) (*metadata.Mesh, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.meshes.Get(h)
}

func (ms *MeshSystem) Lookup(name string) (metadata.MeshHandle, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	h, ok := ms.names[name]
	return h, ok
}

// Destroy releases the mesh right away, the caller makes sure no frame in flight draws it.
func (ms *MeshSystem) Destroy(h metadata.MeshHandle) error {
	ms.mu.Lock()
	mesh, err := ms.meshes.Remove(h)
	if err == nil {
		delete(ms.names, mesh.Name)
	}
	ms.mu.Unlock()
	if err != nil {
		return err
	}
	mesh.VertexBuffer.Destroy()
	mesh.IndexBuffer.Destroy()
	return nil
}

func (ms *MeshSystem) Shutdown() error {
	ms.mu.Lock()
	var handles []metadata.MeshHandle
	ms.meshes.Each(func(h containers.Handle, _ *metadata.Mesh) bool {
		handles = append(handles, h)
		return true
	})
	ms.mu.Unlock()
	for _, h := range handles {
		if err := ms.Destroy(h); err != nil {
			return err
		}
	}
	return nil
}
