package renderer

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A material binds one pipeline together with the resources of its
 * material descriptor set. Resources are looked up by the names the shaders
 * give them and written to the per frame sets lazily, when they change.
 */
type Material struct {
	id        core.ResourceID
	ctx       MaterialContext
	blueprint *metadata.PipelineBlueprint
	hash      uint64

	state *pipelineState
	pool  metadata.DescriptorPool
	sets  [metadata.FramesInFlight]metadata.DescriptorSet

	// Set 1 bindings by name.
	bindings map[string]BindingMetadata
	buffers  map[string]*GPUBuffer
	// Device buffer each entry of buffers had when it was attached. A GPUBuffer
	// keeps its identity across Resize, the handle does not.
	handles  map[string]metadata.Buffer
	images   map[string]*GPUImage
	dirty    [metadata.FramesInFlight]map[string]struct{}

	data MaterialData
}

func NewMaterial(ctx MaterialContext, bp *metadata.PipelineBlueprint) (*Material, error) {
	m := &Material{
		id:      core.NewResourceID(),
		ctx:     ctx,
		buffers: map[string]*GPUBuffer{},
		handles: map[string]metadata.Buffer{},
		images:  map[string]*GPUImage{},
		data:    DefaultMaterialData(),
	}
	for i := range m.dirty {
		m.dirty[i] = map[string]struct{}{}
	}
	state, err := buildPipeline(&m.ctx, bp, nil)
	if err != nil {
		return nil, err
	}
	pool, sets, err := m.allocateSets(bp.Name, state)
	if err != nil {
		state.destroy(ctx.Device)
		return nil, err
	}
	m.blueprint = bp
	m.hash = bp.Hash(ctx.Shaders.Head)
	m.install(state, pool, sets)
	core.LogDebug("material %s created with %d bindings", bp.Name, len(m.bindings))
	return m, nil
}

func (m *Material) allocateSets(name string, state *pipelineState) (metadata.DescriptorPool, []metadata.DescriptorSet, error) {
	material := state.reflected.Set(MaterialSet)
	pool, err := m.ctx.Device.CreateDescriptorPool(metadata.FramesInFlight, poolSizes(material, metadata.FramesInFlight))
	if err != nil {
		return nil, nil, &MaterialError{Code: MaterialErrorPoolCreationFailed, Material: name, Err: err}
	}
	sets, err := m.ctx.Device.AllocateDescriptorSets(pool, state.setLayout, metadata.FramesInFlight)
	if err != nil {
		m.ctx.Device.Destroy(pool)
		return nil, nil, &MaterialError{Code: MaterialErrorDescriptorAllocationFailed, Material: name, Err: err}
	}
	if len(sets) != metadata.FramesInFlight {
		m.ctx.Device.Destroy(pool)
		return nil, nil, &MaterialError{Code: MaterialErrorDescriptorAllocationFailed, Material: name,
			Err: fmt.Errorf("got %d sets, want %d", len(sets), metadata.FramesInFlight)}
	}
	return pool, sets, nil
}

// install swaps in a new pipeline and set table. Resources whose binding survived
// with a compatible type stay attached and are rewritten in every frame.
func (m *Material) install(state *pipelineState, pool metadata.DescriptorPool, sets []metadata.DescriptorSet) {
	m.state = state
	m.pool = pool
	copy(m.sets[:], sets)
	m.bindings = map[string]BindingMetadata{}
	for _, b := range state.reflected.Set(MaterialSet) {
		if b.Name == "" {
			continue
		}
		m.bindings[b.Name] = b
	}
	for name := range m.buffers {
		if b, ok := m.bindings[name]; !ok || b.Type.IsImage() {
			delete(m.buffers, name)
			delete(m.handles, name)
		}
	}
	for name := range m.images {
		if b, ok := m.bindings[name]; !ok || !b.Type.IsImage() {
			delete(m.images, name)
		}
	}
	for i := range m.dirty {
		m.dirty[i] = map[string]struct{}{}
		for name := range m.buffers {
			m.dirty[i][name] = struct{}{}
		}
		for name := range m.images {
			m.dirty[i][name] = struct{}{}
		}
	}
}

func (m *Material) ID() core.ResourceID                    { return m.id }
func (m *Material) Name() string                           { return m.blueprint.Name }
func (m *Material) Label() string                          { return m.blueprint.Name }
func (m *Material) Hash() uint64                           { return m.hash }
func (m *Material) Blueprint() *metadata.PipelineBlueprint { return m.blueprint }
func (m *Material) Pipeline() metadata.Pipeline            { return m.state.pipeline }
func (m *Material) Layout() metadata.PipelineLayout        { return m.state.layout }
func (m *Material) BindPoint() metadata.PipelineBindPoint  { return m.state.bindPoint }
func (m *Material) Reflection() *ReflectedLayout           { return m.state.reflected }
func (m *Material) DescriptorSet(frame uint32) metadata.DescriptorSet {
	return m.sets[frame%metadata.FramesInFlight]
}

// Data is the push constant block pushed whenever the material is bound for a draw.
func (m *Material) Data() MaterialData {
	return m.data
}

func (m *Material) SetData(data MaterialData) {
	m.data = data
}

// Binding reports the set 1 binding with the given name.
func (m *Material) Binding(name string) (BindingMetadata, bool) {
	b, ok := m.bindings[name]
	return b, ok
}

// UploadBuffer attaches buf to the named binding. Unknown names are ignored and
// attaching the same buffer again does nothing, unless it was resized since.
func (m *Material) UploadBuffer(name string, buf *GPUBuffer) {
	b, ok := m.bindings[name]
	if !ok || b.Type.IsImage() || buf == nil {
		return
	}
	handle := buf.Handle()
	if m.buffers[name] == buf && m.handles[name] == handle {
		return
	}
	m.buffers[name] = buf
	m.handles[name] = handle
	m.markDirty(name)
}

// UploadImage attaches img to the named binding, same rules as UploadBuffer.
func (m *Material) UploadImage(name string, img *GPUImage) {
	b, ok := m.bindings[name]
	if !ok || !b.Type.IsImage() {
		return
	}
	if m.images[name] == img {
		return
	}
	m.images[name] = img
	m.markDirty(name)
}

func (m *Material) markDirty(name string) {
	for i := range m.dirty {
		m.dirty[i][name] = struct{}{}
	}
}

// Invalidate forces every binding that references one of images to be rewritten,
// used after the images were recreated.
func (m *Material) Invalidate(images ...*GPUImage) {
	for name, bound := range m.images {
		for _, img := range images {
			if bound == img {
				m.markDirty(name)
				break
			}
		}
	}
}

// IsDirty reports whether frame has pending descriptor writes.
func (m *Material) IsDirty(frame uint32) bool {
	return len(m.dirty[frame%metadata.FramesInFlight]) > 0
}

// PrepareForRendering flushes the pending writes of frame in one batch and
// returns the set to bind.
func (m *Material) PrepareForRendering(frame uint32) metadata.DescriptorSet {
	frame %= metadata.FramesInFlight
	set := m.sets[frame]
	dirty := m.dirty[frame]
	if len(dirty) == 0 {
		return set
	}
	names := make([]string, 0, len(dirty))
	for name := range dirty {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.bindings[names[i]].Binding < m.bindings[names[j]].Binding
	})

	writes := make([]metadata.DescriptorWrite, 0, len(names))
	for _, name := range names {
		b, ok := m.bindings[name]
		if !ok {
			continue
		}
		w := metadata.DescriptorWrite{Set: set, Binding: b.Binding}
		if buf, ok := m.buffers[name]; ok {
			w.Type = buf.DescriptorType()
			w.Buffer = buf.DescriptorInfo()
		} else if img, ok := m.images[name]; ok {
			w.Type = b.Type
			w.Image = img.DescriptorInfo(b.Type)
		} else {
			continue
		}
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		m.ctx.Device.UpdateDescriptorSets(writes)
	}
	m.dirty[frame] = map[string]struct{}{}
	return set
}

// Bind binds the pipeline and the material set of frame. Set 0 is bound by the renderer.
func (m *Material) Bind(cmd metadata.CommandList, frame uint32) {
	set := m.PrepareForRendering(frame)
	cmd.BindPipeline(m.state.bindPoint, m.state.pipeline)
	cmd.BindDescriptorSets(m.state.bindPoint, m.state.layout, MaterialSet, []metadata.DescriptorSet{set})
}

// PushConstants pushes data to every stage that declared a push constant block.
func (m *Material) PushConstants(cmd metadata.CommandList, data []byte) {
	stages := m.state.reflected.PushConstantStages()
	if stages == 0 || len(data) == 0 {
		return
	}
	var size uint32
	for _, r := range m.state.reflected.PushConstants {
		if r.Size > size {
			size = r.Size
		}
	}
	if uint32(len(data)) > size {
		data = data[:size]
	}
	cmd.PushConstants(m.state.layout, stages, 0, data)
}

// Reload rebuilds the pipeline from bp. An unchanged content hash is a no-op.
// When the material set is unchanged the set layout, pool and sets are kept
// together with their written descriptors. On failure the current pipeline is
// kept and the error returned.
func (m *Material) Reload(bp *metadata.PipelineBlueprint) error {
	hash := bp.Hash(m.ctx.Shaders.Head)
	if hash != 0 && hash == m.hash {
		return nil
	}
	state, err := buildPipeline(&m.ctx, bp, m.state)
	if err != nil {
		core.LogError("reloading material %s failed, keeping the previous pipeline: %s", m.Name(), err.Error())
		return err
	}
	if state.sharesSetLayout(m.state) {
		old := *m.state
		old.setLayout = nil
		m.release(&old, nil)
		m.state = state
		m.blueprint = bp
		m.hash = hash
		core.LogInfo("material %s reloaded, descriptor sets kept", bp.Name)
		return nil
	}
	pool, sets, err := m.allocateSets(bp.Name, state)
	if err != nil {
		state.destroy(m.ctx.Device)
		core.LogError("reloading material %s failed, keeping the previous pipeline: %s", m.Name(), err.Error())
		return err
	}
	m.release(m.state, m.pool)
	m.blueprint = bp
	m.hash = hash
	m.install(state, pool, sets)
	core.LogInfo("material %s reloaded", bp.Name)
	return nil
}

// release retires state and pool, or destroys them right away without a deferred queue.
func (m *Material) release(state *pipelineState, pool metadata.DescriptorPool) {
	if m.ctx.Deferred != nil {
		state.retire(m.ctx.Deferred)
		m.ctx.Deferred.Retire(pool)
		return
	}
	if pool != nil {
		m.ctx.Device.Destroy(pool)
	}
	state.destroy(m.ctx.Device)
}

func (m *Material) Destroy() {
	if m.state == nil {
		return
	}
	m.ctx.Device.Destroy(m.pool)
	m.state.destroy(m.ctx.Device)
	m.state = nil
	m.pool = nil
}
