package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type MaterialSystemConfig struct {
	/** @brief The maximum number of materials that can be loaded at once. */
	MaxMaterialCount uint32
}

// PassReloader rebuilds the material of one of the fixed passes.
type PassReloader interface {
	ReloadPass(pass metadata.PassName, bp *metadata.PipelineBlueprint) error
}

// The map bindings a material config may fill, in push constant flag order.
var mapBindings = []string{"albedo_map", "normal_map", "metallic_map", "roughness_map", "ao_map", "emissive_map"}

type materialEntry struct {
	material *renderer.Material
	config   *metadata.MaterialConfig
	// texture names acquired from the texture system
	textures []string
}

/**
 * @brief Owns the named materials built from material files and keeps them,
 * and the pass materials of the renderer, in sync with the files on disk.
 * Lookups are safe from any goroutine, everything else runs on the frame goroutine.
 */
type MaterialSystem struct {
	config     MaterialSystemConfig
	assets     *assets.AssetManager
	blueprints *assets.BlueprintRegistry
	textures   *TextureSystem
	events     *core.EventBus

	ctx    renderer.MaterialContext
	passes PassReloader

	mu        sync.RWMutex
	materials *containers.Registry[*materialEntry]
	names     map[string]metadata.MaterialHandle
}

func NewMaterialSystem(config MaterialSystemConfig, am *assets.AssetManager, blueprints *assets.BlueprintRegistry, ts *TextureSystem, events *core.EventBus) (*MaterialSystem, error) {
	if config.MaxMaterialCount == 0 {
		err := fmt.Errorf("func NewMaterialSystem - config.MaxMaterialCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &MaterialSystem{
		config:     config,
		assets:     am,
		blueprints: blueprints,
		textures:   ts,
		events:     events,
		materials:  containers.NewRegistry[*materialEntry](int(config.MaxMaterialCount)),
		names:      map[string]metadata.MaterialHandle{},
	}, nil
}

/**
 * @brief Binds the system to the renderer, creates a material for every
 * material file of the asset index and starts following asset changes.
 * A material file that fails to build is logged and skipped.
 */
func (ms *MaterialSystem) Initialize(ctx renderer.MaterialContext, passes PassReloader) error {
	ms.ctx = ctx
	ms.passes = passes
	for _, info := range ms.assets.Assets(metadata.ResourceTypeMaterial) {
		if _, err := ms.LoadFile(info.Path); err != nil {
			core.LogError("material file %s: %s", info.Path, err.Error())
		}
	}
	if ms.events != nil {
		ms.events.Register(core.EventCodeAssetChanged, ms, ms.onAssetChanged)
	}
	return nil
}

// LoadFile creates the material described by a material file, or updates it
// when a material of that name already exists.
func (ms *MaterialSystem) LoadFile(path string) (metadata.MaterialHandle, error) {
	res, err := ms.assets.LoadPath(path, nil)
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	cfg := res.Data.(*metadata.MaterialConfig)
	if h, ok := ms.Handle(cfg.Name); ok {
		return h, ms.update(h, cfg)
	}
	return ms.Create(cfg)
}

// Create builds a material from cfg and registers it under cfg.Name.
func (ms *MaterialSystem) Create(cfg *metadata.MaterialConfig) (metadata.MaterialHandle, error) {
	ms.mu.RLock()
	_, exists := ms.names[cfg.Name]
	full := ms.materials.Len() >= int(ms.config.MaxMaterialCount)
	ms.mu.RUnlock()
	if exists {
		return metadata.MaterialHandle{}, fmt.Errorf("material %s already exists", cfg.Name)
	}
	if full {
		return metadata.MaterialHandle{}, fmt.Errorf("material system is full, cannot create %s", cfg.Name)
	}
	bp, ok := ms.blueprints.Get(cfg.Blueprint)
	if !ok {
		return metadata.MaterialHandle{}, fmt.Errorf("%w: material %s uses unknown blueprint %s", core.ErrInvalidBlueprint, cfg.Name, cfg.Blueprint)
	}
	m, err := renderer.NewMaterial(ms.ctx, bp)
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	entry := &materialEntry{material: m}
	ms.apply(entry, cfg)

	ms.mu.Lock()
	h := ms.materials.Insert(entry)
	ms.names[cfg.Name] = h
	ms.mu.Unlock()
	core.LogDebug("material %s created from blueprint %s", cfg.Name, cfg.Blueprint)
	return h, nil
}

// apply pushes the constants of cfg into the material and binds its maps.
func (ms *MaterialSystem) apply(entry *materialEntry, cfg *metadata.MaterialConfig) {
	maps := cfg.Maps()
	acquired := make([]string, 0, len(maps))
	bound := map[string]bool{}
	for _, binding := range mapBindings {
		if _, ok := entry.material.Binding(binding); !ok {
			continue
		}
		img := ms.textures.Default(binding)
		if name, ok := maps[binding]; ok {
			srgb := binding == "albedo_map" || binding == "emissive_map"
			loaded, err := ms.textures.Acquire(name, srgb)
			if err != nil {
				core.LogWarn("material %s: %s, using the default texture", cfg.Name, err.Error())
				img = ms.textures.Default(DefaultTextureName)
			} else {
				img = loaded
				acquired = append(acquired, name)
				bound[binding] = true
			}
		}
		entry.material.UploadImage(binding, img)
	}
	for _, name := range entry.textures {
		ms.textures.Release(name)
	}
	entry.textures = acquired
	entry.config = cfg

	data := renderer.DefaultMaterialData()
	data.BaseColour = cfg.BaseColour
	data.Metallic = cfg.Metallic
	data.Roughness = cfg.Roughness
	data.AlbedoMap = bound["albedo_map"]
	data.NormalMap = bound["normal_map"]
	data.MetallicMap = bound["metallic_map"]
	data.RoughnessMap = bound["roughness_map"]
	data.AOMap = bound["ao_map"]
	data.EmissiveMap = bound["emissive_map"]
	entry.material.SetData(data)
}

// update applies a changed material file. A new blueprint rebuilds the pipeline.
func (ms *MaterialSystem) update(h metadata.MaterialHandle, cfg *metadata.MaterialConfig) error {
	ms.mu.RLock()
	entry, ok := ms.materials.Get(h)
	ms.mu.RUnlock()
	if !ok {
		return containers.ErrInvalidHandle
	}
	if cfg.Blueprint != entry.config.Blueprint {
		bp, ok := ms.blueprints.Get(cfg.Blueprint)
		if !ok {
			return fmt.Errorf("%w: material %s uses unknown blueprint %s", core.ErrInvalidBlueprint, cfg.Name, cfg.Blueprint)
		}
		if err := entry.material.Reload(bp); err != nil {
			return err
		}
	}
	ms.apply(entry, cfg)
	ms.reloaded(cfg.Name)
	return nil
}

func (ms *MaterialSystem) Handle(name string) (metadata.MaterialHandle, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	h, ok := ms.names[name]
	return h, ok
}

func (ms *MaterialSystem) Material(h metadata.MaterialHandle) (*renderer.Material, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	entry, ok := ms.materials.Get(h)
	if !ok {
		return nil, false
	}
	return entry.material, true
}

func (ms *MaterialSystem) Each(fn func(m *renderer.Material)) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ms.materials.Each(func(_ containers.Handle, entry *materialEntry) bool {
		fn(entry.material)
		return true
	})
}

// Config returns the configuration the material was last built from.
func (ms *MaterialSystem) Config(h metadata.MaterialHandle) (*metadata.MaterialConfig, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	entry, ok := ms.materials.Get(h)
	if !ok {
		return nil, false
	}
	return entry.config, true
}

// Destroy drains the device and releases the material and its textures.
func (ms *MaterialSystem) Destroy(h metadata.MaterialHandle) error {
	ms.mu.Lock()
	entry, err := ms.materials.Remove(h)
	if err == nil {
		delete(ms.names, entry.config.Name)
	}
	ms.mu.Unlock()
	if err != nil {
		return err
	}
	if err := ms.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	for _, name := range entry.textures {
		ms.textures.Release(name)
	}
	entry.material.Destroy()
	return nil
}

func (ms *MaterialSystem) onAssetChanged(ctx core.EventContext) bool {
	ev, ok := ctx.Data.(*core.AssetEvent)
	if !ok {
		return false
	}
	switch ev.Kind {
	case metadata.ResourceTypeBlueprint.String():
		bp, err := ms.blueprints.Reload(ev.Path)
		if err != nil {
			core.LogError("blueprint %s: %s", ev.Path, err.Error())
			return false
		}
		ms.ReloadBlueprint(bp.Name)
	case metadata.ResourceTypeShader.String():
		shader := loaders.ShaderPath(ms.assets.Relative(ev.Path))
		for _, name := range ms.blueprints.Users(shader) {
			ms.ReloadBlueprint(name)
		}
	case metadata.ResourceTypeMaterial.String():
		if _, err := ms.LoadFile(ev.Path); err != nil {
			core.LogError("material file %s: %s", ev.Path, err.Error())
		}
	case metadata.ResourceTypeImage.String():
		name, loaded := ms.textures.Name(ev.Path)
		if !loaded {
			return false
		}
		img, resized, err := ms.textures.Reload(name)
		if err != nil {
			core.LogError("texture %s: %s", name, err.Error())
			return false
		}
		if resized {
			ms.Each(func(m *renderer.Material) { m.Invalidate(img) })
		}
	}
	// Other listeners may follow the same change.
	return false
}

/**
 * @brief Rebuilds every material created from the named blueprint, the pass
 * material included when the blueprint drives one of the fixed passes. A
 * material that fails to rebuild keeps its previous pipeline.
 * @return The number of materials that picked up a new pipeline.
 */
func (ms *MaterialSystem) ReloadBlueprint(name string) int {
	bp, ok := ms.blueprints.Get(name)
	if !ok {
		core.LogWarn("reload of unknown blueprint %s", name)
		return 0
	}
	reloaded := 0
	if pass, err := metadata.ParsePassName(name); err == nil && ms.passes != nil {
		if err := ms.passes.ReloadPass(pass, bp); err != nil {
			core.LogError("pass %s: %s", name, err.Error())
		} else {
			reloaded++
			ms.reloaded(name)
		}
	}

	ms.mu.RLock()
	var users []*materialEntry
	ms.materials.Each(func(_ containers.Handle, entry *materialEntry) bool {
		if entry.config.Blueprint == name {
			users = append(users, entry)
		}
		return true
	})
	ms.mu.RUnlock()
	for _, entry := range users {
		before := entry.material.Hash()
		if err := entry.material.Reload(bp); err != nil || entry.material.Hash() == before {
			continue
		}
		// Bindings that disappeared from the layout were dropped, bind the maps again.
		ms.apply(entry, entry.config)
		reloaded++
		ms.reloaded(entry.config.Name)
	}
	return reloaded
}

func (ms *MaterialSystem) reloaded(name string) {
	if ms.events == nil {
		return
	}
	ms.events.Post(core.EventContext{Type: core.EventCodeMaterialReloaded, Data: name})
}

func (ms *MaterialSystem) Shutdown() error {
	if ms.events != nil {
		ms.events.Unregister(core.EventCodeAssetChanged, ms)
	}
	ms.mu.Lock()
	var entries []*materialEntry
	ms.materials.Each(func(_ containers.Handle, entry *materialEntry) bool {
		entries = append(entries, entry)
		return true
	})
	ms.materials = containers.NewRegistry[*materialEntry](int(ms.config.MaxMaterialCount))
	ms.names = map[string]metadata.MaterialHandle{}
	ms.mu.Unlock()
	// Textures are destroyed with the texture system.
	for _, entry := range entries {
		entry.material.Destroy()
	}
	return nil
}
