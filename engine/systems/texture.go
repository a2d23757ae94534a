package systems

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief The name of the default texture, shown where a texture failed to load. */
const DefaultTextureName string = "default"

const (
	defaultWhiteName  = "default_white"
	defaultNormalName = "default_normal"
	defaultBlackName  = "default_black"

	checkerSize = 64
	checkerTile = 8
)

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount uint32
}

type textureReference struct {
	image          *renderer.GPUImage
	referenceCount uint32
	srgb           bool
}

/**
 * @brief Loads images from the texture directory into sampled device images
 * and hands them out by name with reference counting. Every method runs on the
 * frame goroutine.
 */
type TextureSystem struct {
	config   TextureSystemConfig
	assets   *assets.AssetManager
	device   metadata.Device
	deferred *renderer.DeferredQueue
	sampler  metadata.Sampler

	mu       sync.Mutex
	textures map[string]*textureReference
	defaults map[string]*renderer.GPUImage
}

func NewTextureSystem(config TextureSystemConfig, am *assets.AssetManager) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &TextureSystem{
		config:   config,
		assets:   am,
		textures: make(map[string]*textureReference),
		defaults: make(map[string]*renderer.GPUImage),
	}, nil
}

// Initialize creates the sampler and the default textures on device.
func (ts *TextureSystem) Initialize(device metadata.Device, deferred *renderer.DeferredQueue) error {
	ts.device = device
	ts.deferred = deferred
	sampler, err := device.CreateSampler(metadata.SamplerDesc{Label: "texture", Linear: true})
	if err != nil {
		return fmt.Errorf("creating texture sampler: %w", err)
	}
	ts.sampler = sampler

	// Magenta and white checkers so a missing texture is easy to spot.
	checker := make([]byte, checkerSize*checkerSize*4)
	for y := 0; y < checkerSize; y++ {
		for x := 0; x < checkerSize; x++ {
			i := (y*checkerSize + x) * 4
			checker[i], checker[i+1], checker[i+2], checker[i+3] = 255, 255, 255, 255
			if (x/checkerTile+y/checkerTile)%2 == 0 {
				checker[i+1] = 0
			}
		}
	}
	defaults := []struct {
		name   string
		size   uint32
		pixels []byte
		srgb   bool
	}{
		{DefaultTextureName, checkerSize, checker, true},
		{defaultWhiteName, 1, []byte{255, 255, 255, 255}, true},
		{defaultNormalName, 1, []byte{128, 128, 255, 255}, false},
		{defaultBlackName, 1, []byte{0, 0, 0, 255}, true},
	}
	for _, d := range defaults {
		img, err := ts.createImage(d.name, d.size, d.size, d.srgb)
		if err != nil {
			return err
		}
		if err := img.Upload(d.pixels); err != nil {
			img.Destroy()
			return err
		}
		ts.defaults[d.name] = img
	}
	return nil
}

func (ts *TextureSystem) createImage(label string, width, height uint32, srgb bool) (*renderer.GPUImage, error) {
	format := metadata.FormatR8G8B8A8Unorm
	if srgb {
		format = metadata.FormatR8G8B8A8Srgb
	}
	return renderer.NewGPUImage(ts.device, ts.deferred, metadata.ImageDesc{
		Label:  label,
		Width:  width,
		Height: height,
		Format: format,
		Usage:  metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	}, ts.sampler)
}

// Default returns the placeholder bound to a material map binding that has no image.
func (ts *TextureSystem) Default(binding string) *renderer.GPUImage {
	switch binding {
	case "normal_map":
		return ts.defaults[defaultNormalName]
	case "emissive_map":
		return ts.defaults[defaultBlackName]
	case DefaultTextureName:
		return ts.defaults[DefaultTextureName]
	default:
		return ts.defaults[defaultWhiteName]
	}
}

func (ts *TextureSystem) path(name string) string {
	return filepath.Join(ts.assets.Dir(metadata.ResourceTypeImage), name)
}

func (ts *TextureSystem) load(name string) (*metadata.ImageResourceData, error) {
	res, err := ts.assets.LoadPath(ts.path(name), &metadata.ImageResourceParams{FlipY: true})
	if err != nil {
		return nil, err
	}
	data := res.Data.(*metadata.ImageResourceData)
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("texture %s: %w", name, err)
	}
	return data, nil
}

/**
 * @brief Acquires the texture with the given name, relative to the texture
 * directory, loading it on first use. Colour data should be acquired as srgb.
 * Every Acquire must be paired with a Release.
 */
func (ts *TextureSystem) Acquire(name string, srgb bool) (*renderer.GPUImage, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ref, ok := ts.textures[name]; ok {
		ref.referenceCount++
		return ref.image, nil
	}
	if len(ts.textures) >= int(ts.config.MaxTextureCount) {
		return nil, fmt.Errorf("texture system is full, cannot acquire %s", name)
	}
	data, err := ts.load(name)
	if err != nil {
		return nil, fmt.Errorf("loading texture %s: %w", name, err)
	}
	img, err := ts.createImage(name, data.Width, data.Height, srgb)
	if err != nil {
		return nil, err
	}
	if err := img.Upload(data.Pixels); err != nil {
		img.Destroy()
		return nil, err
	}
	ts.textures[name] = &textureReference{image: img, referenceCount: 1, srgb: srgb}
	core.LogDebug("texture %s loaded (%dx%d)", name, data.Width, data.Height)
	return img, nil
}

// Release drops one reference, the image is retired when none remain.
func (ts *TextureSystem) Release(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ref, ok := ts.textures[name]
	if !ok {
		core.LogWarn("tried to release unknown texture '%s'", name)
		return
	}
	ref.referenceCount--
	if ref.referenceCount == 0 {
		delete(ts.textures, name)
		ts.deferred.Retire(ref.image)
	}
}

// Name maps a file path reported by the asset watcher to the texture name it is loaded under.
func (ts *TextureSystem) Name(path string) (string, bool) {
	rel, err := filepath.Rel(ts.assets.Dir(metadata.ResourceTypeImage), path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.textures[rel]
	return rel, ok
}

/**
 * @brief Reads the file of a loaded texture again and uploads it. The device
 * is drained first since frames in flight may sample the image.
 * @return The image and whether it was reallocated at a new size, in which
 * case descriptor sets referencing it must be rewritten.
 */
func (ts *TextureSystem) Reload(name string) (*renderer.GPUImage, bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ref, ok := ts.textures[name]
	if !ok {
		return nil, false, fmt.Errorf("texture %s is not loaded", name)
	}
	data, err := ts.load(name)
	if err != nil {
		return nil, false, err
	}
	if err := ts.device.WaitIdle(); err != nil {
		return nil, false, err
	}
	resized := data.Width != ref.image.Width() || data.Height != ref.image.Height()
	if resized {
		if err := ref.image.Recreate(data.Width, data.Height); err != nil {
			return nil, false, err
		}
	}
	if err := ref.image.Upload(data.Pixels); err != nil {
		return nil, false, err
	}
	core.LogInfo("texture %s reloaded", name)
	return ref.image, resized, nil
}

func (ts *TextureSystem) Shutdown() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for name, ref := range ts.textures {
		ref.image.Destroy()
		delete(ts.textures, name)
	}
	for name, img := range ts.defaults {
		img.Destroy()
		delete(ts.defaults, name)
	}
	if ts.sampler != nil {
		ts.device.Destroy(ts.sampler)
		ts.sampler = nil
	}
	return nil
}
