package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var ErrAssetManagerClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

/**
 * @brief Indexes the asset directory, loads files through the loader
 * registered for their type and, when watching, posts a debounced
 * EventCodeAssetChanged for every file written on disk.
 */
type AssetManager struct {
	config  core.AssetsConfig
	events  *core.EventBus
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	debounce time.Duration
	pending  map[string]*time.Timer
	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(config core.AssetsConfig, events *core.EventBus) *AssetManager {
	return &AssetManager{
		config:   config,
		events:   events,
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		debounce: time.Duration(config.DebounceMS) * time.Millisecond,
		pending:  make(map[string]*time.Timer),
	}
}

func (am *AssetManager) Initialize() error {
	// Register loaders
	am.registerLoader(metadata.ResourceTypeBlueprint, &loaders.BlueprintLoader{})
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(metadata.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})

	if err := am.index(am.config.Root); err != nil {
		return fmt.Errorf("indexing assets in %s: %w", am.config.Root, err)
	}
	if !am.config.Watch {
		return nil
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})
	if err := am.watchRecursive(am.config.Root, false); err != nil {
		fsWatch.Close()
		am.fsnotify = nil
		return err
	}
	go am.start()
	core.LogInfo("watching %s for asset changes", am.config.Root)
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Root() string {
	return am.config.Root
}

// Dir is the directory holding assets of the given type, empty for types without one.
func (am *AssetManager) Dir(assetType metadata.ResourceType) string {
	switch assetType {
	case metadata.ResourceTypeBlueprint:
		return filepath.Join(am.config.Root, am.config.Blueprints)
	case metadata.ResourceTypeShader, metadata.ResourceTypeShaderSource:
		return filepath.Join(am.config.Root, am.config.Shaders)
	case metadata.ResourceTypeMaterial:
		return filepath.Join(am.config.Root, am.config.Materials)
	case metadata.ResourceTypeImage:
		return filepath.Join(am.config.Root, am.config.Textures)
	default:
		return ""
	}
}

// Resolve turns a name relative to the asset root into a path.
func (am *AssetManager) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(am.config.Root, name)
}

// Relative turns a watched path back into a name relative to the asset root.
func (am *AssetManager) Relative(path string) string {
	rel, err := filepath.Rel(am.config.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// LoadAsset loads name, relative to the asset root, with the loader of resourceType.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	return am.load(am.Resolve(name), resourceType, params)
}

// LoadPath loads a file the watcher reported, picking the loader from its extension.
func (am *AssetManager) LoadPath(path string, params interface{}) (*metadata.Resource, error) {
	return am.load(filepath.Clean(path), determineAssetType(path), params)
}

func (am *AssetManager) load(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	am.mutex.RLock()
	loader, loaderExists := am.loaders[resourceType]
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return nil, ErrAssetManagerClosed
	}
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}
	res.Type = resourceType

	// Partial reads such as binary heads do not change what the file is.
	if indexed := determineAssetType(path); indexed != metadata.ResourceTypeUnknown {
		am.mutex.Lock()
		am.assets[path] = AssetInfo{Path: path, Type: indexed, LastLoaded: time.Now()}
		am.mutex.Unlock()
	}
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	if asset == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// Assets lists the indexed files of a type, sorted by path.
func (am *AssetManager) Assets(assetType metadata.ResourceType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, a := range am.assets {
		if a.Type == assetType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for path, timer := range am.pending {
		timer.Stop()
		delete(am.pending, path)
	}
	am.mutex.Unlock()

	if am.fsnotify != nil {
		close(am.done)
		<-am.stopped
	}
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", e.Error())

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogError("closing asset watcher: %s", err.Error())
			}
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(e.Name, false); err != nil {
				core.LogError("watching %s: %s", e.Name, err.Error())
			}
		}
		return
	}
	// Handle create or modify events
	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		if am.handleFileEvent(e.Name) {
			am.schedule(filepath.Clean(e.Name))
		}
	}
	// Can't stat a deleted path, so it may have been a directory as well.
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// schedule posts the change of path once no further writes arrived for the debounce period.
func (am *AssetManager) schedule(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return
	}
	if timer, ok := am.pending[path]; ok {
		timer.Reset(am.debounce)
		return
	}
	assetType := determineAssetType(path)
	am.pending[path] = time.AfterFunc(am.debounce, func() {
		am.mutex.Lock()
		delete(am.pending, path)
		closed := am.isClosed
		am.mutex.Unlock()
		if closed || am.events == nil {
			return
		}
		core.LogDebug("asset changed: %s (%s)", path, assetType)
		am.events.Post(core.EventContext{
			Type: core.EventCodeAssetChanged,
			Data: &core.AssetEvent{Path: path, Kind: assetType.String()},
		})
	})
}

// index records every file of a known type below root.
func (am *AssetManager) index(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.handleFileEvent(path)
		}
		return nil
	})
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.handleFileEvent(walkPath)
			return nil
		}
		if unWatch {
			return am.fsnotify.Remove(walkPath)
		}
		return am.fsnotify.Add(walkPath)
	})
}

// handleFileEvent indexes a created or modified file. It reports false for files of unknown type.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeUnknown {
		return false
	}
	path = filepath.Clean(path)
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) metadata.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return metadata.ResourceTypeBlueprint
	case ".spv":
		return metadata.ResourceTypeShader
	case ".vert", ".frag", ".comp", ".glsl":
		return metadata.ResourceTypeShaderSource
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.ResourceTypeImage
	case ".amt":
		return metadata.ResourceTypeMaterial
	default:
		return metadata.ResourceTypeUnknown
	}
}
