package systems

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// SystemManager owns the engine systems. Create it before the frame renderer,
// since the renderer reads meshes, materials and shaders through it, then
// call Initialize once the renderer exists.
type SystemManager struct {
	Jobs       *jobs.JobSystem
	Assets     *assets.AssetManager
	Blueprints *assets.BlueprintRegistry
	Cameras    *CameraSystem
	Shaders    *ShaderSystem
	Textures   *TextureSystem
	Meshes     *MeshSystem
	Materials  *MaterialSystem
}

func NewSystemManager(ctx context.Context, config *core.Config, events *core.EventBus, device metadata.Device) (*SystemManager, error) {
	js, err := jobs.NewJobSystem(config.Jobs.Workers, config.Jobs.QueueSize)
	if err != nil {
		return nil, err
	}
	sm := &SystemManager{Jobs: js}

	sm.Assets = assets.NewAssetManager(config.Assets, events)
	if err := sm.Assets.Initialize(); err != nil {
		_ = sm.Shutdown()
		return nil, err
	}
	sm.Blueprints = assets.NewBlueprintRegistry(sm.Assets)
	if err := sm.Blueprints.LoadAll(ctx); err != nil {
		_ = sm.Shutdown()
		return nil, fmt.Errorf("loading blueprints: %w", err)
	}

	aspect := float32(1)
	if config.Application.Height > 0 {
		aspect = float32(config.Application.Width) / float32(config.Application.Height)
	}
	if sm.Cameras, err = NewCameraSystem(CameraSystemConfig{MaxCameraCount: 61, Aspect: aspect}); err != nil {
		_ = sm.Shutdown()
		return nil, err
	}
	sm.Shaders = NewShaderSystem(sm.Assets, config.Assets.HashHeadBytes)
	if sm.Textures, err = NewTextureSystem(TextureSystemConfig{MaxTextureCount: 65536}, sm.Assets); err != nil {
		_ = sm.Shutdown()
		return nil, err
	}
	if sm.Meshes, err = NewMeshSystem(MeshSystemConfig{MaxMeshCount: 4096}, device); err != nil {
		_ = sm.Shutdown()
		return nil, err
	}
	if sm.Materials, err = NewMaterialSystem(MaterialSystemConfig{MaxMaterialCount: 1024}, sm.Assets, sm.Blueprints, sm.Textures, events); err != nil {
		_ = sm.Shutdown()
		return nil, err
	}
	return sm, nil
}

// Initialize finishes the systems that create device objects compatible with r.
func (sm *SystemManager) Initialize(r *renderer.FrameRenderer) error {
	ctx := r.MaterialContext()
	if err := sm.Textures.Initialize(ctx.Device, ctx.Deferred); err != nil {
		return err
	}
	return sm.Materials.Initialize(ctx, r)
}

// Shutdown stops every system in reverse creation order. The device must be idle.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	if sm.Materials != nil {
		errs = append(errs, sm.Materials.Shutdown())
	}
	if sm.Meshes != nil {
		errs = append(errs, sm.Meshes.Shutdown())
	}
	if sm.Textures != nil {
		errs = append(errs, sm.Textures.Shutdown())
	}
	if sm.Shaders != nil {
		errs = append(errs, sm.Shaders.Shutdown())
	}
	if sm.Cameras != nil {
		errs = append(errs, sm.Cameras.Shutdown())
	}
	if sm.Assets != nil {
		errs = append(errs, sm.Assets.Shutdown())
	}
	if sm.Jobs != nil {
		errs = append(errs, sm.Jobs.Shutdown())
	}
	return errors.Join(errs...)
}
