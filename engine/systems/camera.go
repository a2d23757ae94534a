package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
)

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/** @brief The maximum number of named cameras managed by the system. */
	MaxCameraCount uint16
	/** @brief Aspect ratio given to newly acquired cameras. */
	Aspect float32
}

type cameraLookup struct {
	camera         *components.Camera
	referenceCount uint16
}

// CameraSystem hands out named cameras with reference counting. The default
// camera always exists and is never released.
type CameraSystem struct {
	config  CameraSystemConfig
	mu      sync.Mutex
	cameras map[string]*cameraLookup
	// A default, non-registered camera that always exists as a fallback.
	defaultCamera *components.Camera
}

func NewCameraSystem(config CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	if config.Aspect <= 0 {
		config.Aspect = 1
	}
	return &CameraSystem{
		config:        config,
		cameras:       make(map[string]*cameraLookup, config.MaxCameraCount),
		defaultCamera: components.NewCamera(config.Aspect),
	}, nil
}

/**
 * @brief Acquires the camera with the given name, creating it if needed.
 * Every Acquire must be paired with a Release.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == components.DefaultCameraName {
		return cs.defaultCamera, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if l, ok := cs.cameras[name]; ok {
		l.referenceCount++
		return l.camera, nil
	}
	if len(cs.cameras) >= int(cs.config.MaxCameraCount) {
		err := fmt.Errorf("camera system is full, cannot acquire %s", name)
		core.LogError("%s", err.Error())
		return nil, err
	}
	l := &cameraLookup{camera: components.NewCamera(cs.config.Aspect), referenceCount: 1}
	cs.cameras[name] = l
	return l.camera, nil
}

// Release drops one reference, the camera is forgotten when none remain.
func (cs *CameraSystem) Release(name string) {
	if name == components.DefaultCameraName {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	l, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("tried to release unknown camera '%s'", name)
		return
	}
	l.referenceCount--
	if l.referenceCount == 0 {
		delete(cs.cameras, name)
	}
}

func (cs *CameraSystem) Default() *components.Camera {
	return cs.defaultCamera
}

// SetAspect updates every camera, used when the output is resized.
func (cs *CameraSystem) SetAspect(aspect float32) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.config.Aspect = aspect
	cs.defaultCamera.SetAspect(aspect)
	for _, l := range cs.cameras {
		l.camera.SetAspect(aspect)
	}
}

func (cs *CameraSystem) Shutdown() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cameras = map[string]*cameraLookup{}
	return nil
}
