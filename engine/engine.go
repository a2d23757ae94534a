package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

const (
	eventQueueSize = 256
	// How often frame metrics are logged.
	metricsInterval = 5 * time.Second
	// Wait timeout for window events while minimized, in seconds.
	suspendedWait = 0.1
)

type Engine struct {
	stage     Stage
	game      *Game
	config    *core.Config
	running   atomic.Bool
	suspended bool
	width     uint32
	height    uint32

	ctx    context.Context
	cancel context.CancelFunc

	events    *core.EventBus
	input     *core.Input
	platform  *platform.Platform
	backend   *vulkan.VulkanRenderer
	device    metadata.Device
	presenter metadata.Presenter
	systems   *systems.SystemManager
	renderer  *renderer.FrameRenderer
	layerCtx  *Context
	attached  int

	clock       *core.Clock
	metrics     *core.FrameMetrics
	lastTime    time.Duration
	lastMetrics time.Duration
	frames      uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.Config == nil {
		return nil, fmt.Errorf("engine: %w", core.ErrInvalidConfig)
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := core.NewEventBus(eventQueueSize)
	return &Engine{
		stage:   EngineStageUninitialized,
		game:    g,
		config:  g.Config,
		width:   g.Config.Application.Width,
		height:  g.Config.Application.Height,
		ctx:     ctx,
		cancel:  cancel,
		events:  events,
		input:   core.NewInput(events),
		clock:   core.NewClock(),
		metrics: core.NewFrameMetrics(),
	}, nil
}

// Initialize brings up the window and device, then the systems, the frame
// renderer and finally every layer. On error whatever was created is released.
func (e *Engine) Initialize() error {
	if e.stage != EngineStageUninitialized {
		return fmt.Errorf("engine: initialize called twice")
	}
	e.stage = EngineStageInitializing
	core.SetLogLevel(core.ParseLogLevel(e.config.Application.LogLevel))

	e.events.Register(core.EventCodeApplicationQuit, e, e.onQuit)
	e.events.Register(core.EventCodeKeyPressed, e, e.onKey)
	e.events.Register(core.EventCodeResized, e, e.onResized)

	if err := e.initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}
	e.stage = EngineStageInitialized
	return nil
}

func (e *Engine) initialize() error {
	app := e.config.Application
	if app.Headless {
		core.LogInfo("running headless, frames are recorded but never presented")
		e.device = headless.New()
	} else {
		e.platform = platform.New(e.input, e.events)
		if err := e.platform.Startup(app.Name, 100, 100, app.Width, app.Height); err != nil {
			return err
		}
		if w, h := e.platform.FramebufferSize(); w > 0 && h > 0 {
			e.width, e.height = w, h
		}

		e.backend = vulkan.New(e.platform, e.config.Renderer)
		if err := e.backend.Initialize(app.Name, e.width, e.height); err != nil {
			return err
		}
		e.device = e.backend.Device()
		e.presenter = e.backend.Presenter()
	}

	sm, err := systems.NewSystemManager(e.ctx, e.config, e.events, e.device)
	if err != nil {
		return err
	}
	e.systems = sm

	r, err := renderer.NewFrameRenderer(renderer.FrameRendererContext{
		Device:     e.device,
		Jobs:       sm.Jobs,
		Meshes:     sm.Meshes,
		Materials:  sm.Materials,
		Blueprints: sm.Blueprints,
		Shaders:    sm.Shaders,
		Config:     e.config.Renderer,
		Width:      e.width,
		Height:     e.height,
	})
	if err != nil {
		return err
	}
	e.renderer = r
	if err := sm.Initialize(r); err != nil {
		return err
	}
	if e.height > 0 {
		sm.Cameras.SetAspect(float32(e.width) / float32(e.height))
	}

	e.layerCtx = &Context{
		Config:   e.config,
		Systems:  sm,
		Renderer: r,
		Input:    e.input,
		Events:   e.events,
		Camera:   sm.Cameras.Default(),
	}
	for _, l := range e.game.Layers {
		if err := l.OnAttach(e.layerCtx); err != nil {
			return fmt.Errorf("attaching layer %s: %w", l.Name(), err)
		}
		e.attached++
		core.LogDebug("layer %s attached", l.Name())
	}
	for _, code := range forwardedEvents {
		e.events.Register(code, e.game, e.dispatch)
	}
	for _, rs := range e.game.resizers() {
		rs.OnResize(e.width, e.height)
	}
	return nil
}

// Run drives frames until Stop is called, the window closes or the configured
// number of frames has been rendered.
func (e *Engine) Run() error {
	if e.stage != EngineStageInitialized {
		return fmt.Errorf("engine: run called before initialize")
	}
	e.stage = EngineStageRunning
	e.running.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	updaters := e.game.updaters()
	submitters := e.game.submitters()

	for e.running.Load() {
		if e.platform != nil {
			if e.suspended {
				e.platform.WaitMessages(suspendedWait)
			} else {
				e.platform.PumpMessages()
			}
		}
		e.events.ProcessEvents()
		if !e.running.Load() {
			break
		}
		if e.suspended {
			continue
		}

		e.clock.Update()
		now := e.clock.Elapsed()
		delta := now - e.lastTime

		for _, u := range updaters {
			if err := u.Update(e.layerCtx, delta); err != nil {
				core.LogError("update failed, shutting down: %s", err.Error())
				e.running.Store(false)
				return err
			}
		}
		for _, s := range submitters {
			s.Submit(e.renderer)
		}

		if err := e.drawFrame(); err != nil {
			return err
		}

		// Input state is copied last so every listener this frame saw the same previous state.
		e.input.Update()

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - now)
		if now-e.lastMetrics >= metricsInterval {
			e.lastMetrics = now
			core.LogDebug("fps %.0f, frame %.2fms, %d frames", e.metrics.FPS(), e.metrics.FrameTime(), e.metrics.TotalFrames())
		}
		e.lastTime = now

		e.frames++
		if limit := e.config.Application.MaxFrames; limit > 0 && e.frames >= limit {
			core.LogInfo("rendered %d frames, stopping", e.frames)
			e.running.Store(false)
		}
	}
	return nil
}

func (e *Engine) drawFrame() error {
	cam := e.layerCtx.Camera
	frame := e.renderer.NextFrame()
	if err := e.renderer.BeginFrame(frame, cam.View(), cam.Projection(), cam.InverseProjection()); err != nil {
		core.LogError("begin frame %d: %s", frame, err.Error())
		return err
	}
	if err := e.renderer.EndFrame(frame); err != nil {
		core.LogFatal("end frame %d: %s", frame, err.Error())
	}
	if e.presenter == nil {
		return nil
	}
	w, h := e.renderer.Size()
	if err := e.presenter.Present(e.renderer.OutputImage().Device(), w, h); err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			core.LogDebug("swapchain out of date, frame %d dropped", frame)
			return nil
		}
		core.LogError("present: %s", err.Error())
		return err
	}
	return nil
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Stage reports where the engine is in its lifecycle.
func (e *Engine) Stage() Stage {
	return e.stage
}

// Frames is the number of frames Run has completed.
func (e *Engine) Frames() uint64 {
	return e.frames
}

// Renderer is nil until Initialize succeeds.
func (e *Engine) Renderer() *renderer.FrameRenderer {
	return e.renderer
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systems
}

func (e *Engine) Device() metadata.Device {
	return e.device
}

// FramebufferSize returns the width and height of the rendered output.
func (e *Engine) FramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

/**
 * @brief Releases everything in reverse creation order: layers, systems, the
 * frame renderer, the device and the window. Must be called from the goroutine
 * that called Initialize, after Run returned.
 */
func (e *Engine) Shutdown() error {
	if e.stage == EngineStageShutdown {
		return nil
	}
	e.stage = EngineStageShuttingDown
	e.running.Store(false)
	e.cancel()

	var errs []error
	if e.device != nil {
		errs = append(errs, e.device.WaitIdle())
	}
	for i := e.attached - 1; i >= 0; i-- {
		e.game.Layers[i].OnDetach()
	}
	e.attached = 0
	if e.systems != nil {
		errs = append(errs, e.systems.Shutdown())
		e.systems = nil
	}
	if e.renderer != nil {
		e.renderer.Destroy()
		e.renderer = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
		e.backend = nil
	}
	e.device = nil
	e.presenter = nil
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
		e.platform = nil
	}
	e.events.Shutdown()
	e.stage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) onQuit(ctx core.EventContext) bool {
	core.LogInfo("EventCodeApplicationQuit received, shutting down.")
	e.running.Store(false)
	return true
}

func (e *Engine) onKey(ctx core.EventContext) bool {
	ke, ok := ctx.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ctx.Type)
		return false
	}
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EventCodeApplicationQuit})
		return true
	case core.KEY_F5:
		e.reloadBlueprints()
		return true
	}
	return false
}

// reloadBlueprints rebuilds every material whose blueprint hash changed.
func (e *Engine) reloadBlueprints() {
	if e.systems == nil {
		return
	}
	reloaded := 0
	for _, name := range e.systems.Blueprints.Names() {
		reloaded += e.systems.Materials.ReloadBlueprint(name)
	}
	core.LogInfo("blueprint reload: %d materials rebuilt", reloaded)
}

func (e *Engine) onResized(ctx core.EventContext) bool {
	re, ok := ctx.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", ctx.Type)
		return false
	}
	if re.Width == e.width && re.Height == e.height {
		return false
	}
	e.width, e.height = re.Width, re.Height
	core.LogDebug("Window resize: %d, %d", re.Width, re.Height)

	// Handle minimization
	if re.Width == 0 || re.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.suspended = true
		return false
	}
	if e.suspended {
		core.LogInfo("Window restored, resuming application.")
		e.suspended = false
	}
	if e.renderer == nil {
		return false
	}
	if err := e.renderer.Resize(re.Width, re.Height); err != nil {
		core.LogError("renderer resize: %s", err.Error())
		return false
	}
	if e.presenter != nil {
		if err := e.presenter.Resize(re.Width, re.Height); err != nil {
			core.LogError("swapchain resize: %s", err.Error())
		}
	}
	e.systems.Cameras.SetAspect(float32(re.Width) / float32(re.Height))
	for _, rs := range e.game.resizers() {
		rs.OnResize(re.Width, re.Height)
	}
	// Other listeners may want the new size as well.
	return false
}

// dispatch forwards an event to the layers, last attached first.
func (e *Engine) dispatch(ctx core.EventContext) bool {
	for _, h := range e.game.eventHandlers() {
		if h.OnEvent(ctx) {
			return true
		}
	}
	return false
}
