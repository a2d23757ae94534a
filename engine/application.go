package engine

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// Context is what the engine hands to its layers once every system is up.
type Context struct {
	Config   *core.Config
	Systems  *systems.SystemManager
	Renderer *renderer.FrameRenderer
	Input    *core.Input
	Events   *core.EventBus
	Camera   *components.Camera
}

/**
 * @brief A unit of application behaviour. Every layer is attached in order after
 * the renderer is ready and detached in reverse order on shutdown. Whatever else a
 * layer does is expressed by implementing one of the capability interfaces below.
 */
type Layer interface {
	Name() string
	OnAttach(ctx *Context) error
	OnDetach()
}

// Updater advances layer state once per frame, before any submission.
type Updater interface {
	Update(ctx *Context, delta time.Duration) error
}

// Submitter queues draw commands and lines for the frame about to be recorded.
type Submitter interface {
	Submit(r *renderer.FrameRenderer)
}

// EventHandler sees input, resize and reload events. Returning true stops
// propagation to layers attached before it.
type EventHandler interface {
	OnEvent(ctx core.EventContext) bool
}

type Resizer interface {
	OnResize(width, height uint32)
}

// forwardedEvents are the codes dispatched to EventHandler layers.
var forwardedEvents = []core.EventCode{
	core.EventCodeKeyPressed,
	core.EventCodeKeyReleased,
	core.EventCodeButtonPressed,
	core.EventCodeButtonReleased,
	core.EventCodeMouseMoved,
	core.EventCodeMouseWheel,
	core.EventCodeMaterialReloaded,
}
