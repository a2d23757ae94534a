package core

import (
	"sync"

	"github.com/spaghettifunk/lumen/engine/containers"
)

// System internal event codes. Application code should use codes from EventCodeUser on.
type EventCode int

const (
	// Shuts the application down on the next frame.
	EventCodeApplicationQuit EventCode = iota + 1
	// Data: *KeyEvent
	EventCodeKeyPressed
	// Data: *KeyEvent
	EventCodeKeyReleased
	// Data: *MouseEvent
	EventCodeButtonPressed
	// Data: *MouseEvent
	EventCodeButtonReleased
	// Data: *MouseEvent
	EventCodeMouseMoved
	// Data: *MouseEvent
	EventCodeMouseWheel
	// Resized/resolution changed from the OS. Data: *ResizeEvent
	EventCodeResized
	// A watched asset file changed on disk. Data: *AssetEvent
	EventCodeAssetChanged
	// A material swapped in a rebuilt pipeline. Data: string material name
	EventCodeMaterialReloaded

	EventCodeUser EventCode = 0xFF
)

type EventContext struct {
	Type EventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   uint16
	PosY   uint16
	Scroll int8
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type AssetEvent struct {
	Path string
	Kind string
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events either immediately (Fire) or on the frame
// goroutine through a queue (Post then ProcessEvents). Post is safe from any goroutine.
type EventBus struct {
	mu         sync.Mutex
	registered map[EventCode][]*registeredEvent
	queue      *containers.RingQueue[EventContext]
}

func NewEventBus(queueSize int) *EventBus {
	return &EventBus{
		registered: make(map[EventCode][]*registeredEvent),
		queue:      containers.NewRingQueue[EventContext](queueSize),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A comparable listener instance, usually a pointer. Can be nil.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (b *EventBus) Register(code EventCode, listener interface{}, onEvent FnOnEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener from the given code. Returns false if it was not registered.
func (b *EventBus) Unregister(code EventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (b *EventBus) Fire(ctx EventContext) bool {
	b.mu.Lock()
	events := make([]*registeredEvent, len(b.registered[ctx.Type]))
	copy(events, b.registered[ctx.Type])
	b.mu.Unlock()

	for _, e := range events {
		if e.callback(ctx) {
			return true
		}
	}
	return false
}

// Post queues the event for the next ProcessEvents call.
func (b *EventBus) Post(ctx EventContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue.IsFull() {
		b.queue.Grow()
	}
	_ = b.queue.Enqueue(ctx)
}

// ProcessEvents drains the queue and fires every pending event in order.
func (b *EventBus) ProcessEvents() {
	for {
		b.mu.Lock()
		ctx, err := b.queue.Dequeue()
		b.mu.Unlock()
		if err != nil {
			return
		}
		b.Fire(ctx)
	}
}

func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[EventCode][]*registeredEvent)
	for !b.queue.IsEmpty() {
		_, _ = b.queue.Dequeue()
	}
}
