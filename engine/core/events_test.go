package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type listener struct{ name string }

func TestEventBusFireStopsWhenHandled(t *testing.T) {
	bus := NewEventBus(4)
	a, b := &listener{"a"}, &listener{"b"}
	var calls []string

	assert.True(t, bus.Register(EventCodeResized, a, func(ctx EventContext) bool {
		calls = append(calls, "a")
		return true
	}))
	assert.True(t, bus.Register(EventCodeResized, b, func(ctx EventContext) bool {
		calls = append(calls, "b")
		return false
	}))
	assert.False(t, bus.Register(EventCodeResized, a, func(EventContext) bool { return false }), "duplicate listener")

	assert.True(t, bus.Fire(EventContext{Type: EventCodeResized, Data: &ResizeEvent{Width: 10, Height: 20}}))
	assert.Equal(t, []string{"a"}, calls)

	assert.True(t, bus.Unregister(EventCodeResized, a))
	assert.False(t, bus.Unregister(EventCodeResized, a))
	assert.False(t, bus.Fire(EventContext{Type: EventCodeResized}))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestEventBusPostFromGoroutines(t *testing.T) {
	bus := NewEventBus(2)
	count := 0
	bus.Register(EventCodeAssetChanged, nil, func(ctx EventContext) bool {
		count++
		return false
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Post(EventContext{Type: EventCodeAssetChanged, Data: &AssetEvent{Path: "x.yaml"}})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, count, "posted events wait for ProcessEvents")

	bus.ProcessEvents()
	assert.Equal(t, 16, count)
}

func TestInputFiresOnChangeOnly(t *testing.T) {
	bus := NewEventBus(1)
	in := NewInput(bus)
	pressed := 0
	bus.Register(EventCodeKeyPressed, nil, func(ctx EventContext) bool {
		pressed++
		assert.Equal(t, KEY_W, ctx.Data.(*KeyEvent).KeyCode)
		return false
	})

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.WasKeyDown(KEY_W))

	in.Update()
	assert.True(t, in.WasKeyDown(KEY_W))
}
