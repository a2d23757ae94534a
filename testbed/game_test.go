package testbed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

func TestGridLines(t *testing.T) {
	lines := gridLines(4, 2)
	// -4, -2, 0, 2 and 4, one line along each axis.
	assert.Len(t, lines, 10)

	var axes int
	for _, l := range lines {
		assert.Zero(t, l.start.Y)
		assert.InDelta(t, 8, l.start.Distance(l.end), 1e-5)
		if l.colour != math.NewVec4(0.35, 0.35, 0.35, 1) {
			axes++
		}
	}
	assert.Equal(t, 2, axes)
}

func TestSandboxKeys(t *testing.T) {
	s := NewSandbox(1, 4)
	assert.True(t, s.showGrid)

	key := func(k core.KeyCode) bool {
		return s.OnEvent(core.EventContext{Type: core.EventCodeKeyPressed, Data: &core.KeyEvent{KeyCode: k}})
	}
	assert.True(t, key(core.KEY_L))
	assert.False(t, s.showGrid)
	assert.True(t, key(core.KEY_F1))
	assert.True(t, s.dumpStats)
	assert.False(t, key(core.KEY_W), "movement keys are polled, not consumed")
	assert.False(t, s.OnEvent(core.EventContext{Type: core.EventCodeMaterialReloaded, Data: "bricks"}))
}
