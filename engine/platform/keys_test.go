package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/lumen/engine/core"
)

func TestTranslateKey(t *testing.T) {
	cases := []struct {
		key  glfw.Key
		want core.KeyCode
	}{
		{glfw.KeyA, core.KEY_A},
		{glfw.KeyW, core.KEY_W},
		{glfw.KeyZ, core.KEY_Z},
		{glfw.Key0, core.KEY_0},
		{glfw.Key9, core.KEY_9},
		{glfw.KeyEscape, core.KEY_ESCAPE},
		{glfw.KeyF5, core.KEY_F5},
		{glfw.KeyLeftShift, core.KEY_LSHIFT},
	}
	for _, c := range cases {
		got, ok := translateKey(c.key)
		assert.True(t, ok, "key %d", c.key)
		assert.Equal(t, c.want, got, "key %d", c.key)
	}

	_, ok := translateKey(glfw.KeyKPEnter)
	assert.False(t, ok)
}

func TestTranslateButton(t *testing.T) {
	b, ok := translateButton(glfw.MouseButtonRight)
	assert.True(t, ok)
	assert.Equal(t, core.BUTTON_RIGHT, b)

	_, ok = translateButton(glfw.MouseButton4)
	assert.False(t, ok)
}

func TestClampCoord(t *testing.T) {
	assert.Equal(t, uint16(0), clampCoord(-12.5))
	assert.Equal(t, uint16(640), clampCoord(640.9))
	assert.Equal(t, uint16(65535), clampCoord(1e9))
}
