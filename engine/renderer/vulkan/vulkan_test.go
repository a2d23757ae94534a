package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func geometryPass(load metadata.LoadOp) *metadata.PassDesc {
	return &metadata.PassDesc{
		Label: "geometry",
		Color: []metadata.ColorAttachment{
			{Format: metadata.FormatR16G16B16A16Sfloat, Samples: metadata.SampleCount4, Load: load, Resolve: "resolve"},
		},
		Depth:  &metadata.DepthAttachment{Format: metadata.FormatD32Sfloat, Samples: metadata.SampleCount4, Load: load, ClearDepth: 0},
		Width:  640,
		Height: 480,
	}
}

func TestPassKeyMatchesPipelineKey(t *testing.T) {
	pipeline := &metadata.GraphicsPipelineDesc{
		Label:        "geometry",
		ColorTargets: []metadata.ColorTargetDesc{{Format: metadata.FormatR16G16B16A16Sfloat}},
		DepthFormat:  metadata.FormatD32Sfloat,
		Samples:      metadata.SampleCount4,
		Resolve:      true,
	}
	pk, err := pipelineKey(pipeline)
	require.NoError(t, err)

	for _, load := range []metadata.LoadOp{metadata.LoadOpClear, metadata.LoadOpLoad, metadata.LoadOpDontCare} {
		key, err := passKey(geometryPass(load))
		require.NoError(t, err)
		assert.Equal(t, pk, key.compatible(), "load op %d", load)
	}

	clear, _ := passKey(geometryPass(metadata.LoadOpClear))
	load, _ := passKey(geometryPass(metadata.LoadOpLoad))
	assert.NotEqual(t, clear, load)
}

func TestPassKeyAttachmentCount(t *testing.T) {
	key, err := passKey(geometryPass(metadata.LoadOpClear))
	require.NoError(t, err)
	// Colour, resolve and depth.
	assert.Equal(t, 3, key.attachmentCount())

	shadow := &metadata.PassDesc{
		Label: "shadow",
		Depth: &metadata.DepthAttachment{Format: metadata.FormatD32Sfloat, Load: metadata.LoadOpClear},
	}
	key, err = passKey(shadow)
	require.NoError(t, err)
	assert.Equal(t, 1, key.attachmentCount())
	assert.Equal(t, vk.SampleCount1Bit, key.depth.samples)
}

func TestPassKeyRejectsPartialResolve(t *testing.T) {
	desc := &metadata.PassDesc{
		Label: "partial",
		Color: []metadata.ColorAttachment{
			{Format: metadata.FormatR8G8B8A8Unorm, Samples: metadata.SampleCount4, Resolve: "resolve"},
			{Format: metadata.FormatR8G8B8A8Unorm, Samples: metadata.SampleCount4},
		},
	}
	_, err := passKey(desc)
	assert.Error(t, err)

	desc.Color = make([]metadata.ColorAttachment, VULKAN_MAX_COLOR_ATTACHMENTS+1)
	_, err = passKey(desc)
	assert.Error(t, err)
}

func TestVkErrorWrapsCoreErrors(t *testing.T) {
	assert.NoError(t, vkError("vkQueueSubmit", vk.Success))
	assert.True(t, errors.Is(vkError("vkQueueSubmit", vk.ErrorDeviceLost), core.ErrDeviceLost))
	assert.True(t, errors.Is(vkError("vkAcquireNextImageKHR", vk.ErrorOutOfDate), core.ErrSwapchainOutOfDate))

	err := vkError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_ERROR_OUT_OF_DEVICE_MEMORY")
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345)))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, "\x00", VulkanSafeString(""))

	in := []string{"a", "b"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, []string{"a", "b"}, in)

	name := make([]byte, 16)
	copy(name, "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte("abc")))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(10), clampU32(5, 10, 20))
	assert.Equal(t, uint32(20), clampU32(50, 10, 20))
	assert.Equal(t, uint32(15), clampU32(15, 10, 20))
}
