package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

// VulkanContext holds the instance level objects shared by the device and the
// swapchain. Allocator stays nil, the driver allocates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	// Only created with validation enabled.
	debugMessenger vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain
}

// destroyInstance releases the surface, the debug callback and the instance.
// The device and the swapchain must be gone already.
func (c *VulkanContext) destroyInstance() {
	if c.Instance == nil {
		return
	}
	if c.Surface != vk.NullSurface {
		core.LogDebug("destroying the window surface")
		vk.DestroySurface(c.Instance, c.Surface, c.Allocator)
		c.Surface = vk.NullSurface
	}
	if c.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(c.Instance, c.debugMessenger, c.Allocator)
		c.debugMessenger = vk.NullDebugReportCallback
	}
	core.LogDebug("destroying the vulkan instance")
	vk.DestroyInstance(c.Instance, c.Allocator)
	c.Instance = nil
}
