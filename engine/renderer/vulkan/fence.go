package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanFence struct {
	device     *VulkanDevice
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(device *VulkanDevice, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		device: device,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(device.LogicalDevice, &fenceCreateInfo, device.context.Allocator, &pFence); res != vk.Success {
		err := vkError("vkCreateFence", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.device.LogicalDevice, vf.Handle, vf.device.context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

func (vf *VulkanFence) Wait(timeout time.Duration) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(vf.device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("fence wait timed out after %s", timeout)
	default:
		return vkError("vkWaitForFences", result)
	}
}

func (vf *VulkanFence) Reset() error {
	// Always reset: a fence handed to a submission is unsignaled again only
	// once the device says so, which IsSignaled cannot know.
	if res := vk.ResetFences(vf.device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		err := vkError("vkResetFences", res)
		core.LogError("%s", err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

func (d *VulkanDevice) CreateFence(signaled bool) (metadata.Fence, error) {
	return NewFence(d, signaled)
}

func (d *VulkanDevice) WaitFence(fence metadata.Fence, timeout time.Duration) error {
	return fence.(*VulkanFence).Wait(timeout)
}

func (d *VulkanDevice) ResetFence(fence metadata.Fence) error {
	return fence.(*VulkanFence).Reset()
}

func (d *VulkanDevice) CreateSemaphore() (metadata.Semaphore, error) {
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(d.LogicalDevice, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, d.context.Allocator, &semaphore); res != vk.Success {
		return nil, vkError("vkCreateSemaphore", res)
	}
	return semaphore, nil
}
