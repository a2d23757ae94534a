package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

const maxFramebufferAttachments = 2*VULKAN_MAX_COLOR_ATTACHMENTS + 1

type framebufferKey struct {
	renderpass      vk.RenderPass
	attachments     [maxFramebufferAttachments]vk.ImageView
	attachmentCount int
	width, height   uint32
}

type VulkanFramebuffer struct {
	Handle          vk.Framebuffer
	AttachmentCount uint32
	Attachments     []vk.ImageView
	Renderpass      *VulkanRenderpass
}

func FramebufferCreate(device *VulkanDevice, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments:     append([]vk.ImageView(nil), attachments...),
		Renderpass:      renderpass,
		AttachmentCount: uint32(len(attachments)),
	}

	// Creation info
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: outFramebuffer.AttachmentCount,
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(device.LogicalDevice, &framebufferCreateInfo, device.context.Allocator, &pFramebuffer); res != vk.Success {
		err := vkError("vkCreateFramebuffer", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(device *VulkanDevice) {
	vk.DestroyFramebuffer(device.LogicalDevice, vfb.Handle, device.context.Allocator)
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.AttachmentCount = 0
	vfb.Renderpass = nil
}

/**
 * @brief Framebuffers keyed by pass and attachment views. An entry lives until
 * one of its views is destroyed, images evict themselves on Destroy.
 */
type framebufferCache struct {
	device       *VulkanDevice
	framebuffers map[framebufferKey]*VulkanFramebuffer
}

func newFramebufferCache(device *VulkanDevice) *framebufferCache {
	return &framebufferCache{device: device, framebuffers: make(map[framebufferKey]*VulkanFramebuffer)}
}

func (c *framebufferCache) get(renderpass *VulkanRenderpass, views []vk.ImageView, width, height uint32) (*VulkanFramebuffer, error) {
	key := framebufferKey{renderpass: renderpass.Handle, attachmentCount: len(views), width: width, height: height}
	copy(key.attachments[:], views)

	var out *VulkanFramebuffer
	err := c.device.locks.SafeCall(FramebufferManagement, func() error {
		if fb, ok := c.framebuffers[key]; ok {
			out = fb
			return nil
		}
		fb, err := FramebufferCreate(c.device, renderpass, width, height, views)
		if err != nil {
			return err
		}
		c.framebuffers[key] = fb
		out = fb
		return nil
	})
	return out, err
}

// evict destroys every framebuffer that references view. The caller guarantees
// no pending work uses them, the same guarantee it gives for the view itself.
func (c *framebufferCache) evict(view vk.ImageView) {
	_ = c.device.locks.SafeCall(FramebufferManagement, func() error {
		for key, fb := range c.framebuffers {
			for i := 0; i < key.attachmentCount; i++ {
				if key.attachments[i] == view {
					fb.Destroy(c.device)
					delete(c.framebuffers, key)
					break
				}
			}
		}
		return nil
	})
}

func (c *framebufferCache) destroy() {
	_ = c.device.locks.SafeCall(FramebufferManagement, func() error {
		for key, fb := range c.framebuffers {
			fb.Destroy(c.device)
			delete(c.framebuffers, key)
		}
		return nil
	})
}
