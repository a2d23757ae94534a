package vulkan

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

/**
 * @brief The window swapchain. It implements metadata.Presenter by blitting the
 * finished image into the acquired swapchain image on the graphics queue and
 * presenting it. Nothing renders into the swapchain images directly, so they
 * need no views.
 */
type VulkanSwapchain struct {
	context *VulkanContext
	vsync   bool

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Extent      vk.Extent2D

	// Indexed by frame.
	imageAvailable []vk.Semaphore
	inFlight       []*VulkanFence
	commands       []*VulkanCommandBuffer
	// Indexed by swapchain image.
	renderComplete []vk.Semaphore

	currentFrame  uint32
	width, height uint32
	recreate      bool
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32, vsync bool) (*VulkanSwapchain, error) {
	vs := &VulkanSwapchain{context: context, vsync: vsync, width: width, height: height}
	device := context.Device
	for i := 0; i < metadata.FramesInFlight; i++ {
		semaphore, err := device.CreateSemaphore()
		if err != nil {
			vs.SwapchainDestroy()
			return nil, err
		}
		vs.imageAvailable = append(vs.imageAvailable, semaphore.(vk.Semaphore))
		fence, err := NewFence(device, true)
		if err != nil {
			vs.SwapchainDestroy()
			return nil, err
		}
		vs.inFlight = append(vs.inFlight, fence)
		cmd, err := device.AllocateCommandList(metadata.QueueGraphics)
		if err != nil {
			vs.SwapchainDestroy()
			return nil, err
		}
		vs.commands = append(vs.commands, cmd.(*VulkanCommandBuffer))
	}
	if err := vs.createSwapchain(width, height); err != nil {
		vs.SwapchainDestroy()
		return nil, err
	}
	return vs, nil
}

// SwapchainRecreate drains the device and builds a swapchain of the new size over the old one.
func (vs *VulkanSwapchain) SwapchainRecreate(width uint32, height uint32) error {
	if err := vs.context.Device.WaitIdle(); err != nil {
		return err
	}
	return vs.createSwapchain(width, height)
}

func (vs *VulkanSwapchain) SwapchainDestroy() {
	device := vs.context.Device
	_ = device.WaitIdle()
	for _, cmd := range vs.commands {
		cmd.Free()
	}
	vs.commands = nil
	for _, fence := range vs.inFlight {
		fence.Destroy()
	}
	vs.inFlight = nil
	for _, s := range vs.imageAvailable {
		device.Destroy(s)
	}
	vs.imageAvailable = nil
	vs.destroyImageSemaphores()
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) destroyImageSemaphores() {
	for _, s := range vs.renderComplete {
		vs.context.Device.Destroy(s)
	}
	vs.renderComplete = nil
}

// Resize defers the recreation to the next Present.
func (vs *VulkanSwapchain) Resize(width, height uint32) error {
	vs.width, vs.height = width, height
	vs.recreate = true
	return nil
}

func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(imageAvailableSemaphore vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, uint64(VULKAN_ACQUIRE_TIMEOUT.Nanoseconds()), imageAvailableSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, nil
	case vk.Suboptimal:
		// The image is still usable, recreate after presenting it.
		vs.recreate = true
		return imageIndex, nil
	default:
		return 0, vkError("vkAcquireNextImageKHR", result)
	}
}

/**
 * @brief Copies image to the next swapchain image and queues it for display.
 * A stale swapchain is recreated and the frame is dropped without error.
 */
func (vs *VulkanSwapchain) Present(image metadata.DeviceImage, width, height uint32) error {
	if vs.width == 0 || vs.height == 0 {
		// Minimized.
		return nil
	}
	if vs.recreate || vs.Handle == vk.NullSwapchain {
		if err := vs.SwapchainRecreate(vs.width, vs.height); err != nil {
			return err
		}
	}
	source, ok := image.(*VulkanImage)
	if !ok {
		return fmt.Errorf("cannot present foreign image %T", image)
	}

	frame := vs.currentFrame
	if err := vs.inFlight[frame].Wait(VULKAN_UPLOAD_TIMEOUT); err != nil {
		return err
	}
	imageIndex, err := vs.SwapchainAcquireNextImageIndex(vs.imageAvailable[frame])
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		vs.recreate = true
		return nil
	} else if err != nil {
		return err
	}
	if err := vs.inFlight[frame].Reset(); err != nil {
		return err
	}

	cmd := vs.commands[frame]
	if err := cmd.Begin(); err != nil {
		return err
	}
	vs.recordBlit(cmd.Handle, source, width, height, vs.Images[imageIndex])
	if err := cmd.End(); err != nil {
		return err
	}

	device := vs.context.Device
	if err := device.Submit(metadata.QueueGraphics, metadata.SubmitInfo{
		Commands: []metadata.CommandList{cmd},
		Wait:     []metadata.SemaphoreWait{{Semaphore: vs.imageAvailable[frame], Stage: metadata.PipelineStageTransfer}},
		Signal:   []metadata.Semaphore{vs.renderComplete[imageIndex]},
		Fence:    vs.inFlight[frame],
	}); err != nil {
		return err
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.renderComplete[imageIndex]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var result vk.Result
	_ = device.locks.SafeQueueCall(uint32(device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})

	// Increment (and loop) the index.
	vs.currentFrame = (vs.currentFrame + 1) % uint32(len(vs.inFlight))

	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Swapchain is out of date, suboptimal or a framebuffer resize has occurred. Trigger swapchain recreation.
		vs.recreate = true
		return nil
	default:
		return vkError("vkQueuePresentKHR", result)
	}
}

func (vs *VulkanSwapchain) recordBlit(cmd vk.CommandBuffer, source *VulkanImage, width, height uint32, target vk.Image) {
	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	recordImageBarrier(cmd, source.image, color,
		vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal,
		vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit, vk.PipelineStageTransferBit,
		vk.AccessShaderReadBit, vk.AccessTransferReadBit)
	recordImageBarrier(cmd, target, color,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		vk.PipelineStageTransferBit, vk.PipelineStageTransferBit,
		0, vk.AccessTransferWriteBit)

	layers := vk.ImageSubresourceLayers{
		AspectMask:     color,
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	blit := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(width), Y: int32(height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(vs.Extent.Width), Y: int32(vs.Extent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cmd, source.image, vk.ImageLayoutTransferSrcOptimal, target, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)

	recordImageBarrier(cmd, source.image, color,
		vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit,
		vk.AccessTransferReadBit, vk.AccessShaderReadBit)
	recordImageBarrier(cmd, target, color,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc,
		vk.PipelineStageTransferBit, vk.PipelineStageBottomOfPipeBit,
		vk.AccessTransferWriteBit, 0)
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (vs *VulkanSwapchain) choosePresentMode(support *VulkanSwapchainSupportInfo) vk.PresentMode {
	if vs.vsync {
		return vk.PresentModeFifo
	}
	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
		if mode == vk.PresentModeImmediate {
			presentMode = mode
		}
	}
	return presentMode
}

func (vs *VulkanSwapchain) createSwapchain(width, height uint32) error {
	context := vs.context
	device := context.Device
	support := &device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, support); err != nil {
		return err
	}
	if support.FormatCount == 0 {
		return fmt.Errorf("surface reports no formats")
	}
	caps := support.Capabilities
	if vk.ImageUsageFlagBits(caps.SupportedUsageFlags)&vk.ImageUsageTransferDstBit == 0 {
		return fmt.Errorf("surface images cannot be transfer targets")
	}

	// Choose a swap surface format.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}

	// Swapchain extent
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vs.choosePresentMode(support),
		Clipped:          vk.True,
		OldSwapchain:     vs.Handle,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		err := vkError("vkCreateSwapchainKHR", res)
		core.LogError("%s", err.Error())
		return err
	}
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device.LogicalDevice, vs.Handle, context.Allocator)
	}
	vs.Handle = swapchainHandle
	vs.Extent = extent

	// Images
	vs.ImageCount = 0
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &vs.ImageCount, nil); res != vk.Success {
		return vkError("vkGetSwapchainImagesKHR", res)
	}
	vs.Images = make([]vk.Image, vs.ImageCount)
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &vs.ImageCount, vs.Images); res != vk.Success {
		return vkError("vkGetSwapchainImagesKHR", res)
	}

	vs.destroyImageSemaphores()
	for i := uint32(0); i < vs.ImageCount; i++ {
		semaphore, err := device.CreateSemaphore()
		if err != nil {
			return err
		}
		vs.renderComplete = append(vs.renderComplete, semaphore.(vk.Semaphore))
	}

	vs.recreate = false
	core.LogInfo("Swapchain created successfully (%dx%d, %d images).", extent.Width, extent.Height, vs.ImageCount)
	return nil
}
