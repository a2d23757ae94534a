package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// VulkanImage is a device local 2D image with a single view over all of it.
type VulkanImage struct {
	device  *VulkanDevice
	label   string
	image   vk.Image
	Memory  vk.DeviceMemory
	view    vk.ImageView
	Width   uint32
	Height  uint32
	Format  metadata.Format
	Samples metadata.SampleCount
	aspect  vk.ImageAspectFlags
}

func ImageCreate(device *VulkanDevice, desc metadata.ImageDesc) (*VulkanImage, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("image %s: extent %dx%d is empty", desc.Label, desc.Width, desc.Height)
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	img := &VulkanImage{
		device:  device,
		label:   desc.Label,
		Width:   desc.Width,
		Height:  desc.Height,
		Format:  desc.Format,
		Samples: desc.Samples,
		aspect:  vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}
	if img.Samples == 0 {
		img.Samples = metadata.SampleCount1
	}
	if desc.Format.IsDepth() {
		img.aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	families := device.sharedFamilies()
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mips,
		ArrayLayers:   1,
		Samples:       vk.SampleCountFlagBits(img.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if len(families) > 1 {
		imageCreateInfo.SharingMode = vk.SharingModeConcurrent
		imageCreateInfo.QueueFamilyIndexCount = uint32(len(families))
		imageCreateInfo.PQueueFamilyIndices = families
	}

	if res := vk.CreateImage(device.LogicalDevice, &imageCreateInfo, device.context.Allocator, &img.image); res != vk.Success {
		err := vkError("vkCreateImage", res)
		core.LogError("image %s: %s", desc.Label, err)
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device.LogicalDevice, img.image, &reqs)
	memory, err := device.allocate(reqs, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("image %s: %w", desc.Label, err)
	}
	img.Memory = memory
	if res := vk.BindImageMemory(device.LogicalDevice, img.image, img.Memory, 0); res != vk.Success {
		img.Destroy()
		return nil, vkError("vkBindImageMemory", res)
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     img.aspect,
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	if res := vk.CreateImageView(device.LogicalDevice, &viewCreateInfo, device.context.Allocator, &img.view); res != vk.Success {
		img.Destroy()
		return nil, vkError("vkCreateImageView", res)
	}
	return img, nil
}

func (img *VulkanImage) Handle() metadata.Image { return img.image }

func (img *VulkanImage) View() metadata.ImageView { return img.view }

/**
 * @brief Copies tightly packed pixels into the image through a staging buffer.
 * The previous contents are discarded and the image ends in shader read layout.
 * Blocks until the copy completed.
 */
func (img *VulkanImage) Upload(pixels []byte) error {
	if img.Format.IsDepth() || img.Samples != metadata.SampleCount1 {
		return fmt.Errorf("image %s: only single sample colour images can be uploaded", img.label)
	}
	expected := uint64(img.Width) * uint64(img.Height) * uint64(img.Format.BytesPerPixel())
	if uint64(len(pixels)) != expected {
		return fmt.Errorf("image %s: got %d bytes of pixels, want %d: %w", img.label, len(pixels), expected, core.ErrBufferTooSmall)
	}

	staging, err := newBuffer(img.device, img.label+"_staging", expected, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	if err := staging.Write(0, pixels); err != nil {
		return err
	}

	return img.device.singleUse(func(cmd vk.CommandBuffer) {
		recordImageBarrier(cmd, img.image, img.aspect,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit,
			0, vk.AccessTransferWriteBit)

		region := vk.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     img.aspect,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
		}
		vk.CmdCopyBufferToImage(cmd, staging.buffer, img.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

		recordImageBarrier(cmd, img.image, img.aspect,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit,
			vk.AccessTransferWriteBit, vk.AccessShaderReadBit)
	})
}

func (img *VulkanImage) Destroy() {
	dev, alloc := img.device.LogicalDevice, img.device.context.Allocator
	if img.view != vk.NullImageView {
		img.device.framebuffers.evict(img.view)
		vk.DestroyImageView(dev, img.view, alloc)
		img.view = vk.NullImageView
	}
	if img.image != vk.NullImage {
		vk.DestroyImage(dev, img.image, alloc)
		img.image = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, img.Memory, alloc)
		img.Memory = vk.NullDeviceMemory
	}
}

func (d *VulkanDevice) CreateImage(desc metadata.ImageDesc) (metadata.DeviceImage, error) {
	img, err := ImageCreate(d, desc)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *VulkanDevice) CreateSampler(desc metadata.SamplerDesc) (metadata.Sampler, error) {
	filter := vk.FilterNearest
	mipmap := vk.SamplerMipmapModeNearest
	if desc.Linear {
		filter = vk.FilterLinear
		mipmap = vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressModeRepeat
	if desc.Clamp {
		address = vk.SamplerAddressModeClampToEdge
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmap,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		MaxLod:                  vk.LodClampNone,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
	}
	if d.enabled.SamplerAnisotropy == vk.True && desc.Linear {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = d.Properties.Limits.MaxSamplerAnisotropy
		if samplerInfo.MaxAnisotropy > 16 {
			samplerInfo.MaxAnisotropy = 16
		}
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.LogicalDevice, &samplerInfo, d.context.Allocator, &sampler); res != vk.Success {
		err := vkError("vkCreateSampler", res)
		core.LogError("sampler %s: %s", desc.Label, err)
		return nil, err
	}
	return sampler, nil
}
