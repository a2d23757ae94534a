package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief The most colour attachments a pass may write. */
const VULKAN_MAX_COLOR_ATTACHMENTS = 4

type attachmentKey struct {
	format  vk.Format
	samples vk.SampleCountFlagBits
	load    vk.AttachmentLoadOp
}

/**
 * @brief Identifies a render pass. Every attachment starts and ends in its
 * attachment layout, so the formats, sample counts and load operations are all
 * that tell two passes apart. Pipelines are built against the DontCare variant,
 * which is compatible with every load operation.
 */
type renderpassKey struct {
	colors     [VULKAN_MAX_COLOR_ATTACHMENTS]attachmentKey
	colorCount int
	resolve    bool
	depth      attachmentKey
	hasDepth   bool
}

func samplesOf(s metadata.SampleCount) vk.SampleCountFlagBits {
	if s == 0 {
		return vk.SampleCount1Bit
	}
	return vk.SampleCountFlagBits(s)
}

func passKey(desc *metadata.PassDesc) (renderpassKey, error) {
	key := renderpassKey{}
	if len(desc.Color) > VULKAN_MAX_COLOR_ATTACHMENTS {
		return key, fmt.Errorf("pass %s has %d colour attachments, at most %d are supported", desc.Label, len(desc.Color), VULKAN_MAX_COLOR_ATTACHMENTS)
	}
	key.colorCount = len(desc.Color)
	for i, c := range desc.Color {
		key.colors[i] = attachmentKey{vk.Format(c.Format), samplesOf(c.Samples), vk.AttachmentLoadOp(c.Load)}
		if c.Resolve != nil {
			key.resolve = true
		}
	}
	if key.resolve {
		for _, c := range desc.Color {
			if c.Resolve == nil {
				return key, fmt.Errorf("pass %s resolves only some of its colour attachments", desc.Label)
			}
		}
	}
	if desc.Depth != nil {
		key.hasDepth = true
		key.depth = attachmentKey{vk.Format(desc.Depth.Format), samplesOf(desc.Depth.Samples), vk.AttachmentLoadOp(desc.Depth.Load)}
	}
	return key, nil
}

func pipelineKey(desc *metadata.GraphicsPipelineDesc) (renderpassKey, error) {
	key := renderpassKey{resolve: desc.Resolve}
	if len(desc.ColorTargets) > VULKAN_MAX_COLOR_ATTACHMENTS {
		return key, fmt.Errorf("pipeline %s has %d colour targets, at most %d are supported", desc.Label, len(desc.ColorTargets), VULKAN_MAX_COLOR_ATTACHMENTS)
	}
	key.colorCount = len(desc.ColorTargets)
	for i, c := range desc.ColorTargets {
		key.colors[i] = attachmentKey{vk.Format(c.Format), samplesOf(desc.Samples), vk.AttachmentLoadOpDontCare}
	}
	if desc.DepthFormat != metadata.FormatUndefined {
		key.hasDepth = true
		key.depth = attachmentKey{vk.Format(desc.DepthFormat), samplesOf(desc.Samples), vk.AttachmentLoadOpDontCare}
	}
	return key, nil
}

// compatible returns the key with every load operation replaced by DontCare.
func (k renderpassKey) compatible() renderpassKey {
	for i := 0; i < k.colorCount; i++ {
		k.colors[i].load = vk.AttachmentLoadOpDontCare
	}
	if k.hasDepth {
		k.depth.load = vk.AttachmentLoadOpDontCare
	}
	return k
}

// attachmentCount is the number of framebuffer attachments: colours, then resolves, then depth.
func (k renderpassKey) attachmentCount() int {
	n := k.colorCount
	if k.resolve {
		n += k.colorCount
	}
	if k.hasDepth {
		n++
	}
	return n
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	key    renderpassKey
}

func RenderpassCreate(device *VulkanDevice, key renderpassKey) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{key: key}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, key.attachmentCount())
	colorReferences := make([]vk.AttachmentReference, key.colorCount)
	for i := 0; i < key.colorCount; i++ {
		c := key.colors[i]
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         c.format,
			Samples:        c.samples,
			LoadOp:         c.load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorReferences[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(key.colorCount),
		PColorAttachments:    colorReferences,
	}

	// Attachments used for multisampling colour attachments
	if key.resolve {
		resolveReferences := make([]vk.AttachmentReference, key.colorCount)
		for i := 0; i < key.colorCount; i++ {
			attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
				Format:         key.colors[i].format,
				Samples:        vk.SampleCount1Bit,
				LoadOp:         vk.AttachmentLoadOpDontCare,
				StoreOp:        vk.AttachmentStoreOpStore,
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
			})
			resolveReferences[i] = vk.AttachmentReference{
				Attachment: uint32(key.colorCount + i),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}
		}
		subpass.PResolveAttachments = resolveReferences
	}

	// Depth attachment, if there is one
	if key.hasDepth {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         key.depth.format,
			Samples:        key.depth.samples,
			LoadOp:         key.depth.load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Layouts never change inside the pass, the command list records the barriers around it.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageLateFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	// Render pass create.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(device.LogicalDevice, &renderpassCreateInfo, device.context.Allocator, &pRenderPass); res != vk.Success {
		err := vkError("vkCreateRenderPass", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	outRenderpass.Handle = pRenderPass
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) Destroy(device *VulkanDevice) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(device.LogicalDevice, vr.Handle, device.context.Allocator)
		vr.Handle = nil
	}
}

// renderpassCache creates each render pass once and keeps it until the device goes away.
type renderpassCache struct {
	device *VulkanDevice
	passes map[renderpassKey]*VulkanRenderpass
}

func newRenderpassCache(device *VulkanDevice) *renderpassCache {
	return &renderpassCache{device: device, passes: make(map[renderpassKey]*VulkanRenderpass)}
}

func (c *renderpassCache) get(key renderpassKey) (*VulkanRenderpass, error) {
	var out *VulkanRenderpass
	err := c.device.locks.SafeCall(RenderpassManagement, func() error {
		if rp, ok := c.passes[key]; ok {
			out = rp
			return nil
		}
		rp, err := RenderpassCreate(c.device, key)
		if err != nil {
			return err
		}
		c.passes[key] = rp
		out = rp
		return nil
	})
	return out, err
}

func (c *renderpassCache) destroy() {
	_ = c.device.locks.SafeCall(RenderpassManagement, func() error {
		for key, rp := range c.passes {
			rp.Destroy(c.device)
			delete(c.passes, key)
		}
		return nil
	})
}
