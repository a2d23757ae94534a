package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func (d *VulkanDevice) CreatePipelineLayout(setLayouts []metadata.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (metadata.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		layouts[i] = l.(vk.DescriptorSetLayout)
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}

	// Push constants
	if len(pushConstants) > 0 {
		// NOTE: 32 is the max number of ranges we can ever have, since only 128 bytes with 4-byte alignment are guaranteed.
		if len(pushConstants) > 32 {
			return nil, fmt.Errorf("cannot have more than 32 push constant ranges. Passed count: %d", len(pushConstants))
		}
		ranges := make([]vk.PushConstantRange, len(pushConstants))
		for i, r := range pushConstants {
			if r.Offset+r.Size > VULKAN_MAX_PUSH_CONSTANT_SIZE {
				return nil, fmt.Errorf("push constant range %d+%d exceeds %d bytes", r.Offset, r.Size, VULKAN_MAX_PUSH_CONSTANT_SIZE)
			}
			ranges[i] = vk.PushConstantRange{
				StageFlags: vk.ShaderStageFlags(r.Stages),
				Offset:     r.Offset,
				Size:       r.Size,
			}
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.LogicalDevice, &pipelineLayoutCreateInfo, d.context.Allocator, &layout); res != vk.Success {
		err := vkError("vkCreatePipelineLayout", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return layout, nil
}

/**
 * @brief Builds a graphics pipeline against a render pass compatible with the
 * targets of desc. Viewport and scissor are dynamic. Optional rasterizer
 * features the device did not enable fall back to their defaults.
 */
func (d *VulkanDevice) CreateGraphicsPipeline(desc *metadata.GraphicsPipelineDesc) (metadata.Pipeline, error) {
	key, err := pipelineKey(desc)
	if err != nil {
		return nil, err
	}
	renderpass, err := d.renderpasses.get(key.compatible())
	if err != nil {
		return nil, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		stages[i] = shaderStageCreateInfo(s)
	}

	// Vertex input
	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRate(b.Rate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport state, both are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	lineWidth := desc.LineWidth
	if lineWidth <= 0 || d.enabled.WideLines != vk.True {
		lineWidth = 1.0
	}
	polygonMode := vk.PolygonMode(desc.PolygonMode)
	if polygonMode != vk.PolygonModeFill && d.enabled.FillModeNonSolid != vk.True {
		core.LogWarn("pipeline %s: non solid fill is not supported, falling back to fill", desc.Label)
		polygonMode = vk.PolygonModeFill
	}
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygonMode,
		LineWidth:               lineWidth,
		CullMode:                vk.CullModeFlags(desc.CullMode),
		FrontFace:               vk.FrontFace(desc.FrontFace),
		DepthBiasEnable:         vk.False,
	}
	if desc.DepthBias != nil {
		rasterizerCreateInfo.DepthBiasEnable = vk.True
		rasterizerCreateInfo.DepthBiasConstantFactor = desc.DepthBias.ConstantFactor
		rasterizerCreateInfo.DepthBiasSlopeFactor = desc.DepthBias.SlopeFactor
		if d.enabled.DepthBiasClamp == vk.True {
			rasterizerCreateInfo.DepthBiasClamp = desc.DepthBias.Clamp
		}
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  samplesOf(desc.Samples),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(desc.DepthTest),
		DepthWriteEnable:      vkBool(desc.DepthWrite),
		DepthCompareOp:        vk.CompareOp(desc.DepthCompare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorTargets))
	for i, t := range desc.ColorTargets {
		mask := t.WriteMask
		if mask == 0 {
			mask = 0xF
		}
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vkBool(t.Blend.Enable),
			SrcColorBlendFactor: vk.BlendFactor(t.Blend.SrcColor),
			DstColorBlendFactor: vk.BlendFactor(t.Blend.DstColor),
			ColorBlendOp:        vk.BlendOp(t.Blend.ColorOp),
			SrcAlphaBlendFactor: vk.BlendFactor(t.Blend.SrcAlpha),
			DstAlphaBlendFactor: vk.BlendFactor(t.Blend.DstAlpha),
			AlphaBlendOp:        vk.BlendOp(t.Blend.AlphaOp),
			ColorWriteMask:      vk.ColorComponentFlags(mask),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              desc.Layout.(vk.PipelineLayout),
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.context.Allocator, pPipelines); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("pipeline %s: %w", desc.Label, vkError("vkCreateGraphicsPipelines", res))
		core.LogError("%s", err.Error())
		return nil, err
	}
	if pPipelines[0] == vk.NullPipeline {
		return nil, fmt.Errorf("pipeline %s: vulkan pipeline handle is nil", desc.Label)
	}

	core.LogDebug("Graphics pipeline %s created!", desc.Label)
	return pPipelines[0], nil
}

func (d *VulkanDevice) CreateComputePipeline(desc *metadata.ComputePipelineDesc) (metadata.Pipeline, error) {
	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: shaderStageCreateInfo(metadata.ShaderStageDesc{
			Stage:  metadata.ShaderStageCompute,
			Module: desc.Module,
			Entry:  desc.Entry,
		}),
		Layout:             desc.Layout.(vk.PipelineLayout),
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pPipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(d.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, d.context.Allocator, pPipelines); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("pipeline %s: %w", desc.Label, vkError("vkCreateComputePipelines", res))
		core.LogError("%s", err.Error())
		return nil, err
	}

	core.LogDebug("Compute pipeline %s created!", desc.Label)
	return pPipelines[0], nil
}
