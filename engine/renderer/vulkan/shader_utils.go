package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const spirvMagic uint32 = 0x07230203

// CreateShaderModule wraps SPIR-V words in a shader module.
func (d *VulkanDevice) CreateShaderModule(code []uint32) (metadata.ShaderModule, error) {
	if len(code) < 5 || code[0] != spirvMagic {
		return nil, fmt.Errorf("shader module: %w", core.ErrInvalidSPIRV)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// Size in bytes.
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.LogicalDevice, &createInfo, d.context.Allocator, &module); res != vk.Success {
		err := vkError("vkCreateShaderModule", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return module, nil
}

func shaderStageCreateInfo(stage metadata.ShaderStageDesc) vk.PipelineShaderStageCreateInfo {
	entry := stage.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(stage.Stage),
		Module: stage.Module.(vk.ShaderModule),
		PName:  VulkanSafeString(entry),
	}
}
