package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func (d *VulkanDevice) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.LogicalDevice, &createInfo, d.context.Allocator, &layout); res != vk.Success {
		err := vkError("vkCreateDescriptorSetLayout", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return layout, nil
}

func (d *VulkanDevice) CreateDescriptorPool(maxSets uint32, sizes []metadata.DescriptorPoolSize) (metadata.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for _, s := range sizes {
		if s.Count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	if len(poolSizes) == 0 {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: VULKAN_DUMMY_POOL_SIZE,
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.LogicalDevice, &createInfo, d.context.Allocator, &pool); res != vk.Success {
		err := vkError("vkCreateDescriptorPool", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return pool, nil
}

func (d *VulkanDevice) AllocateDescriptorSets(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, count uint32) ([]metadata.DescriptorSet, error) {
	if count == 0 {
		return nil, nil
	}
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout.(vk.DescriptorSetLayout)
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.(vk.DescriptorPool),
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, count)
	if res := vk.AllocateDescriptorSets(d.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		return nil, fmt.Errorf("allocating %d descriptor sets: %w", count, vkError("vkAllocateDescriptorSets", res))
	}
	out := make([]metadata.DescriptorSet, count)
	for i, s := range sets {
		out[i] = s
	}
	return out, nil
}

// UpdateDescriptorSets writes every update in one call. Writes with neither info set are skipped.
func (d *VulkanDevice) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(vk.DescriptorSet),
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch {
		case w.Buffer != nil:
			rng := vk.DeviceSize(w.Buffer.Range)
			if w.Buffer.Range == 0 {
				rng = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Buffer.(vk.Buffer),
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  rng,
			}}
		case w.Image != nil:
			info := vk.DescriptorImageInfo{
				ImageView:   w.Image.View.(vk.ImageView),
				ImageLayout: vk.ImageLayout(w.Image.Layout),
			}
			if w.Image.Sampler != nil {
				info.Sampler = w.Image.Sampler.(vk.Sampler)
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		default:
			core.LogWarn("descriptor write to binding %d carries no resource", w.Binding)
			continue
		}
		descriptorWrites = append(descriptorWrites, write)
	}
	if len(descriptorWrites) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
}
