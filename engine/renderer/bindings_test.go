package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

func TestMergeReflectionCombinesStages(t *testing.T) {
	vert := &spirv.Module{
		Stage: metadata.ShaderStageVertex,
		Bindings: []spirv.Binding{
			{Set: 0, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "camera"},
			{Set: 1, Binding: 2, Type: metadata.DescriptorTypeStorageBuffer, Count: 0, Name: "bones"},
		},
		PushConstants: &spirv.PushConstantBlock{Name: "Push", Size: 32},
	}
	frag := &spirv.Module{
		Stage: metadata.ShaderStageFragment,
		Bindings: []spirv.Binding{
			{Set: 1, Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Name: "albedo"},
			{Set: 0, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "camera"},
		},
		PushConstants: &spirv.PushConstantBlock{Name: "Push", Size: 32},
	}

	merged, err := MergeReflection([]*spirv.Module{vert, frag})
	require.NoError(t, err)
	require.Len(t, merged.Bindings, 3)
	assert.Equal(t, "camera", merged.Bindings[0].Name)
	assert.Equal(t, metadata.ShaderStageVertex|metadata.ShaderStageFragment, merged.Bindings[0].Stages)
	assert.Equal(t, "albedo", merged.Bindings[1].Name)
	assert.Equal(t, "bones", merged.Bindings[2].Name)

	require.Len(t, merged.PushConstants, 1)
	assert.Equal(t, metadata.ShaderStageVertex|metadata.ShaderStageFragment, merged.PushConstantStages())

	set := merged.Set(MaterialSet)
	require.Len(t, set, 2)
	layout := layoutBindings(set)
	assert.Equal(t, uint32(1), layout[1].Count, "runtime arrays take one descriptor")

	sizes := poolSizes(set, metadata.FramesInFlight)
	assert.Equal(t, []metadata.DescriptorPoolSize{
		{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 3},
		{Type: metadata.DescriptorTypeStorageBuffer, Count: 3},
	}, sizes)
}

func TestMergeReflectionTypeMismatch(t *testing.T) {
	a := &spirv.Module{Stage: metadata.ShaderStageVertex, Bindings: []spirv.Binding{
		{Set: 1, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
	}}
	b := &spirv.Module{Stage: metadata.ShaderStageFragment, Bindings: []spirv.Binding{
		{Set: 1, Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1},
	}}
	_, err := MergeReflection([]*spirv.Module{a, b})
	assert.ErrorIs(t, err, core.ErrInvalidShaderModule)
}

func TestMergeReflectionKeepsDistinctPushRanges(t *testing.T) {
	a := &spirv.Module{Stage: metadata.ShaderStageVertex, PushConstants: &spirv.PushConstantBlock{Size: 64}}
	b := &spirv.Module{Stage: metadata.ShaderStageFragment, PushConstants: &spirv.PushConstantBlock{Size: 16}}
	merged, err := MergeReflection([]*spirv.Module{a, b})
	require.NoError(t, err)
	assert.Len(t, merged.PushConstants, 2)
}
