package spirv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder(metadata.ShaderStageFragment, "main")
	b.UniformBlock(0, 0, "CameraBlock", "camera", 4)
	b.UniformBlock(1, 0, "MaterialUBO", "", 2)
	b.CombinedImageSampler(1, 1, "albedo", 1)
	b.CombinedImageSampler(1, 2, "maps", 3)
	b.StorageBuffer(1, 3, "instances")
	b.PushConstantBlock("Push", 2)

	m, err := Reflect(b.Words())
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageFragment, m.Stage)
	assert.Equal(t, "main", m.EntryPoint)
	require.Len(t, m.Bindings, 5)

	assert.Equal(t, Binding{Set: 0, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "camera"}, m.Bindings[0])
	assert.Equal(t, Binding{Set: 1, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "MaterialUBO"}, m.Bindings[1])
	assert.Equal(t, Binding{Set: 1, Binding: 1, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Name: "albedo"}, m.Bindings[2])
	assert.Equal(t, Binding{Set: 1, Binding: 2, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 3, Name: "maps"}, m.Bindings[3])
	assert.Equal(t, Binding{Set: 1, Binding: 3, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Name: "instances"}, m.Bindings[4])

	require.NotNil(t, m.PushConstants)
	assert.Equal(t, "Push", m.PushConstants.Name)
	assert.Equal(t, uint32(32), m.PushConstants.Size)
}

func TestBuilderWordsIsRepeatable(t *testing.T) {
	b := NewBuilder(metadata.ShaderStageCompute, "main")
	b.StorageImage(0, 0, "target")
	first := b.Words()
	assert.Equal(t, first, b.Words())

	m, err := Reflect(first)
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageCompute, m.Stage)
	require.Len(t, m.Bindings, 1)
	assert.Equal(t, metadata.DescriptorTypeStorageImage, m.Bindings[0].Type)
}

func TestEmptyFragment(t *testing.T) {
	words := EmptyFragment()
	assert.Equal(t, metadata.SPIRVMagic, words[0])

	parsed, err := WordsFromBytes(NewBuilder(metadata.ShaderStageFragment, "main").Bytes())
	require.NoError(t, err)
	assert.Equal(t, words, parsed)

	m, err := Reflect(words)
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageFragment, m.Stage)
	assert.Empty(t, m.Bindings)
	assert.Nil(t, m.PushConstants)
}
