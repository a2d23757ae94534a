package spirv

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type assembler struct {
	words []uint32
}

func newAssembler() *assembler {
	return &assembler{words: []uint32{metadata.SPIRVMagic, 0x00010000, 0, 100, 0}}
}

func (a *assembler) op(code uint32, args ...uint32) *assembler {
	a.words = append(a.words, uint32(len(args)+1)<<16|code)
	a.words = append(a.words, args...)
	return a
}

func (a *assembler) name(id uint32, s string) *assembler {
	return a.op(opName, append([]uint32{id}, str(s)...)...)
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

// fragmentModule declares a camera block with an instance name, an anonymous
// material block, an array of four combined samplers, a storage buffer and a
// push constant block holding a mat4 and a vec4.
func fragmentModule() *assembler {
	a := newAssembler()
	a.op(opEntryPoint, append([]uint32{execFragment, 1}, str("main")...)...)
	a.name(10, "CameraBlock").name(11, "camera")
	a.name(20, "MaterialUBO")
	a.name(31, "textures")
	a.name(51, "particles")
	a.name(40, "Push")

	a.op(opDecorate, 10, decorationBlock)
	a.op(opDecorate, 11, decorationDescriptorSet, 0).op(opDecorate, 11, decorationBinding, 0)
	a.op(opDecorate, 20, decorationBlock)
	a.op(opDecorate, 21, decorationDescriptorSet, 1).op(opDecorate, 21, decorationBinding, 0)
	a.op(opDecorate, 31, decorationDescriptorSet, 1).op(opDecorate, 31, decorationBinding, 1)
	a.op(opDecorate, 51, decorationDescriptorSet, 1).op(opDecorate, 51, decorationBinding, 2)
	a.op(opMemberDecorate, 20, 0, decorationOffset, 0).op(opMemberDecorate, 20, 1, decorationOffset, 16)
	a.op(opMemberDecorate, 40, 0, decorationOffset, 0).op(opMemberDecorate, 40, 0, decorationMatrixStride, 16)
	a.op(opMemberDecorate, 40, 1, decorationOffset, 64)

	a.op(opTypeFloat, 2, 32)
	a.op(opTypeVector, 3, 2, 4)
	a.op(opTypeMatrix, 4, 3, 4)

	a.op(opTypeStruct, 10, 4)
	a.op(opTypePointer, 12, storageUniform, 10)
	a.op(opVariable, 12, 11, storageUniform)

	a.op(opTypeStruct, 20, 3, 3)
	a.op(opTypePointer, 22, storageUniform, 20)
	a.op(opVariable, 22, 21, storageUniform)

	a.op(opTypeImage, 30, 2, 1, 0, 0, 0, 1, 0)
	a.op(opTypeSampledImage, 32, 30)
	a.op(opTypeInt, 33, 32, 0)
	a.op(opConstant, 33, 34, 4)
	a.op(opTypeArray, 35, 32, 34)
	a.op(opTypePointer, 36, storageUniformConstant, 35)
	a.op(opVariable, 36, 31, storageUniformConstant)

	a.op(opTypeStruct, 50, 3)
	a.op(opTypePointer, 52, storageStorageBuffer, 50)
	a.op(opVariable, 52, 51, storageStorageBuffer)

	a.op(opTypeStruct, 40, 4, 3)
	a.op(opTypePointer, 42, storagePushConstant, 40)
	a.op(opVariable, 42, 41, storagePushConstant)

	// Stage inputs carry no binding and are ignored.
	a.op(opTypePointer, 60, 1, 3)
	a.op(opVariable, 60, 61, 1)
	return a
}

func TestReflectFragmentModule(t *testing.T) {
	m, err := Reflect(fragmentModule().words)
	require.NoError(t, err)

	assert.Equal(t, metadata.ShaderStageFragment, m.Stage)
	assert.Equal(t, "main", m.EntryPoint)
	assert.Equal(t, []Binding{
		{Set: 0, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "camera"},
		{Set: 1, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Name: "MaterialUBO"},
		{Set: 1, Binding: 1, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4, Name: "textures"},
		{Set: 1, Binding: 2, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Name: "particles"},
	}, m.Bindings)

	require.NotNil(t, m.PushConstants)
	assert.Equal(t, "Push", m.PushConstants.Name)
	assert.Equal(t, uint32(80), m.PushConstants.Size)
}

func TestReflectStorageImageInCompute(t *testing.T) {
	a := newAssembler()
	a.op(opEntryPoint, append([]uint32{execCompute, 1}, str("main")...)...)
	a.name(5, "output_image")
	a.op(opDecorate, 5, decorationDescriptorSet, 0).op(opDecorate, 5, decorationBinding, 3)
	a.op(opTypeFloat, 2, 32)
	a.op(opTypeImage, 3, 2, 1, 0, 0, 0, 2, 1)
	a.op(opTypePointer, 4, storageUniformConstant, 3)
	a.op(opVariable, 4, 5, storageUniformConstant)

	m, err := Reflect(a.words)
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageCompute, m.Stage)
	require.Len(t, m.Bindings, 1)
	assert.Equal(t, metadata.DescriptorTypeStorageImage, m.Bindings[0].Type)
	assert.Equal(t, uint32(3), m.Bindings[0].Binding)
	assert.Nil(t, m.PushConstants)
}

func TestReflectErrors(t *testing.T) {
	_, err := Reflect([]uint32{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidSPIRV)

	truncated := newAssembler().words
	truncated = append(truncated, 10<<16|opName, 1)
	_, err = Reflect(truncated)
	assert.ErrorIs(t, err, core.ErrInvalidSPIRV)

	_, err = Reflect(newAssembler().words)
	assert.ErrorIs(t, err, core.ErrInvalidShaderModule)
}

func TestWordsFromBytes(t *testing.T) {
	_, err := WordsFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidSPIRV)

	_, err = WordsFromBytes([]byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, core.ErrInvalidSPIRV)

	src := fragmentModule().words
	data := make([]byte, len(src)*4)
	for i, w := range src {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	words, err := WordsFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, src, words)
}
