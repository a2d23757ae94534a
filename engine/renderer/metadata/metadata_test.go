package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

const geometryBlueprint = `
name: main_geometry
multisample: true
shaders:
  - stage: vertex
    path: geometry.vert
  - stage: fragment
    path: geometry.frag
depth_stencil:
  depth_test: true
  depth_write: false
attachments:
  - format: rgba32f
`

func TestParseBlueprintDefaults(t *testing.T) {
	bp, err := ParseBlueprint([]byte(geometryBlueprint))
	require.NoError(t, err)

	assert.Equal(t, "main_geometry", bp.Name)
	assert.Equal(t, "main", bp.Shaders[0].Entry)
	assert.Equal(t, DefaultVertexInput(), bp.VertexInput)
	assert.Equal(t, "back", bp.Rasterization.CullMode)
	assert.Equal(t, "greater", bp.DepthStencil.CompareOp)
	assert.Equal(t, "d32", bp.DepthStencil.Format)
	assert.False(t, bp.IsCompute())

	modules := map[ShaderStageFlags]ShaderModule{ShaderStageVertex: "v", ShaderStageFragment: "f"}
	desc, err := bp.GraphicsDesc(modules, "layout", SampleCount4)
	require.NoError(t, err)
	assert.Equal(t, SampleCount4, desc.Samples)
	assert.True(t, desc.Resolve)
	assert.Equal(t, CompareOpGreater, desc.DepthCompare)
	assert.Equal(t, FormatD32Sfloat, desc.DepthFormat)
	assert.Equal(t, FaceCullModeBack, desc.CullMode)
	require.Len(t, desc.ColorTargets, 1)
	assert.Equal(t, uint32(0xF), desc.ColorTargets[0].WriteMask)
	require.Len(t, desc.VertexBindings, 2)
	assert.Equal(t, VertexInputRateInstance, desc.VertexBindings[1].Rate)
	assert.Equal(t, uint32(64), desc.VertexBindings[1].Stride)
	assert.Len(t, desc.VertexAttributes, 8)
}

func TestBlueprintValidation(t *testing.T) {
	cases := map[string]string{
		"depth write without test": `
name: bad
shaders: [{stage: vertex, path: a.vert}]
depth_stencil: {depth_test: false, depth_write: true}
`,
		"compute mixed with vertex": `
name: bad
shaders: [{stage: vertex, path: a.vert}, {stage: compute, path: a.comp}]
`,
		"no name": `
shaders: [{stage: vertex, path: a.vert}]
attachments: [{format: rgba8}]
`,
		"colour attachment with depth format": `
name: bad
shaders: [{stage: vertex, path: a.vert}]
attachments: [{format: d32}]
`,
		"empty vertex stage": `
name: bad
shaders: [{stage: vertex, path: empty}]
attachments: [{format: rgba8}]
`,
		"attribute on missing binding": `
name: bad
shaders: [{stage: vertex, path: a.vert}]
vertex_input:
  bindings: [{binding: 0, stride: 12}]
  attributes: [{location: 0, binding: 3, format: vec3}]
attachments: [{format: rgba8}]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBlueprint([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidBlueprint))
		})
	}
}

func TestComputeBlueprintSkipsGraphicsDefaults(t *testing.T) {
	bp, err := ParseBlueprint([]byte("name: culling\nshaders: [{stage: comp, path: culling.comp}]\n"))
	require.NoError(t, err)
	assert.True(t, bp.IsCompute())
	assert.Nil(t, bp.VertexInput)
}

func TestEmptyVertexInputIsKept(t *testing.T) {
	bp, err := ParseBlueprint([]byte(`
name: composite
shaders: [{stage: vertex, path: fullscreen.vert}, {stage: fragment, path: composite.frag}]
vertex_input: {bindings: [], attributes: []}
rasterization: {cull_mode: none}
attachments: [{format: rgba32f}]
`))
	require.NoError(t, err)
	desc, err := bp.GraphicsDesc(map[ShaderStageFlags]ShaderModule{ShaderStageVertex: 1, ShaderStageFragment: 2}, nil, SampleCount8)
	require.NoError(t, err)
	assert.Empty(t, desc.VertexBindings)
	assert.Equal(t, SampleCount1, desc.Samples)
	assert.False(t, desc.Resolve)
}

func TestBlueprintHash(t *testing.T) {
	bp, err := ParseBlueprint([]byte(geometryBlueprint))
	require.NoError(t, err)

	heads := map[string][]byte{"geometry.vert": {1, 2, 3}, "geometry.frag": {4, 5}}
	read := func(path string) []byte { return heads[path] }

	h1 := bp.Hash(read)
	assert.NotZero(t, h1)
	assert.Equal(t, h1, bp.Hash(read))

	heads["geometry.frag"] = []byte{4, 6}
	assert.NotEqual(t, h1, bp.Hash(read))

	heads["geometry.frag"] = []byte{4, 5}
	bp.Rasterization.CullMode = "none"
	assert.NotEqual(t, h1, bp.Hash(read))
}

func TestPassNames(t *testing.T) {
	passes := AllPasses()
	require.Len(t, passes, 8)
	assert.Equal(t, PassComputeCulling, passes[0])
	assert.Equal(t, PassColourCorrection, passes[7])

	for _, p := range passes {
		parsed, err := ParsePassName(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParsePassName("bloom")
	assert.ErrorIs(t, err, core.ErrUnknownPass)
}

func TestLayoutsAndBytes(t *testing.T) {
	inst := []InstanceData{{Transform: math.NewMat4Identity()}, {Transform: math.NewMat4Identity()}}
	assert.Len(t, AsBytes(inst), 2*InstanceDataSize)
	assert.Len(t, AsBytes([]LineInstanceData{{}}), LineInstanceDataSize)
	assert.Len(t, AsBytes([]Vertex{{}}), VertexSize)
	assert.Nil(t, AsBytes([]InstanceData{}))

	v := uint32(7)
	assert.Equal(t, []byte{7, 0, 0, 0}, ValueBytes(&v))
}

func TestDrawMapResetKeepsKeys(t *testing.T) {
	cmd := DrawCommand{Mesh: MeshHandle{Index: 1, Generation: 1}}
	m := DrawMap{cmd: make([]InstanceData, 3)}
	assert.Equal(t, 3, m.InstanceCount())
	m.Reset()
	assert.Equal(t, 0, m.InstanceCount())
	assert.Contains(t, m, cmd)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, uint64(256), GetAligned(100, 256))
	assert.Equal(t, uint64(512), GetAligned(512, 256))
	assert.Equal(t, uint64(13), GetAligned(13, 0))

	assert.Equal(t, SampleCount8, HighestSampleCount(SampleCount1|SampleCount2|SampleCount4|SampleCount8))
	assert.Equal(t, SampleCount1, HighestSampleCount(0))

	assert.True(t, FormatD32Sfloat.IsDepth())
	assert.Equal(t, uint32(16), FormatR32G32B32A32Sfloat.BytesPerPixel())

	mesh := &Mesh{
		Submeshes: []Submesh{{MaterialIndex: 0}, {MaterialIndex: 1}},
		Materials: []MaterialHandle{{Index: 2, Generation: 1}},
	}
	h, ok := mesh.SubmeshMaterial(0)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), h.Index)
	_, ok = mesh.SubmeshMaterial(1)
	assert.False(t, ok)
}

func TestImageResourceDataValidate(t *testing.T) {
	img := &ImageResourceData{ChannelCount: 4, Width: 2, Height: 3, Pixels: make([]uint8, 24)}
	assert.Equal(t, uint64(24), img.Size())
	assert.NoError(t, img.Validate())

	img.Pixels = img.Pixels[:20]
	assert.Error(t, img.Validate())

	empty := &ImageResourceData{ChannelCount: 4}
	assert.Error(t, empty.Validate())
}
