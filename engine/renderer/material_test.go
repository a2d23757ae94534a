package renderer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

func newMaterialContext(t *testing.T) (MaterialContext, *headless.Device) {
	t.Helper()
	d := headless.New()
	global, err := d.CreateDescriptorSetLayout(nil)
	require.NoError(t, err)
	return MaterialContext{
		Device:       d,
		Shaders:      testShaders(),
		GlobalLayout: global,
		Samples:      metadata.SampleCount4,
		Deferred:     NewDeferredQueue(d),
	}, d
}

func newTestImage(t *testing.T, d metadata.Device, label string) *GPUImage {
	t.Helper()
	img, err := NewGPUImage(d, nil, metadata.ImageDesc{Label: label, Width: 4, Height: 4, Format: metadata.FormatR32G32B32A32Sfloat}, "sampler")
	require.NoError(t, err)
	return img
}

func TestMaterialReflectsMaterialSet(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()

	b, ok := m.Binding("albedo_map")
	require.True(t, ok)
	assert.Equal(t, metadata.DescriptorTypeCombinedImageSampler, b.Type)
	_, ok = m.Binding("camera")
	assert.False(t, ok, "set 0 belongs to the renderer")
	assert.Equal(t, metadata.PipelineBindPointGraphics, m.BindPoint())
	assert.NotZero(t, m.Hash())

	pipelines := d.GraphicsPipelines()
	require.Len(t, pipelines, 1)
	desc := pipelines[0]
	assert.Equal(t, metadata.SampleCount4, desc.Samples)
	assert.True(t, desc.Resolve)
	assert.Equal(t, metadata.CompareOpGreaterOrEqual, desc.DepthCompare)
	assert.Equal(t, 0, d.Live("shader_module"), "modules are released once the pipeline exists")
}

func TestMaterialComputeBlueprint(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "compute_culling"))
	require.NoError(t, err)
	defer m.Destroy()
	assert.Equal(t, metadata.PipelineBindPointCompute, m.BindPoint())
	assert.Len(t, d.ComputePipelines(), 1)
	_, ok := m.Binding(bindingInstancesOut)
	assert.True(t, ok)
}

func TestMaterialUploadIsIdempotent(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()
	img := newTestImage(t, d, "albedo")

	assert.False(t, m.IsDirty(0))
	m.UploadImage("albedo_map", img)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		assert.True(t, m.IsDirty(f))
	}

	set := m.PrepareForRendering(0)
	writes := d.DescriptorWrites()
	require.Len(t, writes, 1)
	require.Len(t, writes[0], 1)
	assert.Equal(t, uint32(0), writes[0][0].Binding)
	assert.Equal(t, img.View(), writes[0][0].Image.View)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnlyOptimal, writes[0][0].Image.Layout)
	assert.False(t, m.IsDirty(0))
	assert.True(t, m.IsDirty(1), "other frames keep their pending writes")

	m.UploadImage("albedo_map", img)
	assert.False(t, m.IsDirty(0), "same identity does not dirty")
	assert.Equal(t, set, m.PrepareForRendering(0))
	assert.Len(t, d.DescriptorWrites(), 1, "no writes without uploads")
}

func TestMaterialUploadAfterResizeRewritesBinding(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "compute_culling"))
	require.NoError(t, err)
	defer m.Destroy()
	buf, err := NewGPUBuffer(d, ctx.Deferred, "instances", 256, metadata.BufferUsageStorage)
	require.NoError(t, err)
	defer buf.Destroy()

	m.UploadBuffer(bindingInstancesIn, buf)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		m.PrepareForRendering(f)
	}
	m.UploadBuffer(bindingInstancesIn, buf)
	assert.False(t, m.IsDirty(0))

	old := buf.Handle()
	grown, err := buf.EnsureCapacity(1024)
	require.NoError(t, err)
	require.True(t, grown)
	require.NotEqual(t, old, buf.Handle())

	m.UploadBuffer(bindingInstancesIn, buf)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		assert.True(t, m.IsDirty(f), "a resized buffer is a new resource for every frame")
	}
	m.PrepareForRendering(0)
	writes := d.DescriptorWrites()
	last := writes[len(writes)-1]
	require.Len(t, last, 1)
	assert.Equal(t, buf.Handle(), last[0].Buffer.Buffer)
	assert.Equal(t, uint64(1024), last[0].Buffer.Range)
}

func TestMaterialIgnoresUnknownNamesAndKinds(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()

	buf, err := NewGPUBuffer(d, nil, "b", 64, metadata.BufferUsageStorage)
	require.NoError(t, err)
	m.UploadBuffer("does_not_exist", buf)
	m.UploadBuffer("albedo_map", buf)
	m.UploadImage("nothing", newTestImage(t, d, "x"))
	assert.False(t, m.IsDirty(0))
}

func TestMaterialInvalidate(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "composite"))
	require.NoError(t, err)
	defer m.Destroy()
	geometry := newTestImage(t, d, "geometry")
	other := newTestImage(t, d, "other")

	m.UploadImage(bindingGeometryImage, geometry)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		m.PrepareForRendering(f)
	}
	m.Invalidate(other)
	assert.False(t, m.IsDirty(0))
	m.Invalidate(geometry)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		assert.True(t, m.IsDirty(f))
	}
}

func TestMaterialReloadUnchangedIsNoop(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()
	pipeline := m.Pipeline()

	require.NoError(t, m.Reload(parseTestBlueprint(t, "main_geometry")))
	require.NoError(t, m.Reload(parseTestBlueprint(t, "main_geometry")))
	assert.Equal(t, pipeline, m.Pipeline())
	assert.Len(t, d.GraphicsPipelines(), 1)
}

func TestMaterialReloadKeepsBindings(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()
	img := newTestImage(t, d, "albedo")
	m.UploadImage("albedo_map", img)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		m.PrepareForRendering(f)
	}
	pipeline := m.Pipeline()
	oldSet := m.DescriptorSet(0)

	shaders := ctx.Shaders.(*fakeShaders)
	frag := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	frag.CombinedImageSampler(MaterialSet, 0, "albedo_map", 1)
	frag.CombinedImageSampler(MaterialSet, 1, "normal_map", 1)
	frag.PushConstantBlock("MaterialPush", 2)
	shaders.modules["shaders/geometry.frag"] = frag.Words()
	shaders.heads["shaders/geometry.frag"] = []byte("edited")
	require.NoError(t, m.Reload(parseTestBlueprint(t, "main_geometry")))
	assert.NotEqual(t, pipeline, m.Pipeline())
	assert.NotEqual(t, oldSet, m.DescriptorSet(0))
	_, ok := m.Binding("normal_map")
	assert.True(t, ok)
	assert.True(t, m.IsDirty(0), "surviving bindings are rewritten into the new sets")

	m.PrepareForRendering(0)
	writes := d.DescriptorWrites()
	last := writes[len(writes)-1]
	require.Len(t, last, 1)
	assert.Equal(t, m.DescriptorSet(0), last[0].Set)

	// the old pipeline is released only after the frames in flight
	assert.Equal(t, 2, d.Live("graphics_pipeline"))
	for i := 0; i < metadata.FramesInFlight; i++ {
		ctx.Deferred.Advance()
	}
	assert.Equal(t, 1, d.Live("graphics_pipeline"))
}

func TestMaterialReloadSameInterfaceKeepsSets(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()
	img := newTestImage(t, d, "albedo")
	m.UploadImage("albedo_map", img)
	for f := uint32(0); f < metadata.FramesInFlight; f++ {
		m.PrepareForRendering(f)
	}
	pipeline := m.Pipeline()
	layout := m.Layout()
	var sets [metadata.FramesInFlight]metadata.DescriptorSet
	for f := range sets {
		sets[f] = m.DescriptorSet(uint32(f))
	}
	pools := d.Live("descriptor_pool")
	setLayouts := d.Live("descriptor_set_layout")
	writes := len(d.DescriptorWrites())

	ctx.Shaders.(*fakeShaders).heads["shaders/geometry.frag"] = []byte("edited")
	require.NoError(t, m.Reload(parseTestBlueprint(t, "main_geometry")))
	assert.NotEqual(t, pipeline, m.Pipeline())
	assert.NotEqual(t, layout, m.Layout())
	for f := range sets {
		assert.Equal(t, sets[f], m.DescriptorSet(uint32(f)))
		assert.False(t, m.IsDirty(uint32(f)), "written descriptors stay valid")
	}
	assert.Equal(t, pools, d.Live("descriptor_pool"))
	assert.Equal(t, setLayouts, d.Live("descriptor_set_layout"))

	m.UploadImage("albedo_map", img)
	m.PrepareForRendering(0)
	assert.Len(t, d.DescriptorWrites(), writes)

	// only the pipeline and its layout are retired
	for i := 0; i < metadata.FramesInFlight; i++ {
		ctx.Deferred.Advance()
	}
	assert.Equal(t, 1, d.Live("graphics_pipeline"))
	assert.Equal(t, 1, d.Live("pipeline_layout"))
	assert.Equal(t, setLayouts, d.Live("descriptor_set_layout"))
	assert.Equal(t, pools, d.Live("descriptor_pool"))
}

func TestMaterialReloadFailureKeepsPipeline(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()
	pipeline := m.Pipeline()

	bp := parseTestBlueprint(t, "main_geometry")
	bp.Shaders[1].Path = "shaders/missing.frag"
	err = m.Reload(bp)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShaderNotFound)
	var merr *MaterialError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, MaterialErrorPipeline, merr.Code)
	assert.Equal(t, pipeline, m.Pipeline())

	d.FailNext("CreateGraphicsPipeline", nil)
	ctx.Shaders.(*fakeShaders).heads["shaders/geometry.vert"] = []byte("edited")
	err = m.Reload(parseTestBlueprint(t, "main_geometry"))
	var perr *PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, PipelineCreationFailed, perr.Code)
	assert.Equal(t, pipeline, m.Pipeline())
	assert.Equal(t, 1, d.Live("pipeline_layout"), "partial state of a failed reload is released")
	assert.Equal(t, 2, d.Live("descriptor_set_layout"), "the shared set layout survives")
}

func TestMaterialStageMismatch(t *testing.T) {
	ctx, _ := newMaterialContext(t)
	bp := parseTestBlueprint(t, "main_geometry")
	bp.Shaders[1].Path = "shaders/geometry.vert"
	_, err := NewMaterial(ctx, bp)
	assert.ErrorIs(t, err, core.ErrInvalidShaderModule)
}

func TestMaterialPushConstants(t *testing.T) {
	ctx, d := newMaterialContext(t)
	m, err := NewMaterial(ctx, parseTestBlueprint(t, "main_geometry"))
	require.NoError(t, err)
	defer m.Destroy()

	cmd, err := d.AllocateCommandList(metadata.QueueGraphics)
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	m.Bind(cmd, 4)
	data := DefaultMaterialData()
	m.PushConstants(cmd, append(data.Bytes(), make([]byte, 64)...))
	require.NoError(t, cmd.End())

	cmds := cmd.(*headless.CommandList).Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, headless.OpBindPipeline, cmds[0].Op)
	assert.Equal(t, headless.OpBindDescriptorSets, cmds[1].Op)
	assert.Equal(t, MaterialSet, cmds[1].FirstSet)
	assert.Equal(t, m.DescriptorSet(1), cmds[1].Sets[0], "frame indices wrap")
	assert.Equal(t, headless.OpPushConstants, cmds[2].Op)
	assert.Len(t, cmds[2].Data, 32, "data is truncated to the declared block")
	assert.Equal(t, metadata.ShaderStageVertex|metadata.ShaderStageFragment, cmds[2].Stages)
}
