package systems

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestCameraSystemLogsErrorsVerbatim(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	defer core.SetLogOutput(io.Discard)

	cs, err := NewCameraSystem(CameraSystemConfig{MaxCameraCount: 1})
	require.NoError(t, err)
	_, err = cs.Acquire("first")
	require.NoError(t, err)
	_, err = cs.Acquire("100%d_zoom")
	require.Error(t, err)

	assert.Contains(t, buf.String(), "100%d_zoom")
	assert.NotContains(t, buf.String(), "%!")
}

const geometryBlueprint = `
name: main_geometry
shaders:
  - {stage: vertex, path: shaders/geometry.vert}
  - {stage: fragment, path: shaders/geometry.frag}
depth_stencil: {depth_test: true, depth_write: false, compare_op: greater_or_equal}
attachments:
  - {format: rgba32f}
multisample: true
`

const bricksMaterial = `
name = bricks
blueprint = main_geometry
base_colour = 0.5 0.5 0.5 1
metallic = 0.25
albedo_map = bricks.png
`

type testEnv struct {
	root      string
	device    *headless.Device
	events    *core.EventBus
	assets    *assets.AssetManager
	registry  *assets.BlueprintRegistry
	shaders   *ShaderSystem
	textures  *TextureSystem
	materials *MaterialSystem
	passes    *passRecorder
}

type passRecorder struct {
	reloaded []metadata.PassName
}

func (p *passRecorder) ReloadPass(pass metadata.PassName, bp *metadata.PipelineBlueprint) error {
	p.reloaded = append(p.reloaded, pass)
	return nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func geometryFragment(maps ...string) []byte {
	b := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	for i, name := range maps {
		b.CombinedImageSampler(renderer.MaterialSet, uint32(i), name, 1)
	}
	b.PushConstantBlock("MaterialPush", 2)
	return b.Bytes()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	vert := spirv.NewBuilder(metadata.ShaderStageVertex, "main")
	vert.PushConstantBlock("MaterialPush", 2)
	writeFile(t, filepath.Join(root, "shaders", "geometry.vert.spv"), vert.Bytes())
	writeFile(t, filepath.Join(root, "shaders", "geometry.frag.spv"), geometryFragment("albedo_map", "normal_map"))
	writeFile(t, filepath.Join(root, "blueprints", "main_geometry.yaml"), []byte(geometryBlueprint))
	writeFile(t, filepath.Join(root, "materials", "bricks.amt"), []byte(bricksMaterial))
	writePNG(t, filepath.Join(root, "textures", "bricks.png"), 4)

	cfg := core.DefaultConfig().Assets
	cfg.Root = root
	cfg.Watch = false

	env := &testEnv{root: root, device: headless.New(), events: core.NewEventBus(32), passes: &passRecorder{}}
	env.assets = assets.NewAssetManager(cfg, env.events)
	require.NoError(t, env.assets.Initialize())
	env.registry = assets.NewBlueprintRegistry(env.assets)
	require.NoError(t, env.registry.LoadAll(context.Background()))
	env.shaders = NewShaderSystem(env.assets, cfg.HashHeadBytes)

	var err error
	env.textures, err = NewTextureSystem(TextureSystemConfig{MaxTextureCount: 16}, env.assets)
	require.NoError(t, err)
	deferred := renderer.NewDeferredQueue(env.device)
	require.NoError(t, env.textures.Initialize(env.device, deferred))

	env.materials, err = NewMaterialSystem(MaterialSystemConfig{MaxMaterialCount: 16}, env.assets, env.registry, env.textures, env.events)
	require.NoError(t, err)
	global, err := env.device.CreateDescriptorSetLayout(nil)
	require.NoError(t, err)
	require.NoError(t, env.materials.Initialize(renderer.MaterialContext{
		Device:       env.device,
		Shaders:      env.shaders,
		GlobalLayout: global,
		Samples:      metadata.SampleCount1,
		Deferred:     deferred,
	}, env.passes))

	t.Cleanup(func() {
		_ = env.materials.Shutdown()
		_ = env.textures.Shutdown()
		deferred.Flush()
		_ = env.assets.Shutdown()
	})
	return env
}

func (env *testEnv) fire(path string, kind metadata.ResourceType) {
	env.events.Fire(core.EventContext{
		Type: core.EventCodeAssetChanged,
		Data: &core.AssetEvent{Path: path, Kind: kind.String()},
	})
}

func TestShaderSystemHeadAndEmpty(t *testing.T) {
	env := newTestEnv(t)

	words, err := env.shaders.Load("shaders/geometry.vert")
	require.NoError(t, err)
	assert.Equal(t, metadata.SPIRVMagic, words[0])

	head := env.shaders.Head("shaders/geometry.frag")
	assert.NotEmpty(t, head)
	assert.LessOrEqual(t, len(head), core.DefaultConfig().Assets.HashHeadBytes)
	assert.Nil(t, env.shaders.Head(metadata.EmptyFragmentShader))
	assert.Nil(t, env.shaders.Head("shaders/missing.frag"))

	empty, err := env.shaders.Load(metadata.EmptyFragmentShader)
	require.NoError(t, err)
	assert.Equal(t, spirv.EmptyFragment(), empty)
}

func TestMaterialSystemLoadsMaterialFiles(t *testing.T) {
	env := newTestEnv(t)

	h, ok := env.materials.Handle("bricks")
	require.True(t, ok)
	m, ok := env.materials.Material(h)
	require.True(t, ok)

	data := m.Data()
	assert.True(t, data.AlbedoMap)
	assert.False(t, data.NormalMap, "normal map falls back to the flat default")
	assert.Equal(t, float32(0.25), data.Metallic)
	assert.Equal(t, float32(0.5), data.BaseColour.X)
	assert.True(t, m.IsDirty(0), "map bindings wait for the first frame")

	cfg, ok := env.materials.Config(h)
	require.True(t, ok)
	assert.Equal(t, "main_geometry", cfg.Blueprint)

	count := 0
	env.materials.Each(func(*renderer.Material) { count++ })
	assert.Equal(t, 1, count)
}

func TestMaterialSystemMissingTextureUsesDefault(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.materials.Create(&metadata.MaterialConfig{
		Name:       "broken",
		Blueprint:  "main_geometry",
		BaseColour: math.NewVec4One(),
		AlbedoMap:  "missing.png",
	})
	require.NoError(t, err)
	m, _ := env.materials.Material(h)
	assert.False(t, m.Data().AlbedoMap)

	_, err = env.materials.Create(&metadata.MaterialConfig{Name: "orphan", Blueprint: "nope"})
	assert.ErrorIs(t, err, core.ErrInvalidBlueprint)
	_, err = env.materials.Create(&metadata.MaterialConfig{Name: "broken", Blueprint: "main_geometry"})
	assert.Error(t, err, "names are unique")
}

func TestMaterialSystemReloadsOnShaderChange(t *testing.T) {
	env := newTestEnv(t)
	h, _ := env.materials.Handle("bricks")
	m, _ := env.materials.Material(h)
	before := m.Hash()
	_, ok := m.Binding("emissive_map")
	require.False(t, ok)

	var reloaded []string
	env.events.Register(core.EventCodeMaterialReloaded, t, func(ctx core.EventContext) bool {
		reloaded = append(reloaded, ctx.Data.(string))
		return true
	})

	frag := filepath.Join(env.root, "shaders", "geometry.frag.spv")
	writeFile(t, frag, geometryFragment("albedo_map", "normal_map", "emissive_map"))
	env.fire(frag, metadata.ResourceTypeShader)
	env.events.ProcessEvents()

	assert.NotEqual(t, before, m.Hash())
	_, ok = m.Binding("emissive_map")
	assert.True(t, ok)
	assert.Equal(t, []metadata.PassName{metadata.PassMainGeometry}, env.passes.reloaded)
	assert.ElementsMatch(t, []string{"main_geometry", "bricks"}, reloaded)

	// An unchanged file rebuilds nothing.
	env.fire(frag, metadata.ResourceTypeShader)
	env.events.ProcessEvents()
	assert.Len(t, reloaded, 3, "only the pass reports again")
}

func TestMaterialSystemKeepsPipelineOnBrokenShader(t *testing.T) {
	env := newTestEnv(t)
	h, _ := env.materials.Handle("bricks")
	m, _ := env.materials.Material(h)
	pipeline := m.Pipeline()

	frag := filepath.Join(env.root, "shaders", "geometry.frag.spv")
	writeFile(t, frag, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, 1, env.materials.ReloadBlueprint("main_geometry"), "only the pass reload is counted")
	assert.Equal(t, pipeline, m.Pipeline())
}

func TestMaterialSystemReloadsTextures(t *testing.T) {
	env := newTestEnv(t)
	h, _ := env.materials.Handle("bricks")
	m, _ := env.materials.Material(h)
	m.PrepareForRendering(0)
	require.False(t, m.IsDirty(0))

	path := filepath.Join(env.root, "textures", "bricks.png")
	writePNG(t, path, 8)
	env.fire(path, metadata.ResourceTypeImage)

	img, err := env.textures.Acquire("bricks.png", true)
	require.NoError(t, err)
	defer env.textures.Release("bricks.png")
	assert.Equal(t, uint32(8), img.Width())
	assert.True(t, m.IsDirty(0), "a reallocated image is written to the sets again")
}

func TestMaterialSystemUpdatesFromFile(t *testing.T) {
	env := newTestEnv(t)
	h, _ := env.materials.Handle("bricks")

	path := filepath.Join(env.root, "materials", "bricks.amt")
	writeFile(t, path, []byte("name = bricks\nblueprint = main_geometry\nroughness = 0.9\n"))
	env.fire(path, metadata.ResourceTypeMaterial)

	same, ok := env.materials.Handle("bricks")
	require.True(t, ok)
	assert.Equal(t, h, same)
	m, _ := env.materials.Material(h)
	assert.Equal(t, float32(0.9), m.Data().Roughness)
	assert.False(t, m.Data().AlbedoMap)
}

func TestTextureSystemReferenceCounting(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.textures.Acquire("bricks.png", true)
	require.NoError(t, err)
	b, err := env.textures.Acquire("bricks.png", true)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, metadata.FormatR8G8B8A8Srgb, a.Format())

	name, loaded := env.textures.Name(filepath.Join(env.root, "textures", "bricks.png"))
	assert.True(t, loaded)
	assert.Equal(t, "bricks.png", name)

	env.textures.Release("bricks.png")
	env.textures.Release("bricks.png")

	_, loaded = env.textures.Name(filepath.Join(env.root, "textures", "bricks.png"))
	assert.True(t, loaded, "the material still holds a reference")

	assert.NotNil(t, env.textures.Default("normal_map"))
	assert.NotSame(t, env.textures.Default("normal_map"), env.textures.Default("albedo_map"))
}

func TestMeshSystemCreateAndDestroy(t *testing.T) {
	device := headless.New()
	ms, err := NewMeshSystem(MeshSystemConfig{MaxMeshCount: 2}, device)
	require.NoError(t, err)

	cube := GenerateCubeConfig(2, 2, 2, 1, 1, "cube", "")
	h, err := ms.Create(cube, metadata.MaterialHandle{})
	require.NoError(t, err)

	mesh, ok := ms.Mesh(h)
	require.True(t, ok)
	assert.Equal(t, uint32(36), mesh.Submeshes[0].IndexCount)
	data, ok := device.BufferData(mesh.VertexBuffer.Handle())
	require.True(t, ok)
	assert.Len(t, data, 24*metadata.VertexSize)
	_, ok = mesh.SubmeshMaterial(0)
	assert.False(t, ok, "zero handle falls back to the pass material")

	found, ok := ms.Lookup("cube")
	assert.True(t, ok)
	assert.Equal(t, h, found)
	_, err = ms.Create(cube, metadata.MaterialHandle{})
	assert.Error(t, err)

	require.NoError(t, ms.Destroy(h))
	_, ok = ms.Mesh(h)
	assert.False(t, ok)
	assert.Equal(t, 0, device.Live("buffer"))

	_, err = NewMeshSystem(MeshSystemConfig{}, device)
	assert.Error(t, err)
}

func TestGeneratedGeometryFacesOutward(t *testing.T) {
	cube := GenerateCubeConfig(1, 2, 3, 1, 1, "", "")
	require.Len(t, cube.Vertices, 24)
	require.Len(t, cube.Indices, 36)
	assert.Equal(t, DefaultGeometryName, cube.Name)
	assert.Equal(t, metadata.DefaultMaterialName, cube.MaterialName)
	assert.Equal(t, float32(-1.5), cube.Extents.Min.Z)
	assert.Equal(t, float32(1), cube.Extents.Max.Y)

	plane := GeneratePlaneConfig(10, 10, 2, 2, 1, 1, "ground", "")
	require.Len(t, plane.Vertices, 16)
	require.Len(t, plane.Indices, 24)

	for _, g := range []*GeometryConfig{cube, plane} {
		for i := 0; i < len(g.Indices); i += 3 {
			v0, v1, v2 := g.Vertices[g.Indices[i]], g.Vertices[g.Indices[i+1]], g.Vertices[g.Indices[i+2]]
			face := v1.Position.Sub(v0.Position).Cross(v2.Position.Sub(v0.Position))
			assert.Greater(t, face.Dot(v0.Normal), float32(0), "%s triangle %d", g.Name, i/3)
			assert.NotZero(t, v0.Tangent.W, "%s triangle %d has a tangent", g.Name, i/3)
		}
	}
}
