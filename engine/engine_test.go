package engine

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
	"github.com/spaghettifunk/lumen/engine/systems"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

var blueprintFiles = map[string]string{
	"compute_culling.yaml": `
name: compute_culling
shaders:
  - {stage: compute, path: shaders/culling.comp}
`,
	"shadow.yaml": `
name: shadow
shaders:
  - {stage: vertex, path: shaders/shadow.vert}
  - {stage: fragment, path: empty}
rasterization: {cull_mode: front}
depth_stencil: {depth_test: true, depth_write: true, format: d32, compare_op: greater}
`,
	"z_prepass.yaml": `
name: z_prepass
shaders:
  - {stage: vertex, path: shaders/geometry.vert}
  - {stage: fragment, path: empty}
depth_stencil: {depth_test: true, depth_write: true}
multisample: true
`,
	"main_geometry.yaml": `
name: main_geometry
shaders:
  - {stage: vertex, path: shaders/geometry.vert}
  - {stage: fragment, path: shaders/geometry.frag}
depth_stencil: {depth_test: true, depth_write: false, compare_op: greater_or_equal}
attachments:
  - {format: rgba32f}
multisample: true
`,
	"skybox.yaml": `
name: skybox
shaders:
  - {stage: vertex, path: shaders/skybox.vert}
  - {stage: fragment, path: shaders/skybox.frag}
vertex_input: {}
rasterization: {cull_mode: none}
depth_stencil: {depth_test: true, depth_write: false, compare_op: greater_or_equal}
attachments:
  - {format: rgba32f}
multisample: true
`,
	"line.yaml": `
name: line
shaders:
  - {stage: vertex, path: shaders/line.vert}
  - {stage: fragment, path: shaders/line.frag}
vertex_input:
  bindings:
    - {binding: 0, stride: 32, rate: instance}
  attributes:
    - {location: 0, binding: 0, format: vec4, offset: 0}
    - {location: 1, binding: 0, format: vec3, offset: 16}
    - {location: 2, binding: 0, format: r32u, offset: 28}
topology: triangle_strip
rasterization: {cull_mode: none}
depth_stencil: {depth_test: true, depth_write: false, compare_op: greater_or_equal}
attachments:
  - {format: rgba32f, blend_enable: true}
multisample: true
`,
	"composite.yaml": `
name: composite
shaders:
  - {stage: vertex, path: shaders/fullscreen.vert}
  - {stage: fragment, path: shaders/composite.frag}
vertex_input: {}
rasterization: {cull_mode: none}
attachments:
  - {format: rgba32f}
`,
	"colour_correction.yaml": `
name: colour_correction
shaders:
  - {stage: vertex, path: shaders/fullscreen.vert}
  - {stage: fragment, path: shaders/colour_correction.frag}
vertex_input: {}
rasterization: {cull_mode: none}
attachments:
  - {format: bgra8_srgb}
`,
}

func cameraShader(stage metadata.ShaderStageFlags) *spirv.Builder {
	b := spirv.NewBuilder(stage, "main")
	b.UniformBlock(renderer.GlobalSet, 0, "CameraUBO", "camera", 21)
	return b
}

func shaderModules() map[string]*spirv.Builder {
	culling := spirv.NewBuilder(metadata.ShaderStageCompute, "main")
	culling.UniformBlock(renderer.GlobalSet, 2, "FrustumUBO", "frustum", 6)
	culling.StorageBuffer(renderer.MaterialSet, 0, "instances_in")
	culling.StorageBuffer(renderer.MaterialSet, 1, "instances_out")
	culling.PushConstantBlock("CullPush", 1)

	shadow := spirv.NewBuilder(metadata.ShaderStageVertex, "main")
	shadow.UniformBlock(renderer.GlobalSet, 1, "ShadowUBO", "shadow_camera", 7)

	geometryVert := cameraShader(metadata.ShaderStageVertex)
	geometryVert.PushConstantBlock("MaterialPush", 2)
	geometryFrag := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	geometryFrag.CombinedImageSampler(renderer.GlobalSet, 3, "shadow_map", 1)
	geometryFrag.CombinedImageSampler(renderer.MaterialSet, 0, "albedo_map", 1)
	geometryFrag.PushConstantBlock("MaterialPush", 2)

	composite := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	composite.CombinedImageSampler(renderer.MaterialSet, 0, "geometry_image", 1)
	correction := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	correction.CombinedImageSampler(renderer.MaterialSet, 0, "composite_image", 1)

	return map[string]*spirv.Builder{
		"culling.comp":           culling,
		"shadow.vert":            shadow,
		"geometry.vert":          geometryVert,
		"geometry.frag":          geometryFrag,
		"skybox.vert":            cameraShader(metadata.ShaderStageVertex),
		"skybox.frag":            spirv.NewBuilder(metadata.ShaderStageFragment, "main"),
		"line.vert":              cameraShader(metadata.ShaderStageVertex),
		"line.frag":              spirv.NewBuilder(metadata.ShaderStageFragment, "main"),
		"fullscreen.vert":        spirv.NewBuilder(metadata.ShaderStageVertex, "main"),
		"composite.frag":         composite,
		"colour_correction.frag": correction,
	}
}

func writeAssets(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range blueprintFiles {
		path := filepath.Join(root, "blueprints", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	for name, b := range shaderModules() {
		path := filepath.Join(root, "shaders", name+".spv")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	}
	return root
}

func testConfig(t *testing.T, frames uint64) *core.Config {
	cfg := core.DefaultConfig()
	cfg.Application.Headless = true
	cfg.Application.MaxFrames = frames
	cfg.Application.Width = 320
	cfg.Application.Height = 240
	cfg.Application.LogLevel = "error"
	cfg.Renderer.MSAASamples = 1
	cfg.Assets.Root = writeAssets(t)
	cfg.Assets.Watch = false
	cfg.Jobs.Workers = 2
	return cfg
}

type recordingLayer struct {
	name       string
	attachErr  error
	updateErr  error
	onUpdate   func(ctx *Context, n int)
	attached   bool
	detached   bool
	updates    int
	submits    int
	resizes    [][2]uint32
	events     []core.EventCode
	consume    bool
	cube       metadata.MeshHandle
	createCube bool
}

func (l *recordingLayer) Name() string { return l.name }

func (l *recordingLayer) OnAttach(ctx *Context) error {
	if l.attachErr != nil {
		return l.attachErr
	}
	if l.createCube {
		h, err := ctx.Systems.Meshes.Create(systems.GenerateCubeConfig(1, 1, 1, 1, 1, "cube", ""), metadata.MaterialHandle{})
		if err != nil {
			return err
		}
		l.cube = h
	}
	l.attached = true
	return nil
}

func (l *recordingLayer) OnDetach() { l.detached = true }

func (l *recordingLayer) Update(ctx *Context, delta time.Duration) error {
	l.updates++
	if l.onUpdate != nil {
		l.onUpdate(ctx, l.updates)
	}
	return l.updateErr
}

func (l *recordingLayer) Submit(r *renderer.FrameRenderer) {
	l.submits++
	if l.cube.IsValid() {
		r.Submit(metadata.DrawCommand{Mesh: l.cube, CastsShadows: true}, math.NewMat4Identity())
	}
	r.SubmitLines(math.NewVec3Zero(), math.NewVec3One(), 1, math.NewVec4One())
}

func (l *recordingLayer) OnResize(width, height uint32) {
	l.resizes = append(l.resizes, [2]uint32{width, height})
}

func (l *recordingLayer) OnEvent(ctx core.EventContext) bool {
	l.events = append(l.events, ctx.Type)
	return l.consume
}

func newEngine(t *testing.T, cfg *core.Config, layers ...Layer) *Engine {
	t.Helper()
	e, err := New(NewGame(cfg, layers...))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func TestHeadlessRunRendersFrames(t *testing.T) {
	layer := &recordingLayer{name: "scene", createCube: true}
	e := newEngine(t, testConfig(t, 4), layer)
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.True(t, layer.attached)
	assert.Equal(t, [][2]uint32{{320, 240}}, layer.resizes)

	dev, ok := e.Device().(*headless.Device)
	require.True(t, ok)
	dev.ClearRecords()

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(4), e.Frames())
	assert.Equal(t, 4, layer.updates)
	assert.Equal(t, 4, layer.submits)
	assert.Len(t, dev.Submissions(), 4)

	stats := e.Renderer().Stats()
	assert.Equal(t, 1, stats.SubmittedInstances)
	assert.Equal(t, 1, stats.LineInstances)

	require.NoError(t, e.Shutdown())
	assert.True(t, layer.detached)
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Nil(t, e.Renderer())
	assert.NoError(t, e.Shutdown(), "shutdown twice is a no-op")
}

func TestEscapeQuits(t *testing.T) {
	layer := &recordingLayer{name: "input"}
	layer.onUpdate = func(ctx *Context, n int) {
		if n == 2 {
			ctx.Input.ProcessKey(core.KEY_ESCAPE, true)
		}
	}
	e := newEngine(t, testConfig(t, 10), layer)
	defer e.Shutdown()

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), e.Frames())
	assert.NotContains(t, layer.events, core.EventCodeKeyPressed, "the engine handles escape first")
}

func TestEventsReachLayersLastAttachedFirst(t *testing.T) {
	first := &recordingLayer{name: "first"}
	second := &recordingLayer{name: "second", consume: true}
	first.onUpdate = func(ctx *Context, n int) {
		if n == 1 {
			ctx.Input.ProcessKey(core.KEY_A, true)
			ctx.Input.ProcessButton(core.BUTTON_LEFT, true)
		}
	}
	e := newEngine(t, testConfig(t, 2), first, second)
	defer e.Shutdown()

	require.NoError(t, e.Run())
	assert.Equal(t, []core.EventCode{core.EventCodeKeyPressed, core.EventCodeButtonPressed}, second.events)
	assert.Empty(t, first.events)
}

func TestResizeEventResizesRendererAndLayers(t *testing.T) {
	layer := &recordingLayer{name: "resize"}
	layer.onUpdate = func(ctx *Context, n int) {
		if n == 1 {
			ctx.Events.Post(core.EventContext{Type: core.EventCodeResized, Data: &core.ResizeEvent{Width: 640, Height: 360}})
		}
	}
	e := newEngine(t, testConfig(t, 3), layer)
	defer e.Shutdown()

	require.NoError(t, e.Run())
	w, h := e.Renderer().Size()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(360), h)
	assert.Equal(t, [][2]uint32{{320, 240}, {640, 360}}, layer.resizes)
	assert.InDelta(t, float32(640)/360, e.Systems().Cameras.Default().Aspect, 1e-5)
}

func TestMinimizedWindowSuspendsFrames(t *testing.T) {
	layer := &recordingLayer{name: "minimize"}
	var e *Engine
	layer.onUpdate = func(ctx *Context, n int) {
		if n == 1 {
			ctx.Events.Post(core.EventContext{Type: core.EventCodeResized, Data: &core.ResizeEvent{}})
			// Nothing would render while suspended, so quit from outside the frame.
			go func() {
				time.Sleep(20 * time.Millisecond)
				e.Stop()
			}()
		}
	}
	e = newEngine(t, testConfig(t, 10), layer)
	defer e.Shutdown()

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(1), e.Frames())
	assert.Equal(t, 1, layer.updates)
}

func TestUpdateErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	layer := &recordingLayer{name: "failing", updateErr: boom}
	e := newEngine(t, testConfig(t, 10), layer)
	defer e.Shutdown()

	assert.ErrorIs(t, e.Run(), boom)
	assert.Zero(t, e.Frames())
}

func TestAttachFailureReleasesEverything(t *testing.T) {
	ok := &recordingLayer{name: "ok"}
	bad := &recordingLayer{name: "bad", attachErr: errors.New("no scene")}
	e, err := New(NewGame(testConfig(t, 1), ok, bad))
	require.NoError(t, err)

	err = e.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attaching layer bad")
	assert.True(t, ok.detached)
	assert.False(t, bad.detached)
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Error(t, e.Run())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Renderer.FramesInFlight = 2
	_, err := New(NewGame(cfg))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = New(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
