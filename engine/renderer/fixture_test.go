package renderer

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/spirv"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeShaders serves modules assembled in memory.
type fakeShaders struct {
	modules map[string][]uint32
	heads   map[string][]byte
}

func (s *fakeShaders) Load(path string) ([]uint32, error) {
	words, ok := s.modules[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrShaderNotFound, path)
	}
	return words, nil
}

func (s *fakeShaders) Head(path string) []byte {
	return s.heads[path]
}

func withCamera(stage metadata.ShaderStageFlags) *spirv.Builder {
	b := spirv.NewBuilder(stage, "main")
	b.UniformBlock(GlobalSet, globalBindingCamera, "CameraUBO", "camera", int(cameraUBOSize/16))
	return b
}

func testShaders() *fakeShaders {
	culling := spirv.NewBuilder(metadata.ShaderStageCompute, "main")
	culling.UniformBlock(GlobalSet, globalBindingFrustum, "FrustumUBO", "frustum", int(frustumUBOSize/16))
	culling.StorageBuffer(MaterialSet, 0, bindingInstancesIn)
	culling.StorageBuffer(MaterialSet, 1, bindingInstancesOut)
	culling.PushConstantBlock("CullPush", 1)

	shadow := spirv.NewBuilder(metadata.ShaderStageVertex, "main")
	shadow.UniformBlock(GlobalSet, globalBindingShadowCamera, "ShadowUBO", "shadow_camera", int(shadowUBOSize/16))

	geometryVert := withCamera(metadata.ShaderStageVertex)
	geometryVert.PushConstantBlock("MaterialPush", 2)
	geometryFrag := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	geometryFrag.CombinedImageSampler(GlobalSet, globalBindingShadowImage, "shadow_map", 1)
	geometryFrag.CombinedImageSampler(MaterialSet, 0, "albedo_map", 1)
	geometryFrag.PushConstantBlock("MaterialPush", 2)

	composite := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	composite.CombinedImageSampler(MaterialSet, 0, bindingGeometryImage, 1)
	correction := spirv.NewBuilder(metadata.ShaderStageFragment, "main")
	correction.CombinedImageSampler(MaterialSet, 0, bindingCompositeImage, 1)

	return &fakeShaders{
		modules: map[string][]uint32{
			"shaders/culling.comp":           culling.Words(),
			"shaders/shadow.vert":            shadow.Words(),
			"shaders/geometry.vert":          geometryVert.Words(),
			"shaders/geometry.frag":          geometryFrag.Words(),
			"shaders/skybox.vert":            withCamera(metadata.ShaderStageVertex).Words(),
			"shaders/skybox.frag":            spirv.NewBuilder(metadata.ShaderStageFragment, "main").Words(),
			"shaders/line.vert":              withCamera(metadata.ShaderStageVertex).Words(),
			"shaders/line.frag":              spirv.NewBuilder(metadata.ShaderStageFragment, "main").Words(),
			"shaders/fullscreen.vert":        spirv.NewBuilder(metadata.ShaderStageVertex, "main").Words(),
			"shaders/composite.frag":         composite.Words(),
			"shaders/colour_correction.frag": correction.Words(),
			metadata.EmptyFragmentShader:     spirv.EmptyFragment(),
		},
		heads: map[string][]byte{},
	}
}

var testBlueprints = map[string]string{
	"compute_culling": `
name: compute_culling
shaders:
  - {stage: compute, path: shaders/culling.comp}
`,
	"shadow": `
name: shadow
shaders:
  - {stage: vertex, path: shaders/shadow.vert}
  - {stage: fragment, path: empty}
rasterization:
  cull_mode: front
  depth_bias: {constant: 1.25, clamp: 0, slope: 1.75}
depth_stencil: {depth_test: true, depth_write: true, format: d32, compare_op: greater}
`,
	"z_prepass": `
name: z_prepass
shaders:
  - {stage: vertex, path: shaders/geometry.vert}
  - {stage: fragment, path: empty}
depth_stencil: {depth_test: true, depth_write: true}
multisample: true
`,
	"main_geometry": `
name: main_geometry
shaders:
  - {stage: vertex, path: shaders/geometry.vert}
  - {stage: fragment, path: shaders/geometry.frag}
depth_stencil: {depth_test: true, depth_write: false, compare_op: greater_or_equal}
attachments:
  - {format: rgba32f}
multisample: true
`,
	"skybox": `
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
	"line": `
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
	"composite": `
name: composite
shaders:
  - {stage: vertex, path: shaders/fullscreen.vert}
  - {stage: fragment, path: shaders/composite.frag}
vertex_input: {}
rasterization: {cull_mode: none}
attachments:
  - {format: rgba32f}
`,
	"colour_correction": `
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

type blueprintTable map[string]*metadata.PipelineBlueprint

func (t blueprintTable) Get(name string) (*metadata.PipelineBlueprint, bool) {
	bp, ok := t[name]
	return bp, ok
}

func parseTestBlueprint(t testing.TB, name string) *metadata.PipelineBlueprint {
	t.Helper()
	bp, err := metadata.ParseBlueprint([]byte(testBlueprints[name]))
	require.NoError(t, err, name)
	return bp
}

func testBlueprintTable(t testing.TB) blueprintTable {
	table := blueprintTable{}
	for name := range testBlueprints {
		table[name] = parseTestBlueprint(t, name)
	}
	return table
}

type meshTable struct {
	registry *containers.Registry[*metadata.Mesh]
}

func (m *meshTable) Mesh(h metadata.MeshHandle) (*metadata.Mesh, bool) {
	return m.registry.Get(h)
}

type materialTable struct {
	registry *containers.Registry[*Material]
}

func (m *materialTable) Material(h metadata.MaterialHandle) (*Material, bool) {
	return m.registry.Get(h)
}

func (m *materialTable) Each(fn func(*Material)) {
	m.registry.Each(func(_ containers.Handle, mat *Material) bool {
		fn(mat)
		return true
	})
}

type fixture struct {
	device    *headless.Device
	jobs      *jobs.JobSystem
	shaders   *fakeShaders
	meshes    *meshTable
	materials *materialTable
	renderer  *FrameRenderer
	cube      metadata.MeshHandle
}

func testConfig() core.RendererConfig {
	cfg := core.DefaultConfig().Renderer
	cfg.ShadowMapSize = 256
	cfg.MaxCulledInstances = 4096
	cfg.MaxLineInstances = 64
	cfg.MSAASamples = 4
	return cfg
}

func newFixture(t *testing.T, configure ...func(*core.RendererConfig)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, c := range configure {
		c(&cfg)
	}
	js, err := jobs.NewJobSystem(4, 256)
	require.NoError(t, err)

	f := &fixture{
		device:    headless.New(),
		jobs:      js,
		shaders:   testShaders(),
		meshes:    &meshTable{registry: containers.NewRegistry[*metadata.Mesh](8)},
		materials: &materialTable{registry: containers.NewRegistry[*Material](8)},
	}
	f.cube = f.addMesh(t, 2)

	f.renderer, err = NewFrameRenderer(FrameRendererContext{
		Device:     f.device,
		Jobs:       js,
		Meshes:     f.meshes,
		Materials:  f.materials,
		Blueprints: testBlueprintTable(t),
		Shaders:    f.shaders,
		Config:     cfg,
		Width:      640,
		Height:     480,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		f.renderer.Destroy()
		_ = js.Shutdown()
	})
	return f
}

// addMesh registers a mesh with the given number of submeshes of one triangle each.
func (f *fixture) addMesh(t *testing.T, submeshes int) metadata.MeshHandle {
	t.Helper()
	vb, err := f.device.CreateBuffer(metadata.BufferDesc{Label: "vertices", Size: 3 * metadata.VertexSize * uint64(submeshes), Usage: metadata.BufferUsageVertex})
	require.NoError(t, err)
	ib, err := f.device.CreateBuffer(metadata.BufferDesc{Label: "indices", Size: 12 * uint64(submeshes), Usage: metadata.BufferUsageIndex})
	require.NoError(t, err)
	mesh := &metadata.Mesh{Name: "mesh", VertexBuffer: vb, IndexBuffer: ib}
	for i := 0; i < submeshes; i++ {
		mesh.Submeshes = append(mesh.Submeshes, metadata.Submesh{
			VertexOffset: uint32(3 * i), IndexOffset: uint32(3 * i), IndexCount: 3, MaterialIndex: 0,
		})
	}
	t.Cleanup(func() {
		vb.Destroy()
		ib.Destroy()
	})
	return f.meshes.registry.Insert(mesh)
}

// testCamera sits at z = 5 looking at the origin with a 90 degree fov and a far plane at 100.
func testCamera() (math.Mat4, math.Mat4, math.Mat4) {
	view := math.NewMat4LookAt(math.NewVec3(0, 0, 5), math.NewVec3Zero(), math.NewVec3Up())
	proj := math.NewMat4PerspectiveReverseZ(math.DegToRad(90), 640.0/480.0, 0.1, 100)
	return view, proj, proj.Inverse()
}

// runFrame begins and ends the next frame with the test camera.
func (f *fixture) runFrame(t *testing.T) uint32 {
	t.Helper()
	frame := f.renderer.NextFrame()
	view, proj, inv := testCamera()
	require.NoError(t, f.renderer.BeginFrame(frame, view, proj, inv))
	require.NoError(t, f.renderer.EndFrame(frame))
	return frame
}

// lastGraphics returns the commands of the latest graphics submission.
func (f *fixture) lastGraphics(t *testing.T) ([]headless.Command, headless.Submission) {
	t.Helper()
	subs := f.device.Submissions()
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i].Queue == metadata.QueueGraphics {
			require.Len(t, subs[i].Commands, 1)
			return subs[i].Commands[0], subs[i]
		}
	}
	t.Fatal("no graphics submission")
	return nil, headless.Submission{}
}
