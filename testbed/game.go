package testbed

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/systems"
)

const (
	sceneMaterial = "bricks"
	gridHalfSize  = 20
	gridStep      = 2
	moveSpeed     = 10.0
	lookSpeed     = 0.005
	lightRadius   = 12.0
	lightHeight   = 10.0
	lightSpeed    = 0.25
)

type scatteredCube struct {
	transform *math.Transform
	axis      math.Vec3
	speed     float32
}

type line struct {
	start, end math.Vec3
	colour     math.Vec4
}

/**
 * @brief A scene of randomly scattered spinning cubes over a ground plane,
 * lit by an orbiting directional light. WASD/QE move the camera, dragging with
 * the right button looks around, L toggles the grid and F1 prints frame stats.
 */
type Sandbox struct {
	seed      uint64
	cubeCount int

	ctx       *engine.Context
	cube      metadata.MeshHandle
	ground    metadata.MeshHandle
	cubes     []scatteredCube
	grid      []line
	showGrid  bool
	elapsed   float32
	dumpStats bool
}

func NewSandbox(seed uint64, cubeCount int) *Sandbox {
	return &Sandbox{
		seed:      seed,
		cubeCount: cubeCount,
		showGrid:  true,
		grid:      gridLines(gridHalfSize, gridStep),
	}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) OnAttach(ctx *engine.Context) error {
	s.ctx = ctx
	material, ok := ctx.Systems.Materials.Handle(sceneMaterial)
	if !ok {
		core.LogWarn("material %s not found, using the pass default", sceneMaterial)
	}

	cube, err := ctx.Systems.Meshes.Create(systems.GenerateCubeConfig(1, 1, 1, 1, 1, "sandbox_cube", sceneMaterial), material)
	if err != nil {
		return err
	}
	s.cube = cube
	ground, err := ctx.Systems.Meshes.Create(systems.GeneratePlaneConfig(2*gridHalfSize, 2*gridHalfSize, 4, 4, 8, 8, "sandbox_ground", sceneMaterial), material)
	if err != nil {
		return err
	}
	s.ground = ground

	rng := math.NewRandom(s.seed)
	s.cubes = make([]scatteredCube, s.cubeCount)
	for i := range s.cubes {
		pos := rng.Vec3InRange(-gridHalfSize, gridHalfSize)
		pos.Y = rng.InRange(0.5, 6)
		scale := rng.InRange(0.5, 2)
		axis := rng.Vec3InRange(-1, 1)
		if axis.LengthSquared() < 1e-4 {
			axis = math.NewVec3Up()
		}
		s.cubes[i] = scatteredCube{
			transform: math.NewTransformFromPositionRotationScale(pos, math.NewQuatIdentity(), math.NewVec3(scale, scale, scale)),
			axis:      axis.Normalize(),
			speed:     rng.InRange(0.2, 1.5),
		}
	}

	ctx.Camera.SetPosition(math.NewVec3(0, 8, 24))
	ctx.Camera.LookAt(math.NewVec3Zero())
	core.LogInfo("sandbox ready with %d cubes", len(s.cubes))
	return nil
}

func (s *Sandbox) OnDetach() {
	for _, h := range []metadata.MeshHandle{s.cube, s.ground} {
		if !h.IsValid() {
			continue
		}
		if err := s.ctx.Systems.Meshes.Destroy(h); err != nil {
			core.LogError("destroying sandbox mesh: %s", err.Error())
		}
	}
	s.cubes = nil
}

func (s *Sandbox) Update(ctx *engine.Context, delta time.Duration) error {
	dt := float32(delta.Seconds())
	s.elapsed += dt
	s.moveCamera(ctx, dt)

	for i := range s.cubes {
		c := &s.cubes[i]
		c.transform.Rotate(math.NewQuatFromAxisAngle(c.axis, c.speed*dt, true))
	}

	light := ctx.Renderer.LightEnvironment()
	angle := s.elapsed * lightSpeed
	light.Position = math.NewVec3(math32.Cos(angle)*lightRadius, lightHeight, math32.Sin(angle)*lightRadius)

	if s.dumpStats {
		s.dumpStats = false
		s.logStats(ctx.Renderer)
	}
	return nil
}

func (s *Sandbox) moveCamera(ctx *engine.Context, dt float32) {
	cam, in := ctx.Camera, ctx.Input
	step := moveSpeed * dt
	if in.IsKeyDown(core.KEY_LSHIFT) {
		step *= 3
	}
	if in.IsKeyDown(core.KEY_W) || in.IsKeyDown(core.KEY_UP) {
		cam.MoveForward(step)
	}
	if in.IsKeyDown(core.KEY_S) || in.IsKeyDown(core.KEY_DOWN) {
		cam.MoveBackward(step)
	}
	if in.IsKeyDown(core.KEY_A) || in.IsKeyDown(core.KEY_LEFT) {
		cam.MoveLeft(step)
	}
	if in.IsKeyDown(core.KEY_D) || in.IsKeyDown(core.KEY_RIGHT) {
		cam.MoveRight(step)
	}
	if in.IsKeyDown(core.KEY_E) || in.IsKeyDown(core.KEY_SPACE) {
		cam.MoveUp(step)
	}
	if in.IsKeyDown(core.KEY_Q) {
		cam.MoveDown(step)
	}
	if in.IsButtonDown(core.BUTTON_RIGHT) && in.WasButtonDown(core.BUTTON_RIGHT) {
		x, y := in.MousePosition()
		px, py := in.PreviousMousePosition()
		cam.Yaw(float32(px-x) * lookSpeed)
		cam.Pitch(float32(py-y) * lookSpeed)
	}
}

func (s *Sandbox) Submit(r *renderer.FrameRenderer) {
	r.Submit(metadata.DrawCommand{Mesh: s.ground}, math.NewMat4Identity())
	for i := range s.cubes {
		r.Submit(metadata.DrawCommand{Mesh: s.cube, CastsShadows: true}, s.cubes[i].transform.GetWorld())
	}
	if !s.showGrid {
		return
	}
	for _, l := range s.grid {
		r.SubmitLines(l.start, l.end, 1, l.colour)
	}
	light := r.LightEnvironment()
	r.SubmitLines(light.Position, light.Target, 2, math.NewVec4(1, 0.9, 0.3, 1))
}

func (s *Sandbox) OnEvent(ctx core.EventContext) bool {
	switch ctx.Type {
	case core.EventCodeKeyPressed:
		ke, ok := ctx.Data.(*core.KeyEvent)
		if !ok {
			return false
		}
		switch ke.KeyCode {
		case core.KEY_L:
			s.showGrid = !s.showGrid
			return true
		case core.KEY_F1:
			s.dumpStats = true
			return true
		}
	case core.EventCodeMaterialReloaded:
		if name, ok := ctx.Data.(string); ok {
			core.LogInfo("material %s reloaded", name)
		}
	}
	return false
}

func (s *Sandbox) OnResize(width, height uint32) {
	core.LogDebug("sandbox viewport %dx%d", width, height)
}

func (s *Sandbox) logStats(r *renderer.FrameRenderer) {
	st := r.Stats()
	core.LogInfo("frame %d: %d/%d instances visible, %d/%d shadow casters, %d lines, %d draws, gpu cull %t",
		st.Frame, st.VisibleInstances, st.SubmittedInstances, st.VisibleShadowInstances, st.SubmittedShadows,
		st.LineInstances, st.DrawItems+st.ShadowDrawItems, st.GPUCulled)
	timings, err := r.Timings(st.Frame)
	if err != nil {
		return
	}
	for pass, d := range timings {
		core.LogInfo("  %-18s %s", pass, d)
	}
}

// gridLines builds an XZ grid with red and blue X and Z axes.
func gridLines(halfSize, step int) []line {
	var out []line
	h := float32(halfSize)
	grey := math.NewVec4(0.35, 0.35, 0.35, 1)
	for i := -halfSize; i <= halfSize; i += step {
		f := float32(i)
		cx, cz := grey, grey
		if i == 0 {
			cx = math.NewVec4(0.2, 0.2, 1, 1)
			cz = math.NewVec4(1, 0.2, 0.2, 1)
		}
		out = append(out,
			line{start: math.NewVec3(f, 0, -h), end: math.NewVec3(f, 0, h), colour: cx},
			line{start: math.NewVec3(-h, 0, f), end: math.NewVec3(h, 0, f), colour: cz},
		)
	}
	return out
}
