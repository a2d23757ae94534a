package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const fenceTimeout = 10 * time.Second

// Names of the resources the pass materials resolve by binding name.
const (
	bindingInstancesIn    = "instances_in"
	bindingInstancesOut   = "instances_out"
	bindingGeometryImage  = "geometry_image"
	bindingCompositeImage = "composite_image"
)

// Global set 0 layout shared by every material.
const (
	globalBindingCamera uint32 = iota
	globalBindingShadowCamera
	globalBindingFrustum
	globalBindingShadowImage
)

const initialInstanceCapacity = 1024

type MeshSource interface {
	Mesh(h metadata.MeshHandle) (*metadata.Mesh, bool)
}

type MaterialSource interface {
	Material(h metadata.MaterialHandle) (*Material, bool)
	Each(fn func(m *Material))
}

type BlueprintSource interface {
	Get(name string) (*metadata.PipelineBlueprint, bool)
}

// FrameRendererContext wires the renderer to the rest of the engine.
type FrameRendererContext struct {
	Device     metadata.Device
	Jobs       *jobs.JobSystem
	Meshes     MeshSource
	Materials  MaterialSource
	Blueprints BlueprintSource
	Shaders    ShaderSource
	Config     core.RendererConfig
	Width      uint32
	Height     uint32
}

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameSubmitting
	FrameRecording
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameSubmitting:
		return "submitting"
	default:
		return "recording"
	}
}

// FrameStats describes the last frame that ended.
type FrameStats struct {
	Frame                  uint32
	SubmittedInstances     int
	SubmittedShadows       int
	VisibleInstances       int
	VisibleShadowInstances int
	LineInstances          int
	DrawItems              int
	ShadowDrawItems        int
	GeometryCulled         bool
	ShadowCulled           bool
	GPUCulled              bool
}

type frameResources struct {
	geometry     metadata.DrawMap
	shadow       metadata.DrawMap
	lines        []metadata.LineInstanceData
	geometryBuf  *GPUBuffer
	shadowBuf    *GPUBuffer
	lineBuf      *GPUBuffer
	culledBuf    *GPUBuffer
	graphics     metadata.CommandList
	compute      metadata.CommandList
	fence        metadata.Fence
	computeDone  metadata.Semaphore
	globalSet    metadata.DescriptorSet
	timings      map[string]time.Duration
	submittedGPU bool
	// The compute list ran in the last submission of this frame.
	culledGPU bool
}

type attachments struct {
	shadow    *GPUImage
	msaa      *GPUImage
	depth     *GPUImage
	geometry  *GPUImage
	composite *GPUImage
	output    *GPUImage
}

/**
 * @brief Drives one frame through culling, instance upload and the fixed pass
 * sequence, keeping FramesInFlight frames of resources. Every method must be
 * called from the same goroutine.
 */
type FrameRenderer struct {
	ctx      FrameRendererContext
	device   metadata.Device
	deferred *DeferredQueue
	samples  metadata.SampleCount
	width    uint32
	height   uint32

	state     FrameState
	current   uint32
	nextFrame uint32
	frames    [metadata.FramesInFlight]frameResources

	cameraBuf    *GPUBuffer
	shadowUBOBuf *GPUBuffer
	frustumBuf   *GPUBuffer
	cameraStride uint64
	shadowStride uint64
	frustStride  uint64

	globalLayout metadata.DescriptorSetLayout
	globalPool   metadata.DescriptorPool
	sampler      metadata.Sampler
	shadowSamp   metadata.Sampler
	images       attachments
	materials    [metadata.PassCount]*Material

	camera        CameraUBO
	cameraFrustum math.Frustum
	lightFrustum  math.Frustum
	light         *LightEnvironment

	geometryBuilder *DrawListBuilder
	shadowBuilder   *DrawListBuilder
	stats           FrameStats
}

func NewFrameRenderer(ctx FrameRendererContext) (*FrameRenderer, error) {
	if ctx.Config.CullingThreshold < 1 {
		ctx.Config.CullingThreshold = DefaultCullingThreshold
	}
	r := &FrameRenderer{
		ctx:      ctx,
		device:   ctx.Device,
		deferred: NewDeferredQueue(ctx.Device),
		width:    ctx.Width,
		height:   ctx.Height,
		light:    NewLightEnvironment(),
	}
	r.samples = pickSamples(ctx.Config.MSAASamples, ctx.Device.Limits().SampleCounts)
	r.geometryBuilder = NewDrawListBuilder(r.resolveMaterialHandle)
	r.shadowBuilder = NewDrawListBuilder(nil)

	if err := r.createUniforms(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.createAttachments(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.createFrames(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.createGlobalSets(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.createPassMaterials(); err != nil {
		r.Destroy()
		return nil, err
	}
	core.LogInfo("frame renderer ready: %dx%d, %dx msaa, %d frames in flight", r.width, r.height, r.samples, metadata.FramesInFlight)
	return r, nil
}

func pickSamples(requested uint32, supported metadata.SampleCount) metadata.SampleCount {
	if supported == 0 {
		return metadata.SampleCount1
	}
	if requested == 0 {
		return metadata.HighestSampleCount(supported)
	}
	want := metadata.SampleCount(requested)
	if want&supported != 0 && want&(want-1) == 0 {
		return want
	}
	core.LogWarn("msaa %d not supported, using the device maximum", requested)
	return metadata.HighestSampleCount(supported)
}

func (r *FrameRenderer) createUniforms() error {
	align := r.device.Limits().MinUniformBufferOffsetAlignment
	r.cameraStride = metadata.GetAligned(cameraUBOSize, align)
	r.shadowStride = metadata.GetAligned(shadowUBOSize, align)
	r.frustStride = metadata.GetAligned(frustumUBOSize, align)

	var err error
	usage := metadata.BufferUsageUniform
	if r.cameraBuf, err = NewGPUBuffer(r.device, r.deferred, "camera_ubo", r.cameraStride*metadata.FramesInFlight, usage); err != nil {
		return err
	}
	if r.shadowUBOBuf, err = NewGPUBuffer(r.device, r.deferred, "shadow_camera_ubo", r.shadowStride*metadata.FramesInFlight, usage); err != nil {
		return err
	}
	if r.frustumBuf, err = NewGPUBuffer(r.device, r.deferred, "frustum_ubo", r.frustStride*metadata.FramesInFlight, usage); err != nil {
		return err
	}
	if r.sampler, err = r.device.CreateSampler(metadata.SamplerDesc{Label: "linear_clamp", Linear: true, Clamp: true}); err != nil {
		return err
	}
	if r.shadowSamp, err = r.device.CreateSampler(metadata.SamplerDesc{Label: "shadow", Linear: false, Clamp: true}); err != nil {
		return err
	}
	return nil
}

func (r *FrameRenderer) createAttachments() error {
	var err error
	size := r.ctx.Config.ShadowMapSize
	r.images.shadow, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
		Label:  "shadow_image",
		Width:  size,
		Height: size,
		Format: metadata.FormatD32Sfloat,
		Usage:  metadata.ImageUsageDepthStencilAttachment | metadata.ImageUsageSampled,
	}, r.shadowSamp)
	if err != nil {
		return err
	}
	return r.createSizedAttachments()
}

// createSizedAttachments creates every attachment that follows the output size.
func (r *FrameRenderer) createSizedAttachments() error {
	var err error
	colour := metadata.ImageUsageColorAttachment | metadata.ImageUsageSampled
	if r.samples > metadata.SampleCount1 {
		r.images.msaa, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
			Label: "msaa_colour", Width: r.width, Height: r.height,
			Format: metadata.FormatR32G32B32A32Sfloat, Usage: metadata.ImageUsageColorAttachment, Samples: r.samples,
		}, nil)
		if err != nil {
			return err
		}
	}
	if r.images.depth, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
		Label: "geometry_depth", Width: r.width, Height: r.height,
		Format: metadata.FormatD32Sfloat, Usage: metadata.ImageUsageDepthStencilAttachment, Samples: r.samples,
	}, nil); err != nil {
		return err
	}
	if r.images.geometry, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
		Label: "geometry_image", Width: r.width, Height: r.height,
		Format: metadata.FormatR32G32B32A32Sfloat, Usage: colour,
	}, r.sampler); err != nil {
		return err
	}
	if r.images.composite, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
		Label: "composite_image", Width: r.width, Height: r.height,
		Format: metadata.FormatR32G32B32A32Sfloat, Usage: colour,
	}, r.sampler); err != nil {
		return err
	}
	if r.images.output, err = NewGPUImage(r.device, r.deferred, metadata.ImageDesc{
		Label: "colour_corrected_image", Width: r.width, Height: r.height,
		Format: metadata.FormatB8G8R8A8Srgb, Usage: colour | metadata.ImageUsageTransferSrc,
	}, r.sampler); err != nil {
		return err
	}
	return nil
}

func (r *FrameRenderer) sizedImages() []*GPUImage {
	out := []*GPUImage{r.images.depth, r.images.geometry, r.images.composite, r.images.output}
	if r.images.msaa != nil {
		out = append(out, r.images.msaa)
	}
	return out
}

func (r *FrameRenderer) createFrames() error {
	cfg := r.ctx.Config
	for i := range r.frames {
		f := &r.frames[i]
		f.geometry = metadata.DrawMap{}
		f.shadow = metadata.DrawMap{}
		f.timings = map[string]time.Duration{}

		var err error
		instance := uint64(initialInstanceCapacity * metadata.InstanceDataSize)
		if f.geometryBuf, err = NewGPUBuffer(r.device, r.deferred, fmt.Sprintf("geometry_instances_%d", i), instance,
			metadata.BufferUsageVertex|metadata.BufferUsageStorage); err != nil {
			return err
		}
		if f.shadowBuf, err = NewGPUBuffer(r.device, r.deferred, fmt.Sprintf("shadow_instances_%d", i), instance,
			metadata.BufferUsageVertex); err != nil {
			return err
		}
		if f.lineBuf, err = NewGPUBuffer(r.device, r.deferred, fmt.Sprintf("line_instances_%d", i),
			uint64(initialInstanceCapacity*metadata.LineInstanceDataSize), metadata.BufferUsageVertex); err != nil {
			return err
		}
		if f.culledBuf, err = NewGPUBuffer(r.device, r.deferred, fmt.Sprintf("culled_instances_%d", i),
			uint64(cfg.MaxCulledInstances)*metadata.InstanceDataSize, metadata.BufferUsageVertex|metadata.BufferUsageStorage); err != nil {
			return err
		}
		if f.graphics, err = r.device.AllocateCommandList(metadata.QueueGraphics); err != nil {
			return err
		}
		if f.compute, err = r.device.AllocateCommandList(metadata.QueueCompute); err != nil {
			return err
		}
		if f.fence, err = r.device.CreateFence(true); err != nil {
			return err
		}
		if f.computeDone, err = r.device.CreateSemaphore(); err != nil {
			return err
		}
	}
	return nil
}

func (r *FrameRenderer) createGlobalSets() error {
	bindings := []metadata.DescriptorBinding{
		{Binding: globalBindingCamera, Type: metadata.DescriptorTypeUniformBuffer, Count: 1,
			Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment | metadata.ShaderStageCompute},
		{Binding: globalBindingShadowCamera, Type: metadata.DescriptorTypeUniformBuffer, Count: 1,
			Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment},
		{Binding: globalBindingFrustum, Type: metadata.DescriptorTypeUniformBuffer, Count: 1,
			Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment | metadata.ShaderStageCompute},
		{Binding: globalBindingShadowImage, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1,
			Stages: metadata.ShaderStageFragment},
	}
	var err error
	if r.globalLayout, err = r.device.CreateDescriptorSetLayout(bindings); err != nil {
		return fmt.Errorf("creating global set layout: %w", err)
	}
	r.globalPool, err = r.device.CreateDescriptorPool(metadata.FramesInFlight, []metadata.DescriptorPoolSize{
		{Type: metadata.DescriptorTypeUniformBuffer, Count: 3 * metadata.FramesInFlight},
		{Type: metadata.DescriptorTypeCombinedImageSampler, Count: metadata.FramesInFlight},
	})
	if err != nil {
		return fmt.Errorf("creating global pool: %w", err)
	}
	sets, err := r.device.AllocateDescriptorSets(r.globalPool, r.globalLayout, metadata.FramesInFlight)
	if err != nil {
		return fmt.Errorf("allocating global sets: %w", err)
	}
	writes := make([]metadata.DescriptorWrite, 0, 4*metadata.FramesInFlight)
	for i := range r.frames {
		set := sets[i]
		r.frames[i].globalSet = set
		frame := uint64(i)
		writes = append(writes,
			metadata.DescriptorWrite{Set: set, Binding: globalBindingCamera, Type: metadata.DescriptorTypeUniformBuffer,
				Buffer: &metadata.DescriptorBufferInfo{Buffer: r.cameraBuf.Handle(), Offset: frame * r.cameraStride, Range: cameraUBOSize}},
			metadata.DescriptorWrite{Set: set, Binding: globalBindingShadowCamera, Type: metadata.DescriptorTypeUniformBuffer,
				Buffer: &metadata.DescriptorBufferInfo{Buffer: r.shadowUBOBuf.Handle(), Offset: frame * r.shadowStride, Range: shadowUBOSize}},
			metadata.DescriptorWrite{Set: set, Binding: globalBindingFrustum, Type: metadata.DescriptorTypeUniformBuffer,
				Buffer: &metadata.DescriptorBufferInfo{Buffer: r.frustumBuf.Handle(), Offset: frame * r.frustStride, Range: frustumUBOSize}},
			metadata.DescriptorWrite{Set: set, Binding: globalBindingShadowImage, Type: metadata.DescriptorTypeCombinedImageSampler,
				Image: r.images.shadow.DescriptorInfo(metadata.DescriptorTypeCombinedImageSampler)},
		)
	}
	r.device.UpdateDescriptorSets(writes)
	return nil
}

// MaterialContext is what materials built outside the renderer need to be
// compatible with its passes.
func (r *FrameRenderer) MaterialContext() MaterialContext {
	return MaterialContext{
		Device:       r.device,
		Shaders:      r.ctx.Shaders,
		GlobalLayout: r.globalLayout,
		Samples:      r.samples,
		Deferred:     r.deferred,
	}
}

func (r *FrameRenderer) createPassMaterials() error {
	ctx := r.MaterialContext()
	for _, pass := range metadata.AllPasses() {
		bp, ok := r.ctx.Blueprints.Get(pass.String())
		if !ok {
			return fmt.Errorf("%w: no blueprint for pass %s", core.ErrInvalidBlueprint, pass)
		}
		m, err := NewMaterial(ctx, bp)
		if err != nil {
			return fmt.Errorf("creating %s pass: %w", pass, err)
		}
		r.materials[pass] = m
	}
	r.materials[metadata.PassComposite].UploadImage(bindingGeometryImage, r.images.geometry)
	r.materials[metadata.PassColourCorrection].UploadImage(bindingCompositeImage, r.images.composite)
	return nil
}

// PassMaterial returns the material recording the given pass.
func (r *FrameRenderer) PassMaterial(pass metadata.PassName) (*Material, error) {
	if pass < 0 || int(pass) >= len(r.materials) {
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownPass, int(pass))
	}
	return r.materials[pass], nil
}

// ReloadPass rebuilds the material of one pass from a new blueprint.
func (r *FrameRenderer) ReloadPass(pass metadata.PassName, bp *metadata.PipelineBlueprint) error {
	m, err := r.PassMaterial(pass)
	if err != nil {
		return err
	}
	return m.Reload(bp)
}

func (r *FrameRenderer) State() FrameState                   { return r.state }
func (r *FrameRenderer) Samples() metadata.SampleCount       { return r.samples }
func (r *FrameRenderer) OutputImage() *GPUImage              { return r.images.output }
func (r *FrameRenderer) ShadowImage() *GPUImage              { return r.images.shadow }
func (r *FrameRenderer) GeometryImage() *GPUImage            { return r.images.geometry }
func (r *FrameRenderer) LightEnvironment() *LightEnvironment { return r.light }
func (r *FrameRenderer) Stats() FrameStats                   { return r.stats }
func (r *FrameRenderer) Size() (uint32, uint32)              { return r.width, r.height }
func (r *FrameRenderer) CameraFrustum() *math.Frustum        { return &r.cameraFrustum }
func (r *FrameRenderer) LightFrustum() *math.Frustum         { return &r.lightFrustum }

// NextFrame is the frame index the pending submissions belong to.
func (r *FrameRenderer) NextFrame() uint32 {
	return r.nextFrame
}

// Timings returns the GPU time of every pass of frame as measured the last time it completed.
func (r *FrameRenderer) Timings(frame uint32) (map[string]time.Duration, error) {
	if frame >= metadata.FramesInFlight {
		return nil, fmt.Errorf("%w: %d", core.ErrFrameIndex, frame)
	}
	out := make(map[string]time.Duration, len(r.frames[frame].timings))
	for k, v := range r.frames[frame].timings {
		out[k] = v
	}
	return out, nil
}

func (r *FrameRenderer) resolveMaterialHandle(cmd metadata.DrawCommand) metadata.MaterialHandle {
	if cmd.Override.IsValid() {
		return cmd.Override
	}
	if mesh, ok := r.ctx.Meshes.Mesh(cmd.Mesh); ok {
		if h, ok := mesh.SubmeshMaterial(cmd.Submesh); ok {
			return h
		}
	}
	return metadata.MaterialHandle{}
}

// resolveMaterial falls back to the main geometry material when the command has none.
func (r *FrameRenderer) resolveMaterial(cmd metadata.DrawCommand) *Material {
	h := r.resolveMaterialHandle(cmd)
	if h.IsValid() && r.ctx.Materials != nil {
		if m, ok := r.ctx.Materials.Material(h); ok {
			return m
		}
	}
	return r.materials[metadata.PassMainGeometry]
}

// Submit queues one instance of every submesh of cmd.Mesh for the next frame.
// Calls made while frame f is being recorded, between BeginFrame(f) and
// EndFrame(f), are drawn in frame f+1 and never in f.
func (r *FrameRenderer) Submit(cmd metadata.DrawCommand, transform math.Mat4) {
	mesh, ok := r.ctx.Meshes.Mesh(cmd.Mesh)
	if !ok {
		core.LogWarn("submit: stale mesh handle %d/%d dropped", cmd.Mesh.Index, cmd.Mesh.Generation)
		return
	}
	if r.state == FrameIdle {
		r.state = FrameSubmitting
	}
	f := &r.frames[r.nextFrame]
	instance := metadata.InstanceData{Transform: transform}
	for i := range mesh.Submeshes {
		c := cmd
		c.Submesh = uint32(i)
		f.geometry[c] = append(f.geometry[c], instance)
		if c.CastsShadows {
			f.shadow[c] = append(f.shadow[c], instance)
		}
	}
}

// SubmitLines queues one line segment for the next frame, with the same
// recording rule as Submit.
func (r *FrameRenderer) SubmitLines(start, end math.Vec3, width float32, colour math.Vec4) {
	if r.state == FrameIdle {
		r.state = FrameSubmitting
	}
	f := &r.frames[r.nextFrame]
	f.lines = append(f.lines, metadata.LineInstanceData{Start: start, Width: width, End: end, Colour: PackColour(colour)})
}

// BeginFrame waits for the GPU to release frame, then writes its uniforms.
func (r *FrameRenderer) BeginFrame(frame uint32, view, projection, inverseProjection math.Mat4) error {
	if frame >= metadata.FramesInFlight {
		return fmt.Errorf("%w: %d", core.ErrFrameIndex, frame)
	}
	if r.state == FrameRecording || frame != r.nextFrame {
		return fmt.Errorf("%w: BeginFrame(%d) while %s, expected frame %d", core.ErrFrameOutOfOrder, frame, r.state, r.nextFrame)
	}
	f := &r.frames[frame]
	if err := r.device.WaitFence(f.fence, fenceTimeout); err != nil {
		return fmt.Errorf("waiting for frame %d: %w", frame, err)
	}
	r.collectTimings(f)
	r.deferred.Advance()

	vp := view.Mul(projection)
	r.camera = CameraUBO{
		View:                  view,
		Projection:            projection,
		InverseProjection:     inverseProjection,
		ViewProjection:        vp,
		InverseViewProjection: vp.Inverse(),
		Position:              view.Inverse().Translation().ToVec4(1),
	}
	shadow := r.light.uniform()
	r.cameraFrustum.Update(vp)
	r.lightFrustum.Update(shadow.LightViewProjection)
	frustum := FrustumUBO{Planes: r.cameraFrustum.AsVec4()}

	if err := r.cameraBuf.Write(uint64(frame)*r.cameraStride, metadata.ValueBytes(&r.camera)); err != nil {
		return err
	}
	if err := r.shadowUBOBuf.Write(uint64(frame)*r.shadowStride, metadata.ValueBytes(&shadow)); err != nil {
		return err
	}
	if err := r.frustumBuf.Write(uint64(frame)*r.frustStride, metadata.ValueBytes(&frustum)); err != nil {
		return err
	}

	r.current = frame
	r.nextFrame = (frame + 1) % metadata.FramesInFlight
	// The maps of frame-2 were drawn and are reused for submissions to the next frame.
	next := &r.frames[r.nextFrame]
	next.geometry.Reset()
	next.shadow.Reset()
	next.lines = next.lines[:0]
	r.state = FrameRecording
	return nil
}

func (r *FrameRenderer) collectTimings(f *frameResources) {
	if !f.submittedGPU {
		return
	}
	f.timings = map[string]time.Duration{}
	for k, v := range f.graphics.Timings() {
		f.timings[k] = v
	}
	if !f.culledGPU {
		return
	}
	for k, v := range f.compute.Timings() {
		f.timings[k] = v
	}
}

type drawResult struct {
	list  metadata.DrawList
	count uint32
	err   error
}

// EndFrame culls and uploads the instances of frame, records every pass and submits.
func (r *FrameRenderer) EndFrame(frame uint32) error {
	if frame >= metadata.FramesInFlight {
		return fmt.Errorf("%w: %d", core.ErrFrameIndex, frame)
	}
	if r.state != FrameRecording || frame != r.current {
		return fmt.Errorf("%w: EndFrame(%d) while %s", core.ErrFrameOutOfOrder, frame, r.state)
	}
	f := &r.frames[frame]
	js := r.ctx.Jobs
	threshold := r.ctx.Config.CullingThreshold

	cullGeometry := js.SubmitTask(func() (any, error) { return ShouldPerformCulling(f.geometry, threshold), nil })
	cullShadow := js.SubmitTask(func() (any, error) { return ShouldPerformCulling(f.shadow, threshold), nil })
	doGeometry, doShadow := cullGeometry.Bool(), cullShadow.Bool()

	// Buffers are sized on this goroutine, the tasks only write into them.
	if err := r.reserve(f); err != nil {
		r.state = FrameIdle
		return err
	}

	var geometry, shadow drawResult
	var lineErr error
	latch := jobs.NewLatch(3)
	js.DetachTask(func() {
		defer latch.CountDown()
		if doGeometry {
			geometry.list, geometry.count, geometry.err = r.geometryBuilder.CullAndFlatten(f.geometry, f.geometryBuf, &r.cameraFrustum, js)
		} else {
			geometry.list, geometry.count, geometry.err = r.geometryBuilder.Flatten(f.geometry, f.geometryBuf)
		}
	})
	js.DetachTask(func() {
		defer latch.CountDown()
		if doShadow {
			shadow.list, shadow.count, shadow.err = r.shadowBuilder.CullAndFlatten(f.shadow, f.shadowBuf, &r.lightFrustum, js)
		} else {
			shadow.list, shadow.count, shadow.err = r.shadowBuilder.Flatten(f.shadow, f.shadowBuf)
		}
	})
	if len(f.lines) > 0 {
		js.DetachTask(func() {
			defer latch.CountDown()
			lineErr = f.lineBuf.Write(0, metadata.AsBytes(f.lines))
		})
	} else {
		latch.CountDown()
	}
	latch.Wait()

	if err := errors.Join(geometry.err, shadow.err, lineErr); err != nil {
		r.state = FrameIdle
		core.LogError("frame %d: instance upload failed: %s", frame, err.Error())
		return err
	}

	gpuCull := doGeometry && geometry.count > 0 && geometry.count <= r.ctx.Config.MaxCulledInstances
	if doGeometry && geometry.count > r.ctx.Config.MaxCulledInstances {
		core.LogWarn("frame %d: %d visible instances exceed the culled buffer, skipping gpu culling", frame, geometry.count)
	}

	r.stats = FrameStats{
		Frame:                  frame,
		SubmittedInstances:     f.geometry.InstanceCount(),
		SubmittedShadows:       f.shadow.InstanceCount(),
		VisibleInstances:       int(geometry.count),
		VisibleShadowInstances: int(shadow.count),
		LineInstances:          len(f.lines),
		DrawItems:              len(geometry.list),
		ShadowDrawItems:        len(shadow.list),
		GeometryCulled:         doGeometry,
		ShadowCulled:           doShadow,
		GPUCulled:              gpuCull,
	}

	if err := r.submit(frame, f, geometry, shadow, gpuCull); err != nil {
		r.state = FrameIdle
		return err
	}
	r.state = FrameIdle
	return nil
}

func (r *FrameRenderer) reserve(f *frameResources) error {
	if _, err := f.geometryBuf.EnsureCapacity(uint64(f.geometry.InstanceCount()) * metadata.InstanceDataSize); err != nil {
		return err
	}
	if _, err := f.shadowBuf.EnsureCapacity(uint64(f.shadow.InstanceCount()) * metadata.InstanceDataSize); err != nil {
		return err
	}
	limit := int(r.ctx.Config.MaxLineInstances)
	if len(f.lines) > limit {
		core.LogWarn("%d lines submitted, drawing the first %d", len(f.lines), limit)
		f.lines = f.lines[:limit]
	}
	_, err := f.lineBuf.EnsureCapacity(uint64(len(f.lines)) * metadata.LineInstanceDataSize)
	return err
}

func (r *FrameRenderer) submit(frame uint32, f *frameResources, geometry, shadow drawResult, gpuCull bool) error {
	var waits []metadata.SemaphoreWait
	if gpuCull {
		if err := r.recordCulling(frame, f, geometry.count); err != nil {
			return err
		}
		if err := r.device.Submit(metadata.QueueCompute, metadata.SubmitInfo{
			Commands: []metadata.CommandList{f.compute},
			Signal:   []metadata.Semaphore{f.computeDone},
		}); err != nil {
			return fmt.Errorf("submitting culling for frame %d: %w", frame, err)
		}
		waits = append(waits, metadata.SemaphoreWait{Semaphore: f.computeDone, Stage: metadata.PipelineStageVertexInput})
	}

	instances := f.geometryBuf
	if gpuCull {
		instances = f.culledBuf
	}
	if err := r.recordGraphics(frame, f, geometry.list, instances, shadow.list, uint32(len(f.lines))); err != nil {
		return err
	}
	if err := r.device.ResetFence(f.fence); err != nil {
		return err
	}
	if err := r.device.Submit(metadata.QueueGraphics, metadata.SubmitInfo{
		Commands: []metadata.CommandList{f.graphics},
		Wait:     waits,
		Fence:    f.fence,
	}); err != nil {
		return fmt.Errorf("submitting frame %d: %w", frame, err)
	}
	f.submittedGPU = true
	f.culledGPU = gpuCull
	return nil
}

// Resize recreates every attachment that follows the output size and points
// the materials sampling them at the new images.
func (r *FrameRenderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if width == r.width && height == r.height {
		return nil
	}
	if err := r.device.WaitIdle(); err != nil {
		return err
	}
	r.width, r.height = width, height
	images := r.sizedImages()
	for _, img := range images {
		if err := img.Recreate(width, height); err != nil {
			return err
		}
	}
	for _, m := range r.materials {
		m.Invalidate(images...)
	}
	if r.ctx.Materials != nil {
		r.ctx.Materials.Each(func(m *Material) { m.Invalidate(images...) })
	}
	core.LogInfo("renderer resized to %dx%d", width, height)
	return nil
}

// Destroy waits for the device and releases everything the renderer created.
func (r *FrameRenderer) Destroy() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("wait idle on shutdown: %s", err.Error())
	}
	for i, m := range r.materials {
		if m != nil {
			m.Destroy()
			r.materials[i] = nil
		}
	}
	for i := range r.frames {
		f := &r.frames[i]
		for _, b := range []*GPUBuffer{f.geometryBuf, f.shadowBuf, f.lineBuf, f.culledBuf} {
			if b != nil {
				b.Destroy()
			}
		}
		for _, obj := range []interface{}{f.graphics, f.compute, f.fence, f.computeDone} {
			if obj != nil {
				r.device.Destroy(obj)
			}
		}
		r.frames[i] = frameResources{}
	}
	for _, b := range []*GPUBuffer{r.cameraBuf, r.shadowUBOBuf, r.frustumBuf} {
		if b != nil {
			b.Destroy()
		}
	}
	for _, img := range []*GPUImage{r.images.shadow, r.images.msaa, r.images.depth, r.images.geometry, r.images.composite, r.images.output} {
		if img != nil {
			img.Destroy()
		}
	}
	for _, obj := range []interface{}{r.globalPool, r.globalLayout, r.sampler, r.shadowSamp} {
		if obj != nil {
			r.device.Destroy(obj)
		}
	}
	r.deferred.Flush()
}
