package renderer

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const cullingGroupSize = 64

// cullingPush is the push constant block of the culling shader.
type cullingPush struct {
	Count uint32
	_     [3]uint32
}

func (r *FrameRenderer) recordCulling(frame uint32, f *frameResources, count uint32) error {
	cmd := f.compute
	if err := cmd.Reset(); err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}
	pass := metadata.PassComputeCulling.String()
	cmd.BeginTimer(pass)

	m := r.materials[metadata.PassComputeCulling]
	m.UploadBuffer(bindingInstancesIn, f.geometryBuf)
	m.UploadBuffer(bindingInstancesOut, f.culledBuf)

	cmd.BufferBarrier(metadata.BufferBarrier{
		Buffer:    f.geometryBuf.Handle(),
		Size:      uint64(count) * metadata.InstanceDataSize,
		SrcStage:  metadata.PipelineStageTopOfPipe,
		DstStage:  metadata.PipelineStageComputeShader,
		SrcAccess: metadata.AccessHostWrite,
		DstAccess: metadata.AccessShaderRead,
	})
	m.Bind(cmd, frame)
	cmd.BindDescriptorSets(metadata.PipelineBindPointCompute, m.Layout(), GlobalSet, []metadata.DescriptorSet{f.globalSet})
	push := cullingPush{Count: count}
	m.PushConstants(cmd, metadata.ValueBytes(&push))
	cmd.Dispatch((count+cullingGroupSize-1)/cullingGroupSize, 1, 1)
	cmd.BufferBarrier(metadata.BufferBarrier{
		Buffer:    f.culledBuf.Handle(),
		Size:      uint64(count) * metadata.InstanceDataSize,
		SrcStage:  metadata.PipelineStageComputeShader,
		DstStage:  metadata.PipelineStageVertexInput,
		SrcAccess: metadata.AccessShaderWrite,
		DstAccess: metadata.AccessVertexAttributeRead,
	})

	cmd.EndTimer(pass)
	return cmd.End()
}

func (r *FrameRenderer) recordGraphics(frame uint32, f *frameResources, geometry metadata.DrawList, instances *GPUBuffer, shadow metadata.DrawList, lines uint32) error {
	cmd := f.graphics
	if err := cmd.Reset(); err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}
	r.recordShadow(cmd, frame, f, shadow)
	r.recordZPrepass(cmd, frame, f, geometry, instances)
	r.recordMainGeometry(cmd, frame, f, geometry, instances)
	r.recordSkybox(cmd, frame, f)
	r.recordLines(cmd, frame, f, lines)
	r.recordComposite(cmd, frame, f)
	r.recordColourCorrection(cmd, frame, f)
	return cmd.End()
}

// beginPass moves every attachment into attachment layout, starts the pass and
// sets a flipped viewport covering width x height.
func (r *FrameRenderer) beginPass(cmd metadata.CommandList, pass metadata.PassName, desc *metadata.PassDesc, images ...*GPUImage) {
	cmd.BeginTimer(pass.String())
	for _, img := range images {
		img.Transition(cmd, attachmentLayout(img))
	}
	desc.Label = pass.String()
	cmd.BeginPass(desc)
	w, h := float32(desc.Width), float32(desc.Height)
	cmd.SetViewport(metadata.Viewport{X: 0, Y: h, Width: w, Height: -h, MinDepth: 0, MaxDepth: 1})
	cmd.SetScissor(0, 0, desc.Width, desc.Height)
}

func (r *FrameRenderer) endPass(cmd metadata.CommandList, pass metadata.PassName) {
	cmd.EndPass()
	cmd.EndTimer(pass.String())
}

// bindMaterial binds m with the global set of frame and pushes its material data.
func (r *FrameRenderer) bindMaterial(cmd metadata.CommandList, frame uint32, f *frameResources, m *Material) {
	m.Bind(cmd, frame)
	cmd.BindDescriptorSets(m.BindPoint(), m.Layout(), GlobalSet, []metadata.DescriptorSet{f.globalSet})
	data := m.Data()
	m.PushConstants(cmd, data.Bytes())
}

// colourTarget is the multisampled colour attachment resolving into the
// geometry image, or the geometry image itself without msaa.
func (r *FrameRenderer) colourTarget(load metadata.LoadOp) (metadata.ColorAttachment, []*GPUImage) {
	if r.images.msaa == nil {
		return metadata.ColorAttachment{
			View:    r.images.geometry.View(),
			Format:  r.images.geometry.Format(),
			Samples: metadata.SampleCount1,
			Load:    load,
		}, []*GPUImage{r.images.geometry}
	}
	return metadata.ColorAttachment{
		View:    r.images.msaa.View(),
		Format:  r.images.msaa.Format(),
		Samples: r.samples,
		Load:    load,
		Resolve: r.images.geometry.View(),
	}, []*GPUImage{r.images.msaa, r.images.geometry}
}

func (r *FrameRenderer) depthTarget(load metadata.LoadOp) *metadata.DepthAttachment {
	return &metadata.DepthAttachment{
		View:       r.images.depth.View(),
		Format:     r.images.depth.Format(),
		Samples:    r.images.depth.Samples(),
		Load:       load,
		ClearDepth: 0,
	}
}

// drawItems issues one instanced draw per item, rebinding the material only when it changes.
func (r *FrameRenderer) drawItems(cmd metadata.CommandList, frame uint32, f *frameResources, items metadata.DrawList, instances *GPUBuffer, material func(metadata.DrawCommand) *Material) {
	var bound *Material
	for _, item := range items {
		mesh, ok := r.ctx.Meshes.Mesh(item.Command.Mesh)
		if !ok || int(item.Command.Submesh) >= len(mesh.Submeshes) {
			core.LogDebug("skipping draw of released mesh %d", item.Command.Mesh.Index)
			continue
		}
		if m := material(item.Command); m != bound {
			r.bindMaterial(cmd, frame, f, m)
			bound = m
		}
		sub := mesh.Submeshes[item.Command.Submesh]
		cmd.BindVertexBuffers(0, []metadata.Buffer{mesh.VertexBuffer.Handle(), instances.Handle()}, []uint64{0, 0})
		cmd.BindIndexBuffer(mesh.IndexBuffer.Handle(), 0, metadata.IndexTypeUint32)
		cmd.DrawIndexed(sub.IndexCount, item.InstanceCount, sub.IndexOffset, int32(sub.VertexOffset), item.FirstInstance)
	}
}

func (r *FrameRenderer) passMaterial(pass metadata.PassName) func(metadata.DrawCommand) *Material {
	m := r.materials[pass]
	return func(metadata.DrawCommand) *Material { return m }
}

func (r *FrameRenderer) recordShadow(cmd metadata.CommandList, frame uint32, f *frameResources, items metadata.DrawList) {
	shadow := r.images.shadow
	r.beginPass(cmd, metadata.PassShadow, &metadata.PassDesc{
		Depth: &metadata.DepthAttachment{
			View:    shadow.View(),
			Format:  shadow.Format(),
			Samples: metadata.SampleCount1,
			Load:    metadata.LoadOpClear,
		},
		Width:  shadow.Width(),
		Height: shadow.Height(),
	}, shadow)
	r.drawItems(cmd, frame, f, items, f.shadowBuf, r.passMaterial(metadata.PassShadow))
	r.endPass(cmd, metadata.PassShadow)
	shadow.Transition(cmd, metadata.ImageLayoutShaderReadOnlyOptimal)
}

func (r *FrameRenderer) recordZPrepass(cmd metadata.CommandList, frame uint32, f *frameResources, items metadata.DrawList, instances *GPUBuffer) {
	r.beginPass(cmd, metadata.PassZPrepass, &metadata.PassDesc{
		Depth:  r.depthTarget(metadata.LoadOpClear),
		Width:  r.width,
		Height: r.height,
	}, r.images.depth)
	r.drawItems(cmd, frame, f, items, instances, r.passMaterial(metadata.PassZPrepass))
	r.endPass(cmd, metadata.PassZPrepass)
}

func (r *FrameRenderer) recordMainGeometry(cmd metadata.CommandList, frame uint32, f *frameResources, items metadata.DrawList, instances *GPUBuffer) {
	colour, images := r.colourTarget(metadata.LoadOpClear)
	r.beginPass(cmd, metadata.PassMainGeometry, &metadata.PassDesc{
		Color:  []metadata.ColorAttachment{colour},
		Depth:  r.depthTarget(metadata.LoadOpLoad),
		Width:  r.width,
		Height: r.height,
	}, append(images, r.images.depth)...)
	r.drawItems(cmd, frame, f, items, instances, r.resolveMaterial)
	r.endPass(cmd, metadata.PassMainGeometry)
}

func (r *FrameRenderer) recordSkybox(cmd metadata.CommandList, frame uint32, f *frameResources) {
	colour, images := r.colourTarget(metadata.LoadOpLoad)
	r.beginPass(cmd, metadata.PassSkybox, &metadata.PassDesc{
		Color:  []metadata.ColorAttachment{colour},
		Depth:  r.depthTarget(metadata.LoadOpLoad),
		Width:  r.width,
		Height: r.height,
	}, append(images, r.images.depth)...)
	r.bindMaterial(cmd, frame, f, r.materials[metadata.PassSkybox])
	cmd.Draw(3, 1, 0, 0)
	r.endPass(cmd, metadata.PassSkybox)
}

func (r *FrameRenderer) recordLines(cmd metadata.CommandList, frame uint32, f *frameResources, lines uint32) {
	colour, images := r.colourTarget(metadata.LoadOpLoad)
	r.beginPass(cmd, metadata.PassLine, &metadata.PassDesc{
		Color:  []metadata.ColorAttachment{colour},
		Depth:  r.depthTarget(metadata.LoadOpLoad),
		Width:  r.width,
		Height: r.height,
	}, append(images, r.images.depth)...)
	if lines > 0 {
		r.bindMaterial(cmd, frame, f, r.materials[metadata.PassLine])
		cmd.BindVertexBuffers(0, []metadata.Buffer{f.lineBuf.Handle()}, []uint64{0})
		cmd.Draw(4, lines, 0, 0)
	}
	r.endPass(cmd, metadata.PassLine)
	r.images.geometry.Transition(cmd, metadata.ImageLayoutShaderReadOnlyOptimal)
}

func (r *FrameRenderer) recordComposite(cmd metadata.CommandList, frame uint32, f *frameResources) {
	target := r.images.composite
	r.beginPass(cmd, metadata.PassComposite, &metadata.PassDesc{
		Color: []metadata.ColorAttachment{{
			View:    target.View(),
			Format:  target.Format(),
			Samples: metadata.SampleCount1,
			Load:    metadata.LoadOpClear,
		}},
		Width:  r.width,
		Height: r.height,
	}, target)
	r.bindMaterial(cmd, frame, f, r.materials[metadata.PassComposite])
	cmd.Draw(3, 1, 0, 0)
	r.endPass(cmd, metadata.PassComposite)
	target.Transition(cmd, metadata.ImageLayoutShaderReadOnlyOptimal)
}

func (r *FrameRenderer) recordColourCorrection(cmd metadata.CommandList, frame uint32, f *frameResources) {
	target := r.images.output
	r.beginPass(cmd, metadata.PassColourCorrection, &metadata.PassDesc{
		Color: []metadata.ColorAttachment{{
			View:    target.View(),
			Format:  target.Format(),
			Samples: metadata.SampleCount1,
			Load:    metadata.LoadOpClear,
		}},
		Width:  r.width,
		Height: r.height,
	}, target)
	r.bindMaterial(cmd, frame, f, r.materials[metadata.PassColourCorrection])
	cmd.Draw(3, 1, 0, 0)
	r.endPass(cmd, metadata.PassColourCorrection)
	target.Transition(cmd, metadata.ImageLayoutShaderReadOnlyOptimal)
}
