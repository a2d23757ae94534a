package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// GPUBuffer owns one device buffer. Replacing the underlying buffer keeps the
// GPUBuffer identity, so descriptor bindings stay keyed on the same pointer.
type GPUBuffer struct {
	id       core.ResourceID
	label    string
	device   metadata.Device
	deferred *DeferredQueue
	buffer   metadata.DeviceBuffer
	usage    metadata.BufferUsage
}

func NewGPUBuffer(device metadata.Device, deferred *DeferredQueue, label string, size uint64, usage metadata.BufferUsage) (*GPUBuffer, error) {
	b := &GPUBuffer{
		id:       core.NewResourceID(),
		label:    label,
		device:   device,
		deferred: deferred,
		usage:    usage,
	}
	if err := b.allocate(size); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *GPUBuffer) allocate(size uint64) error {
	if size == 0 {
		size = 4
	}
	buf, err := b.device.CreateBuffer(metadata.BufferDesc{Label: b.label, Size: size, Usage: b.usage})
	if err != nil {
		return fmt.Errorf("creating buffer %s: %w", b.label, err)
	}
	b.buffer = buf
	return nil
}

func (b *GPUBuffer) ID() core.ResourceID         { return b.id }
func (b *GPUBuffer) Label() string               { return b.label }
func (b *GPUBuffer) Handle() metadata.Buffer     { return b.buffer.Handle() }
func (b *GPUBuffer) Size() uint64                { return b.buffer.Size() }
func (b *GPUBuffer) Usage() metadata.BufferUsage { return b.usage }

// DescriptorType is a uniform buffer when the usage allows it, a storage buffer otherwise.
func (b *GPUBuffer) DescriptorType() metadata.DescriptorType {
	if b.usage&metadata.BufferUsageUniform != 0 {
		return metadata.DescriptorTypeUniformBuffer
	}
	return metadata.DescriptorTypeStorageBuffer
}

func (b *GPUBuffer) DescriptorInfo() *metadata.DescriptorBufferInfo {
	return &metadata.DescriptorBufferInfo{Buffer: b.Handle(), Offset: 0, Range: b.Size()}
}

func (b *GPUBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("%w: %s holds %d bytes, write of %d at %d", core.ErrBufferTooSmall, b.label, b.Size(), len(data), offset)
	}
	if len(data) == 0 {
		return nil
	}
	return b.buffer.Write(offset, data)
}

// Resize replaces the device buffer. The old one is retired through the deferred
// queue so frames still in flight can finish reading it. Contents are not kept.
func (b *GPUBuffer) Resize(size uint64) error {
	old := b.buffer
	if err := b.allocate(size); err != nil {
		return err
	}
	retire(b.deferred, old)
	return nil
}

// EnsureCapacity grows the buffer to at least size bytes, doubling to amortize.
func (b *GPUBuffer) EnsureCapacity(size uint64) (bool, error) {
	if size <= b.Size() {
		return false, nil
	}
	next := b.Size()
	for next < size {
		next *= 2
	}
	return true, b.Resize(next)
}

func (b *GPUBuffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
		b.buffer = nil
	}
}

// GPUImage owns one device image and tracks the layout it was last left in.
type GPUImage struct {
	id       core.ResourceID
	device   metadata.Device
	deferred *DeferredQueue
	desc     metadata.ImageDesc
	image    metadata.DeviceImage
	sampler  metadata.Sampler
	layout   metadata.ImageLayout
}

func NewGPUImage(device metadata.Device, deferred *DeferredQueue, desc metadata.ImageDesc, sampler metadata.Sampler) (*GPUImage, error) {
	if desc.Samples == 0 {
		desc.Samples = metadata.SampleCount1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	img := &GPUImage{
		id:       core.NewResourceID(),
		device:   device,
		deferred: deferred,
		desc:     desc,
		sampler:  sampler,
	}
	if err := img.allocate(); err != nil {
		return nil, err
	}
	return img, nil
}

func (i *GPUImage) allocate() error {
	image, err := i.device.CreateImage(i.desc)
	if err != nil {
		return fmt.Errorf("creating image %s: %w", i.desc.Label, err)
	}
	i.image = image
	i.layout = metadata.ImageLayoutUndefined
	return nil
}

func (i *GPUImage) ID() core.ResourceID           { return i.id }
func (i *GPUImage) Label() string                 { return i.desc.Label }
func (i *GPUImage) Handle() metadata.Image        { return i.image.Handle() }
func (i *GPUImage) View() metadata.ImageView      { return i.image.View() }
func (i *GPUImage) Device() metadata.DeviceImage  { return i.image }
func (i *GPUImage) Format() metadata.Format       { return i.desc.Format }
func (i *GPUImage) Width() uint32                 { return i.desc.Width }
func (i *GPUImage) Height() uint32                { return i.desc.Height }
func (i *GPUImage) Samples() metadata.SampleCount { return i.desc.Samples }
func (i *GPUImage) Layout() metadata.ImageLayout  { return i.layout }
func (i *GPUImage) Sampler() metadata.Sampler     { return i.sampler }
func (i *GPUImage) IsDepth() bool                 { return i.desc.Format.IsDepth() }

// SetLayout records a transition done outside Transition, such as the final layout of a pass.
func (i *GPUImage) SetLayout(layout metadata.ImageLayout) {
	i.layout = layout
}

// DescriptorInfo describes the image for a sampled or storage binding.
func (i *GPUImage) DescriptorInfo(t metadata.DescriptorType) *metadata.DescriptorImageInfo {
	layout := metadata.ImageLayoutShaderReadOnlyOptimal
	if t == metadata.DescriptorTypeStorageImage {
		layout = metadata.ImageLayoutGeneral
	}
	return &metadata.DescriptorImageInfo{View: i.View(), Sampler: i.sampler, Layout: layout}
}

// Transition records a barrier from the tracked layout to layout. It is a no-op
// when the image already is in that layout.
func (i *GPUImage) Transition(cmd metadata.CommandList, layout metadata.ImageLayout) {
	if i.layout == layout {
		return
	}
	srcStage, srcAccess := layoutUsage(i.layout, i.IsDepth())
	dstStage, dstAccess := layoutUsage(layout, i.IsDepth())
	cmd.ImageBarrier(metadata.ImageBarrier{
		Image:     i.Handle(),
		Depth:     i.IsDepth(),
		OldLayout: i.layout,
		NewLayout: layout,
		SrcStage:  srcStage,
		DstStage:  dstStage,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
	})
	i.layout = layout
}

// Upload copies pixels into the image outside of any frame. The device leaves
// it ready for sampling.
func (i *GPUImage) Upload(pixels []byte) error {
	if err := i.image.Upload(pixels); err != nil {
		return fmt.Errorf("uploading image %s: %w", i.desc.Label, err)
	}
	i.layout = metadata.ImageLayoutShaderReadOnlyOptimal
	return nil
}

// Recreate reallocates the image at a new size. The old image is retired through the deferred queue.
func (i *GPUImage) Recreate(width, height uint32) error {
	old := i.image
	i.desc.Width, i.desc.Height = width, height
	if err := i.allocate(); err != nil {
		return err
	}
	retire(i.deferred, old)
	return nil
}

func (i *GPUImage) Destroy() {
	if i.image != nil {
		i.image.Destroy()
		i.image = nil
	}
}

func layoutUsage(layout metadata.ImageLayout, depth bool) (metadata.PipelineStageFlags, metadata.AccessFlags) {
	switch layout {
	case metadata.ImageLayoutColorAttachmentOptimal:
		return metadata.PipelineStageColorAttachmentOutput,
			metadata.AccessColorAttachmentRead | metadata.AccessColorAttachmentWrite
	case metadata.ImageLayoutDepthStencilAttachmentOptimal:
		return metadata.PipelineStageEarlyFragmentTests | metadata.PipelineStageLateFragmentTests,
			metadata.AccessDepthStencilAttachmentRead | metadata.AccessDepthStencilAttachmentWrite
	case metadata.ImageLayoutShaderReadOnlyOptimal, metadata.ImageLayoutDepthStencilReadOnlyOptimal:
		return metadata.PipelineStageFragmentShader | metadata.PipelineStageComputeShader, metadata.AccessShaderRead
	case metadata.ImageLayoutGeneral:
		return metadata.PipelineStageComputeShader, metadata.AccessShaderRead | metadata.AccessShaderWrite
	case metadata.ImageLayoutTransferSrcOptimal:
		return metadata.PipelineStageTransfer, metadata.AccessTransferRead
	case metadata.ImageLayoutTransferDstOptimal:
		return metadata.PipelineStageTransfer, metadata.AccessTransferWrite
	case metadata.ImageLayoutPresentSrc:
		return metadata.PipelineStageBottomOfPipe, metadata.AccessNone
	default:
		return metadata.PipelineStageTopOfPipe, metadata.AccessNone
	}
}

// attachmentLayout is the layout an image is left in by a render pass.
func attachmentLayout(img *GPUImage) metadata.ImageLayout {
	if img.IsDepth() {
		return metadata.ImageLayoutDepthStencilAttachmentOptimal
	}
	return metadata.ImageLayoutColorAttachmentOptimal
}
