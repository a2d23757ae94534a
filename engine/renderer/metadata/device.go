package metadata

import "time"

// Opaque device object handles. A backend stores its native handle in them and
// type-asserts on the way back in, so they stay comparable map keys.
type (
	Buffer              interface{}
	Image               interface{}
	ImageView           interface{}
	Sampler             interface{}
	ShaderModule        interface{}
	DescriptorSetLayout interface{}
	DescriptorPool      interface{}
	DescriptorSet       interface{}
	PipelineLayout      interface{}
	Pipeline            interface{}
	Semaphore           interface{}
	Fence               interface{}
)

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type ImageDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	Format    Format
	Usage     ImageUsage
	Samples   SampleCount
	MipLevels uint32
}

type SamplerDesc struct {
	Label  string
	Linear bool
	// Clamp to edge instead of repeat.
	Clamp bool
}

// DeviceBuffer is host visible memory; Write copies straight into the mapping.
type DeviceBuffer interface {
	Handle() Buffer
	Size() uint64
	Write(offset uint64, data []byte) error
	Destroy()
}

type DeviceImage interface {
	Handle() Image
	View() ImageView
	// Upload replaces the contents of a single sample colour image with tightly
	// packed pixels and leaves it in shader read layout.
	Upload(pixels []byte) error
	Destroy()
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of one set. Exactly one of Buffer or Image is set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffer  *DescriptorBufferInfo
	Image   *DescriptorImageInfo
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

type ShaderStageDesc struct {
	Stage  ShaderStageFlags
	Module ShaderModule
	Entry  string
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
	Rate    VertexInputRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type DepthBias struct {
	ConstantFactor float32
	Clamp          float32
	SlopeFactor    float32
}

type BlendState struct {
	Enable   bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
}

type ColorTargetDesc struct {
	Format Format
	Blend  BlendState
	// RGBA bits, 0xF writes every channel.
	WriteMask uint32
}

type GraphicsPipelineDesc struct {
	Label            string
	Layout           PipelineLayout
	Stages           []ShaderStageDesc
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         PrimitiveTopology
	CullMode         FaceCullMode
	PolygonMode      PolygonMode
	FrontFace        FrontFace
	LineWidth        float32
	DepthBias        *DepthBias
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	ColorTargets     []ColorTargetDesc
	DepthFormat      Format
	Samples          SampleCount
	// Every colour target is resolved into a single sampled image.
	Resolve bool
}

type ComputePipelineDesc struct {
	Label  string
	Layout PipelineLayout
	Module ShaderModule
	Entry  string
}

type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     PipelineStageFlags
}

type SubmitInfo struct {
	Commands []CommandList
	Wait     []SemaphoreWait
	Signal   []Semaphore
	Fence    Fence
}

type DeviceLimits struct {
	// Bit mask of the colour and depth sample counts supported together.
	SampleCounts SampleCount
	// Nanoseconds per timestamp tick.
	TimestampPeriod                 float32
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
}

// Device is everything the renderer needs from a graphics API.
type Device interface {
	CreateBuffer(desc BufferDesc) (DeviceBuffer, error)
	CreateImage(desc ImageDesc) (DeviceImage, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	AllocateDescriptorSets(pool DescriptorPool, layout DescriptorSetLayout, count uint32) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc *ComputePipelineDesc) (Pipeline, error)
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	WaitFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
	AllocateCommandList(queue QueueKind) (CommandList, error)
	Submit(queue QueueKind, info SubmitInfo) error
	WaitIdle() error
	Limits() DeviceLimits
	// Destroy releases any handle returned by the Create and Allocate calls.
	Destroy(obj interface{})
}

type ImageBarrier struct {
	Image     Image
	Depth     bool
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStageFlags
	DstStage  PipelineStageFlags
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

type BufferBarrier struct {
	Buffer    Buffer
	Offset    uint64
	Size      uint64
	SrcStage  PipelineStageFlags
	DstStage  PipelineStageFlags
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

type ColorAttachment struct {
	View    ImageView
	Format  Format
	Samples SampleCount
	Load    LoadOp
	Clear   [4]float32
	// Optional single sample target the attachment resolves into.
	Resolve ImageView
}

type DepthAttachment struct {
	View       ImageView
	Format     Format
	Samples    SampleCount
	Load       LoadOp
	ClearDepth float32
}

// PassDesc starts a render pass. Every attachment, resolve targets included, must be
// in attachment layout when the pass begins and is left in it at EndPass.
type PassDesc struct {
	Label  string
	Color  []ColorAttachment
	Depth  *DepthAttachment
	Width  uint32
	Height uint32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// CommandList records work for one queue. It is only touched by the frame goroutine.
type CommandList interface {
	Begin() error
	End() error
	Reset() error
	ImageBarrier(b ImageBarrier)
	BufferBarrier(b BufferBarrier)
	BeginPass(desc *PassDesc)
	EndPass()
	SetViewport(v Viewport)
	SetScissor(x, y int32, width, height uint32)
	BindPipeline(point PipelineBindPoint, pipeline Pipeline)
	BindDescriptorSets(point PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStageFlags, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	FillBuffer(buffer Buffer, offset, size uint64, value uint32)
	BeginTimer(name string)
	EndTimer(name string)
	// Timings reports the timers of the last completed execution.
	Timings() map[string]time.Duration
}

// Presenter copies a finished image to the window. The image is in shader read
// layout and is returned to it. Implemented by the swapchain.
type Presenter interface {
	Present(image DeviceImage, width, height uint32) error
	Resize(width, height uint32) error
}
