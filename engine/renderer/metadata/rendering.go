package metadata

// The enums below share their numeric values with the Vulkan API so a backend
// can convert them with a plain type conversion.

// FramesInFlight is the depth of the CPU/GPU frame pipeline.
const FramesInFlight = 3

/** @brief Determines face culling mode during rendering. */
type FaceCullMode uint32

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

type PolygonMode uint32

const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

type PrimitiveTopology uint32

const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyLineStrip     PrimitiveTopology = 2
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type CompareOp uint32

const (
	CompareOpNever          CompareOp = 0
	CompareOpLess           CompareOp = 1
	CompareOpEqual          CompareOp = 2
	CompareOpLessOrEqual    CompareOp = 3
	CompareOpGreater        CompareOp = 4
	CompareOpNotEqual       CompareOp = 5
	CompareOpGreaterOrEqual CompareOp = 6
	CompareOpAlways         CompareOp = 7
)

type BlendFactor uint32

const (
	BlendFactorZero             BlendFactor = 0
	BlendFactorOne              BlendFactor = 1
	BlendFactorSrcColor         BlendFactor = 2
	BlendFactorOneMinusSrcColor BlendFactor = 3
	BlendFactorDstColor         BlendFactor = 4
	BlendFactorOneMinusDstColor BlendFactor = 5
	BlendFactorSrcAlpha         BlendFactor = 6
	BlendFactorOneMinusSrcAlpha BlendFactor = 7
)

type BlendOp uint32

const (
	BlendOpAdd             BlendOp = 0
	BlendOpSubtract        BlendOp = 1
	BlendOpReverseSubtract BlendOp = 2
	BlendOpMin             BlendOp = 3
	BlendOpMax             BlendOp = 4
)

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Uint            Format = 98
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
)

func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

// BytesPerPixel covers the colour formats the renderer allocates.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatR32Uint, FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatR16G16B16A16Sfloat, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	default:
		return 0
	}
}

type VertexInputRate uint32

const (
	VertexInputRateVertex   VertexInputRate = 0
	VertexInputRateInstance VertexInputRate = 1
)

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	default:
		return "unknown"
	}
}

func (t DescriptorType) IsImage() bool {
	return t == DescriptorTypeCombinedImageSampler || t == DescriptorTypeSampledImage || t == DescriptorTypeStorageImage
}

/** @brief Shader stages available in the system, as a bit mask. */
type ShaderStageFlags uint32

const (
	ShaderStageVertex   ShaderStageFlags = 0x00000001
	ShaderStageFragment ShaderStageFlags = 0x00000010
	ShaderStageCompute  ShaderStageFlags = 0x00000020
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x001
	BufferUsageTransferDst BufferUsage = 0x002
	BufferUsageUniform     BufferUsage = 0x010
	BufferUsageStorage     BufferUsage = 0x020
	BufferUsageIndex       BufferUsage = 0x040
	BufferUsageVertex      BufferUsage = 0x080
	BufferUsageIndirect    BufferUsage = 0x100
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x01
	ImageUsageTransferDst            ImageUsage = 0x02
	ImageUsageSampled                ImageUsage = 0x04
	ImageUsageStorage                ImageUsage = 0x08
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

type ImageLayout uint32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe             PipelineStageFlags = 0x00001
	PipelineStageDrawIndirect          PipelineStageFlags = 0x00002
	PipelineStageVertexInput           PipelineStageFlags = 0x00004
	PipelineStageVertexShader          PipelineStageFlags = 0x00008
	PipelineStageFragmentShader        PipelineStageFlags = 0x00080
	PipelineStageEarlyFragmentTests    PipelineStageFlags = 0x00100
	PipelineStageLateFragmentTests     PipelineStageFlags = 0x00200
	PipelineStageColorAttachmentOutput PipelineStageFlags = 0x00400
	PipelineStageComputeShader         PipelineStageFlags = 0x00800
	PipelineStageTransfer              PipelineStageFlags = 0x01000
	PipelineStageBottomOfPipe          PipelineStageFlags = 0x02000
	PipelineStageAllCommands           PipelineStageFlags = 0x10000
)

type AccessFlags uint32

const (
	AccessNone                        AccessFlags = 0
	AccessIndirectCommandRead         AccessFlags = 0x00001
	AccessVertexAttributeRead         AccessFlags = 0x00004
	AccessUniformRead                 AccessFlags = 0x00008
	AccessShaderRead                  AccessFlags = 0x00020
	AccessShaderWrite                 AccessFlags = 0x00040
	AccessColorAttachmentRead         AccessFlags = 0x00080
	AccessColorAttachmentWrite        AccessFlags = 0x00100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00400
	AccessTransferRead                AccessFlags = 0x00800
	AccessTransferWrite               AccessFlags = 0x01000
	AccessHostWrite                   AccessFlags = 0x04000
)

type SampleCount uint32

const (
	SampleCount1  SampleCount = 0x01
	SampleCount2  SampleCount = 0x02
	SampleCount4  SampleCount = 0x04
	SampleCount8  SampleCount = 0x08
	SampleCount16 SampleCount = 0x10
	SampleCount32 SampleCount = 0x20
	SampleCount64 SampleCount = 0x40
)

// HighestSampleCount picks the largest single bit of a supported-counts mask.
func HighestSampleCount(mask SampleCount) SampleCount {
	for c := SampleCount64; c > SampleCount1; c >>= 1 {
		if mask&c != 0 {
			return c
		}
	}
	return SampleCount1
}

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type PipelineBindPoint uint32

const (
	PipelineBindPointGraphics PipelineBindPoint = 0
	PipelineBindPointCompute  PipelineBindPoint = 1
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueueTransfer
)

func (q QueueKind) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	default:
		return "transfer"
	}
}
