package driver

// Handles are opaque non-zero values owned by the Device that created them.
// The zero value of each handle type is the null handle.
type (
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	PipelineLayout      uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	Pipeline            uint64
	RenderPass          uint64
	Framebuffer         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
)

// The enumerations below share their numeric values with Vulkan so the
// Vulkan driver can convert them with a plain cast.

type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageFragment ShaderStage = 0x00000010
	ShaderStageCompute  ShaderStage = 0x00000020

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	case ShaderStageAllGraphics:
		return "vertex|fragment"
	}
	return "stages"
}

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
)

func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorTypeUniformBuffer || t == DescriptorTypeStorageBuffer
}

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32Uint            Format = 98
	FormatR32Sint            Format = 99
	FormatR32Sfloat          Format = 100
	FormatR32G32Uint         Format = 101
	FormatR32G32Sint         Format = 102
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Uint      Format = 104
	FormatR32G32B32Sint      Format = 105
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Uint   Format = 107
	FormatR32G32B32A32Sint   Format = 108
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

func (f Format) HasDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

type PrimitiveTopology uint32

const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyLineStrip     PrimitiveTopology = 2
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
	TopologyTriangleFan   PrimitiveTopology = 5
)

// IsList reports whether primitive restart is illegal for the topology.
func (t PrimitiveTopology) IsList() bool {
	return t == TopologyPointList || t == TopologyLineList || t == TopologyTriangleList
}

func (t PrimitiveTopology) String() string {
	switch t {
	case TopologyPointList:
		return "point_list"
	case TopologyLineList:
		return "line_list"
	case TopologyLineStrip:
		return "line_strip"
	case TopologyTriangleList:
		return "triangle_list"
	case TopologyTriangleStrip:
		return "triangle_strip"
	case TopologyTriangleFan:
		return "triangle_fan"
	}
	return "unknown"
}

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

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutGeneral:
		return "general"
	case ImageLayoutColorAttachmentOptimal:
		return "color_attachment"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "depth_stencil_attachment"
	case ImageLayoutDepthStencilReadOnlyOptimal:
		return "depth_stencil_read_only"
	case ImageLayoutShaderReadOnlyOptimal:
		return "shader_read_only"
	case ImageLayoutTransferSrcOptimal:
		return "transfer_src"
	case ImageLayoutTransferDstOptimal:
		return "transfer_dst"
	case ImageLayoutPresentSrc:
		return "present_src"
	}
	return "unknown"
}

type AccessFlags uint32

const (
	AccessNone                        AccessFlags = 0
	AccessIndexRead                   AccessFlags = 0x00000002
	AccessVertexAttributeRead         AccessFlags = 0x00000004
	AccessUniformRead                 AccessFlags = 0x00000008
	AccessShaderRead                  AccessFlags = 0x00000020
	AccessShaderWrite                 AccessFlags = 0x00000040
	AccessColorAttachmentRead         AccessFlags = 0x00000080
	AccessColorAttachmentWrite        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00000200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00000400
	AccessTransferRead                AccessFlags = 0x00000800
	AccessTransferWrite               AccessFlags = 0x00001000
	AccessHostWrite                   AccessFlags = 0x00004000
	AccessMemoryRead                  AccessFlags = 0x00008000
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x00000001
	PipelineStageVertexInput           PipelineStage = 0x00000004
	PipelineStageVertexShader          PipelineStage = 0x00000008
	PipelineStageFragmentShader        PipelineStage = 0x00000080
	PipelineStageEarlyFragmentTests    PipelineStage = 0x00000100
	PipelineStageLateFragmentTests     PipelineStage = 0x00000200
	PipelineStageColorAttachmentOutput PipelineStage = 0x00000400
	PipelineStageComputeShader         PipelineStage = 0x00000800
	PipelineStageTransfer              PipelineStage = 0x00001000
	PipelineStageBottomOfPipe          PipelineStage = 0x00002000
	PipelineStageHost                  PipelineStage = 0x00004000
	PipelineStageAllCommands           PipelineStage = 0x00010000
)

type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type VertexInputRate uint32

const (
	VertexInputRateVertex   VertexInputRate = 0
	VertexInputRateInstance VertexInputRate = 1
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x00000001
	BufferUsageTransferDst BufferUsage = 0x00000002
	BufferUsageUniform     BufferUsage = 0x00000010
	BufferUsageStorage     BufferUsage = 0x00000020
	BufferUsageIndex       BufferUsage = 0x00000040
	BufferUsageVertex      BufferUsage = 0x00000080
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x00000001
	ImageUsageTransferDst     ImageUsage = 0x00000002
	ImageUsageSampled         ImageUsage = 0x00000004
	ImageUsageStorage         ImageUsage = 0x00000008
	ImageUsageColorAttachment ImageUsage = 0x00000010
	ImageUsageDepthAttachment ImageUsage = 0x00000020
)

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type AddressMode uint32

const (
	AddressModeRepeat         AddressMode = 0
	AddressModeMirroredRepeat AddressMode = 1
	AddressModeClampToEdge    AddressMode = 2
	AddressModeClampToBorder  AddressMode = 3
)

type AttachmentLoadOp uint32

const (
	LoadOpLoad     AttachmentLoadOp = 0
	LoadOpClear    AttachmentLoadOp = 1
	LoadOpDontCare AttachmentLoadOp = 2
)

type AttachmentStoreOp uint32

const (
	StoreOpStore    AttachmentStoreOp = 0
	StoreOpDontCare AttachmentStoreOp = 1
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Limits are the device properties the adaptation layer validates against.
type Limits struct {
	MaxPushConstantsSize            uint32
	MaxBoundDescriptorSets          uint32
	MaxVertexInputAttributes        uint32
	MaxVertexInputBindings          uint32
	MinUniformBufferOffsetAlignment uint64
	MaxSamplerAnisotropy            float32
}

// DefaultLimits are the minimums every conforming device guarantees.
func DefaultLimits() Limits {
	return Limits{
		MaxPushConstantsSize:            128,
		MaxBoundDescriptorSets:          4,
		MaxVertexInputAttributes:        16,
		MaxVertexInputBindings:          16,
		MinUniformBufferOffsetAlignment: 256,
		MaxSamplerAnisotropy:            1,
	}
}
