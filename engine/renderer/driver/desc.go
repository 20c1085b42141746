package driver

type BufferDesc struct {
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers can be written with Device.WriteBuffer.
	HostVisible bool
}

type ImageDesc struct {
	Format  Format
	Extent  Extent2D
	Usage   ImageUsage
	Samples uint32
}

type ImageViewDesc struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

// SamplerDesc is comparable so it can key a sampler cache.
type SamplerDesc struct {
	MagFilter     Filter
	MinFilter     Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MaxAnisotropy float32
	Compare       bool
	CompareOp     CompareOp
}

type ShaderModuleDesc struct {
	Name string
	Code []byte
}

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	// Count 0 declares an inert placeholder binding.
	Count  uint32
	Stages ShaderStage
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolDesc struct {
	MaxSets uint32
	Sizes   []PoolSize
}

type BufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of a set. Buffer types use Buffers,
// image and sampler types use Images.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []BufferInfo
	Images       []ImageInfo
}

type VertexBindingDesc struct {
	Binding   uint32
	Stride    uint32
	InputRate VertexInputRate
}

type VertexAttributeDesc struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type ShaderStageDesc struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

type GraphicsPipelineDesc struct {
	Name       string
	Stages     []ShaderStageDesc
	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    uint32
	Topology   PrimitiveTopology
	Bindings   []VertexBindingDesc
	Attributes []VertexAttributeDesc
	State      FixedFunctionState
	// Number of color attachments the blend state is replicated for.
	ColorAttachments uint32
	Samples          uint32
}

type AttachmentDesc struct {
	Format  Format
	Samples uint32
	Load    AttachmentLoadOp
	Store   AttachmentStoreOp
	Initial ImageLayout
	Final   ImageLayout
}

type RenderPassDesc struct {
	Colors []AttachmentDesc
	Depth  *AttachmentDesc
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type RenderPassBeginInfo struct {
	RenderPass   RenderPass
	Framebuffer  Framebuffer
	Area         Rect2D
	ClearColors  [][4]float32
	ClearDepth   float32
	ClearStencil uint32
}

type ImageBarrier struct {
	Image      Image
	OldLayout  ImageLayout
	NewLayout  ImageLayout
	SrcAccess  AccessFlags
	DstAccess  AccessFlags
	Aspect     ImageAspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

type SubmitInfo struct {
	CommandBuffer    CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
	Fence            Fence
}
