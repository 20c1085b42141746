// Package driver describes the explicit graphics device the adaptation layer
// records into. A single implementation is selected at startup; everything
// above this package depends only on these interfaces.
package driver

import "time"

// ResourceAllocator creates and destroys memory backed objects.
type ResourceAllocator interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	DestroyBuffer(buf Buffer)

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(s Sampler)
}

// BindingFactory creates the binding table objects of shaders.
type BindingFactory interface {
	CreateShaderModule(desc ShaderModuleDesc) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)

	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	ResetDescriptorPool(p DescriptorPool) error
	DestroyDescriptorPool(p DescriptorPool)
	// AllocateDescriptorSet fails with ErrOutOfPoolMemory or ErrFragmentedPool
	// when the pool cannot serve the request.
	AllocateDescriptorSet(p DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
}

// PipelineFactory builds pipeline state objects and the render passes they are
// compatible with.
type PipelineFactory interface {
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
}

// Queue owns submission and CPU/GPU synchronization.
type Queue interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitFence blocks up to timeout. It returns false without error on timeout.
	WaitFence(f Fence, timeout time.Duration) (bool, error)
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	Submit(info SubmitInfo) error
	QueueWaitIdle() error
	WaitIdle() error
}

// CommandEncoder records into command buffers.
type CommandEncoder interface {
	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, buf Buffer, offset uint64, indexType IndexType)
	CmdSetViewport(cb CommandBuffer, vp Viewport)
	CmdSetScissor(cb CommandBuffer, rect Rect2D)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdPipelineBarrier(cb CommandBuffer, src, dst PipelineStage, barriers []ImageBarrier)
	CmdBeginLabel(cb CommandBuffer, label string, color [4]float32)
	CmdEndLabel(cb CommandBuffer)
}

// Device is the capability set of one logical device.
type Device interface {
	ResourceAllocator
	BindingFactory
	PipelineFactory
	Queue
	CommandEncoder

	Name() string
	Limits() Limits
	Destroy()
}
