package renderer

import (
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// Backend is the state-based drawing API every graphics backend offers.
// Frontends depend on it only.
type Backend interface {
	CreateShader(config metadata.ShaderConfig) (metadata.ShaderID, error)
	ReplaceShader(id metadata.ShaderID, config metadata.ShaderConfig) error
	DestroyShader(id metadata.ShaderID) error
	ShaderLocation(id metadata.ShaderID, name string) metadata.ShaderResourceLocation

	RegisterTexture(texture *metadata.Texture, layout driver.ImageLayout)
	ReleaseTexture(texture *metadata.Texture)
	PrepareTexture(texture *metadata.Texture) error
	CreateRenderTarget(config metadata.RenderTargetConfig) (metadata.RenderTargetID, error)
	DestroyRenderTarget(id metadata.RenderTargetID) error

	BindShader(id metadata.ShaderID) error
	BindBuffer(kind metadata.ResourceKind, location metadata.ShaderResourceLocation, buffer metadata.BufferRange) error
	BindTexture(location metadata.ShaderResourceLocation, texture *metadata.Texture, sampler driver.SamplerDesc) error
	BindSampler(location metadata.ShaderResourceLocation, sampler driver.SamplerDesc) error
	BindInlineUniform(location metadata.ShaderResourceLocation, data []byte) error
	SetPushConstant(name string, data []byte) error
	BindVertexBuffers(buffers ...metadata.VertexBuffer)
	BindIndexBuffer(buffer metadata.IndexBuffer)
	SetState(state driver.FixedFunctionState)
	SetTopology(topology driver.PrimitiveTopology)

	BeginFrame() error
	BeginRenderTarget(id metadata.RenderTargetID) error
	FrameTarget() (metadata.RenderTargetID, bool)
	Draw(firstVertex, vertexCount, firstInstance, instanceCount uint32) error
	DrawIndexed(firstIndex, indexCount uint32, vertexOffset int32, firstInstance, instanceCount uint32) error
	SubmitFrame() error

	PushDebugLabel(label string)
	PopDebugLabel()
	Statistics() core.FrameStatistics
	Events() *core.EventBus

	Shutdown() error
}
