package metadata

import (
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

/** @brief Index of a finalized shader in the backend. */
type ShaderID uint32

/** @brief Index of a render target in the backend. */
type RenderTargetID uint32

/**
 * @brief The types of clearing to be done when a render target begins.
 * Can be combined together for multiple clearing functions.
 */
type RenderpassClearFlag uint32

const (
	/** @brief No clearing should be done. */
	RENDERPASS_CLEAR_NONE_FLAG RenderpassClearFlag = 0x0
	/** @brief Clear the colour buffer. */
	RENDERPASS_CLEAR_COLOUR_BUFFER_FLAG RenderpassClearFlag = 0x1
	/** @brief Clear the depth buffer. */
	RENDERPASS_CLEAR_DEPTH_BUFFER_FLAG RenderpassClearFlag = 0x2
)

/** @brief Describes the attachments of a render target. */
type RenderTargetConfig struct {
	Name   string
	Colors []*Texture
	Depth  *Texture
	/** @brief The first colour attachment is presented after the frame. */
	PresentAfter bool
	ClearFlags   RenderpassClearFlag
	ClearColour  [4]float32
	ClearDepth   float32
}

/** @brief A range of a device buffer bound to a buffer resource. A zero Size binds to the end. */
type BufferRange struct {
	Buffer driver.Buffer
	Offset uint64
	Size   uint64
}

/** @brief A vertex or instance buffer and the layout of its contents. */
type VertexBuffer struct {
	Buffer driver.Buffer
	Offset uint64
	Format VertexFormat
}

type IndexBuffer struct {
	Buffer driver.Buffer
	Offset uint64
	Type   driver.IndexType
}
