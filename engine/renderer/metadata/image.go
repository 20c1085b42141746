package metadata

/**
 * @brief How an operation is about to use an image. Each access implies one
 * image layout, access mask and pipeline stage.
 */
type ImageAccess uint8

const (
	/** @brief Contents are undefined and may be discarded. */
	ImageAccessUndefined ImageAccess = iota
	ImageAccessColorAttachmentWrite
	ImageAccessDepthAttachmentWrite
	ImageAccessDepthRead
	/** @brief Sampled by a fragment shader. */
	ImageAccessShaderRead
	/** @brief Sampled by a vertex shader. */
	ImageAccessVertexShaderRead
	ImageAccessStorageReadWrite
	ImageAccessTransferSrc
	ImageAccessTransferDst
	ImageAccessPresent
)

func (a ImageAccess) String() string {
	switch a {
	case ImageAccessUndefined:
		return "undefined"
	case ImageAccessColorAttachmentWrite:
		return "color_attachment_write"
	case ImageAccessDepthAttachmentWrite:
		return "depth_attachment_write"
	case ImageAccessDepthRead:
		return "depth_read"
	case ImageAccessShaderRead:
		return "shader_read"
	case ImageAccessVertexShaderRead:
		return "vertex_shader_read"
	case ImageAccessStorageReadWrite:
		return "storage_read_write"
	case ImageAccessTransferSrc:
		return "transfer_src"
	case ImageAccessTransferDst:
		return "transfer_dst"
	case ImageAccessPresent:
		return "present"
	}
	return "unknown"
}
