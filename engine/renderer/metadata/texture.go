package metadata

import (
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

type TextureFlag int

const (
	/** @brief Indicates if the texture can be written (rendered) to. */
	TextureFlagIsWriteable TextureFlag = 0x2
	/** @brief Indicates if the texture was created via wrapping vs traditional creation (swapchain images). */
	TextureFlagIsWrapped TextureFlag = 0x4
	/** @brief Indicates the texture is a depth target. */
	TextureFlagDepth TextureFlag = 0x8
)

/**
 * @brief Represents a texture whose pixels were uploaded by the frontend. The
 * adaptation layer only needs its device handles and its layout record.
 */
type Texture struct {
	/** @brief The unique texture identifier. */
	ID uint32
	/** @brief The texture Name. */
	Name   string
	Image  driver.Image
	View   driver.ImageView
	Format driver.Format
	Extent driver.Extent2D
	Flags  TextureFlag
	/** @brief Index of the image's layout record in the device context. */
	LayoutRecord uint32
}

func (t *Texture) IsDepth() bool {
	return t.Flags&TextureFlagDepth != 0
}

// DefaultSampler filters linearly and repeats. Identical descriptions share
// one device sampler.
func DefaultSampler() driver.SamplerDesc {
	return driver.SamplerDesc{
		MagFilter:     driver.FilterLinear,
		MinFilter:     driver.FilterLinear,
		AddressU:      driver.AddressModeRepeat,
		AddressV:      driver.AddressModeRepeat,
		AddressW:      driver.AddressModeRepeat,
		MaxAnisotropy: 1,
	}
}
