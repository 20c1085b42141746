package metadata

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

/**
 * @brief Represents the current state of a given shader.
 */
type ShaderState int

const (
	/** @brief The shader has not yet gone through the creation process, and is unusable.*/
	SHADER_STATE_NOT_CREATED ShaderState = iota
	/** @brief The shader reflection has been collected but the device objects do not exist yet.*/
	SHADER_STATE_UNINITIALIZED
	/** @brief The shader is finalized and ready for use.*/
	SHADER_STATE_INITIALIZED
	/** @brief The shader was destroyed; its device objects wait for in-flight work to complete.*/
	SHADER_STATE_DESTROYED
)

/**
 * @brief The kind of a reflected shader resource.
 */
type ResourceKind uint8

const (
	ResourceKindUniformBuffer ResourceKind = iota
	ResourceKindStorageBuffer
	/** @brief An image and its sampler bound together (combined image sampler). */
	ResourceKindSampledImage
	ResourceKindStorageImage
	/** @brief An image sampled through a separate sampler resource. */
	ResourceKindTexture
	ResourceKindSampler
	/**
	 * @brief A small uniform block packed into push constant storage. It never
	 * occupies a descriptor binding.
	 */
	ResourceKindInlineUniform
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindUniformBuffer:
		return "uniform_buffer"
	case ResourceKindStorageBuffer:
		return "storage_buffer"
	case ResourceKindSampledImage:
		return "sampled_image"
	case ResourceKindStorageImage:
		return "storage_image"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	case ResourceKindInlineUniform:
		return "inline_uniform"
	}
	return fmt.Sprintf("resource_kind(%d)", uint8(k))
}

// ResourceKindFromString parses the names used by reflection descriptors.
func ResourceKindFromString(s string) (ResourceKind, error) {
	switch s {
	case "uniform_buffer", "uniform":
		return ResourceKindUniformBuffer, nil
	case "storage_buffer", "storage":
		return ResourceKindStorageBuffer, nil
	case "sampled_image", "sampler2d", "combined_image_sampler":
		return ResourceKindSampledImage, nil
	case "storage_image":
		return ResourceKindStorageImage, nil
	case "texture":
		return ResourceKindTexture, nil
	case "sampler":
		return ResourceKindSampler, nil
	case "inline_uniform", "inline":
		return ResourceKindInlineUniform, nil
	}
	return 0, errors.Newf("string %s is not a valid resource kind", s)
}

// DescriptorType returns the device descriptor type backing the kind. Inline
// uniforms have none.
func (k ResourceKind) DescriptorType() (driver.DescriptorType, bool) {
	switch k {
	case ResourceKindUniformBuffer:
		return driver.DescriptorTypeUniformBuffer, true
	case ResourceKindStorageBuffer:
		return driver.DescriptorTypeStorageBuffer, true
	case ResourceKindSampledImage:
		return driver.DescriptorTypeCombinedImageSampler, true
	case ResourceKindStorageImage:
		return driver.DescriptorTypeStorageImage, true
	case ResourceKindTexture:
		return driver.DescriptorTypeSampledImage, true
	case ResourceKindSampler:
		return driver.DescriptorTypeSampler, true
	}
	return 0, false
}

func (k ResourceKind) IsBuffer() bool {
	return k == ResourceKindUniformBuffer || k == ResourceKindStorageBuffer
}

func (k ResourceKind) IsImage() bool {
	return k == ResourceKindSampledImage || k == ResourceKindStorageImage || k == ResourceKindTexture
}

/**
 * @brief Opaque location of a named shader resource: descriptor set index in
 * the high half, binding index in the low half. Inline uniform locations carry
 * the inline flag and index the shader's inline block table instead.
 */
type ShaderResourceLocation uint32

const (
	/** @brief Returned by lookups of names the shader does not declare. */
	InvalidLocation ShaderResourceLocation = 0xFFFFFFFF

	locationInlineFlag  ShaderResourceLocation = 0x80000000
	locationSetShift                           = 16
	locationBindingMask ShaderResourceLocation = 0xFFFF

	MaxDescriptorSets uint32 = 0x7FFF
	MaxBindings       uint32 = 0xFFFF
)

func NewResourceLocation(set, binding uint32) ShaderResourceLocation {
	return ShaderResourceLocation(set&MaxDescriptorSets)<<locationSetShift | ShaderResourceLocation(binding)&locationBindingMask
}

func NewInlineLocation(index uint32) ShaderResourceLocation {
	return locationInlineFlag | ShaderResourceLocation(index)&locationBindingMask
}

func (l ShaderResourceLocation) Valid() bool {
	return l != InvalidLocation
}

func (l ShaderResourceLocation) IsInline() bool {
	return l != InvalidLocation && l&locationInlineFlag != 0
}

func (l ShaderResourceLocation) Set() uint32 {
	return uint32(l&^locationInlineFlag) >> locationSetShift
}

func (l ShaderResourceLocation) Binding() uint32 {
	return uint32(l & locationBindingMask)
}

// InlineIndex is only meaningful for inline locations.
func (l ShaderResourceLocation) InlineIndex() uint32 {
	return uint32(l & locationBindingMask)
}

func (l ShaderResourceLocation) String() string {
	switch {
	case l == InvalidLocation:
		return "invalid"
	case l.IsInline():
		return fmt.Sprintf("inline(%d)", l.InlineIndex())
	}
	return fmt.Sprintf("set=%d binding=%d", l.Set(), l.Binding())
}

/**
 * @brief A stage input (vertex attribute for the vertex stage).
 */
type StageInput struct {
	Name     string
	Location uint32
	Type     AttributeType
}

/**
 * @brief A resource declared by one stage.
 */
type StageResource struct {
	Name string
	Kind ResourceKind
	Set  uint32
	/** @brief Binding index. Ignored for inline uniforms. */
	Binding uint32
	/** @brief Number of array elements, 1 for non arrays. */
	ArrayCount uint32
	/** @brief Size in bytes of buffer blocks and inline uniforms, 0 for images. */
	Size uint32
	/** @brief Offset inside push constant storage, inline uniforms only. */
	Offset uint32
}

/**
 * @brief A push constant block member. Offsets come from the reflected struct layout.
 */
type PushConstantMember struct {
	Name   string
	Offset uint32
	Size   uint32
}

/**
 * @brief Everything the shader compilation stage reports for one stage.
 */
type StageReflection struct {
	Stage driver.ShaderStage
	/** @brief Entry point name, "main" when empty. */
	Entry string
	/** @brief The compiled stage binary, opaque to this layer. */
	Code          []byte
	Inputs        []StageInput
	Resources     []StageResource
	PushConstants []PushConstantMember
}

func (s StageReflection) EntryPoint() string {
	if s.Entry == "" {
		return "main"
	}
	return s.Entry
}

/**
 * @brief Configuration used to create a shader.
 */
type ShaderConfig struct {
	Name   string
	Stages []StageReflection
}
