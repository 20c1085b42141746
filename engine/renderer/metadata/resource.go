package metadata

import "path/filepath"

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Not an asset the engine loads. */
	ResourceTypeNone ResourceType = iota
	/** @brief TOML reflection descriptor naming precompiled stage binaries (.shadercfg). */
	ResourceTypeShader
	/** @brief WGSL source holding every stage of a shader (.wgsl). */
	ResourceTypeShaderSource
	/** @brief A compiled SPIR-V stage binary (.spv). */
	ResourceTypeBinary
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeShaderSource:
		return "shader_source"
	case ResourceTypeBinary:
		return "binary"
	}
	return "none"
}

// ResourceTypeOf classifies an asset by its extension.
func ResourceTypeOf(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".shadercfg":
		return ResourceTypeShader
	case ".wgsl":
		return ResourceTypeShaderSource
	case ".spv":
		return ResourceTypeBinary
	}
	return ResourceTypeNone
}

/** @brief The magic number opening every SPIR-V module, little endian. */
const SPIRVMagic uint32 = 0x07230203

/**
 * @brief A shader loaded from disk together with every file it was built from.
 */
type ShaderResource struct {
	/** @brief The name of the resource, the file name without extension. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief Files whose modification requires a rebuild, FullPath included. */
	Dependencies []string
	Config       ShaderConfig
}
