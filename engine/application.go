package engine

type ApplicationConfig struct {
	// The application name used in windowing and as the Vulkan application name.
	Name string
	// Path of the TOML configuration. A missing file yields the defaults.
	ConfigPath string
	// The maximum number of shaders the shader system holds.
	MaxShaderCount uint16
}
