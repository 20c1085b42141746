package core

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	MinRotationDepth = 1
	MaxRotationDepth = 3
)

// Duration decodes TOML strings such as "100ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration `%s`", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type RendererConfig struct {
	// Number of descriptor sets per layout that may be live at once.
	RotationDepth int `toml:"rotation_depth"`
	// How long a single fence wait may block before it is retried.
	FenceTimeout Duration `toml:"fence_timeout"`
	// Timed out fence waits tolerated before the device is considered hung.
	FenceRetries int  `toml:"fence_retries"`
	DebugLabels  bool `toml:"debug_labels"`
	Trace        bool `toml:"trace"`
	Validation   bool `toml:"validation"`
	MaxPipelines int  `toml:"max_pipelines"`
	// Skip the queue idle wait after each submission and rely on fences and
	// serials to recycle resources.
	PipelinedSubmission bool `toml:"pipelined_submission"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Prefix string `toml:"prefix"`
}

type ShaderConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	VSync  bool   `toml:"vsync"`
}

type Config struct {
	Renderer RendererConfig `toml:"renderer"`
	Logging  LoggingConfig  `toml:"logging"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Window   WindowConfig   `toml:"window"`
}

func DefaultConfig() *Config {
	return &Config{
		Renderer: RendererConfig{
			RotationDepth: 2,
			FenceTimeout:  Duration{100 * time.Millisecond},
			FenceRetries:  10,
			DebugLabels:   true,
			MaxPipelines:  256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Shaders: ShaderConfig{
			Dir:   "assets/shaders",
			Watch: true,
		},
		Window: WindowConfig{
			Title:  "vkbridge",
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
	}
}

// ParseConfig decodes TOML on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			LogInfo("configuration file `%s` not found, using defaults", path)
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to read configuration `%s`", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration `%s`", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	r := c.Renderer
	if r.RotationDepth < MinRotationDepth || r.RotationDepth > MaxRotationDepth {
		return errors.Newf("renderer.rotation_depth must be between %d and %d, got %d", MinRotationDepth, MaxRotationDepth, r.RotationDepth)
	}
	if r.FenceRetries <= 0 {
		return errors.Newf("renderer.fence_retries must be positive, got %d", r.FenceRetries)
	}
	if r.FenceTimeout.Duration <= 0 {
		return errors.Newf("renderer.fence_timeout must be positive, got %s", r.FenceTimeout.Duration)
	}
	if r.MaxPipelines <= 0 {
		return errors.Newf("renderer.max_pipelines must be positive, got %d", r.MaxPipelines)
	}
	return nil
}
