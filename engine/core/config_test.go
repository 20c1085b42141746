package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[renderer]
rotation_depth = 3
fence_timeout = "250ms"
trace = true

[logging]
level = "debug"
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Renderer.RotationDepth != 3 {
		t.Errorf("RotationDepth = %d, want 3", cfg.Renderer.RotationDepth)
	}
	if cfg.Renderer.FenceTimeout.Duration != 250*time.Millisecond {
		t.Errorf("FenceTimeout = %s, want 250ms", cfg.Renderer.FenceTimeout.Duration)
	}
	if !cfg.Renderer.Trace {
		t.Error("Trace = false, want true")
	}
	// untouched keys keep their defaults
	if cfg.Renderer.FenceRetries != 10 {
		t.Errorf("FenceRetries = %d, want default 10", cfg.Renderer.FenceRetries)
	}
	if cfg.Shaders.Dir != "assets/shaders" {
		t.Errorf("Shaders.Dir = %q", cfg.Shaders.Dir)
	}
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"rotation too deep", "[renderer]\nrotation_depth = 4\n"},
		{"rotation zero", "[renderer]\nrotation_depth = 0\n"},
		{"no retries", "[renderer]\nfence_retries = 0\n"},
		{"bad duration", "[renderer]\nfence_timeout = \"soon\"\n"},
		{"bad toml", "[renderer\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.data)); err == nil {
				t.Error("ParseConfig() error = nil, want error")
			}
		})
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Renderer.RotationDepth != DefaultConfig().Renderer.RotationDepth {
		t.Error("LoadConfig() did not return defaults")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkbridge.toml")
	if err := os.WriteFile(path, []byte("[window]\ntitle = \"demo\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Window.Title != "demo" {
		t.Errorf("Window.Title = %q, want demo", cfg.Window.Title)
	}
}
