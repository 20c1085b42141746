package systems

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func init() {
	core.SetLogOutput(io.Discard)
}

type fakeSource struct {
	configs map[string]metadata.ShaderConfig
	fail    map[string]error
	loads   map[string]int
	reloads chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		configs: make(map[string]metadata.ShaderConfig),
		fail:    make(map[string]error),
		loads:   make(map[string]int),
		reloads: make(chan string, 8),
	}
}

func (s *fakeSource) LoadShader(name string) (*metadata.ShaderResource, error) {
	s.loads[name]++
	if err := s.fail[name]; err != nil {
		return nil, err
	}
	cfg, ok := s.configs[name]
	if !ok {
		return nil, errors.Newf("shader asset not found: %s", name)
	}
	return &metadata.ShaderResource{Name: name, Config: cfg}, nil
}

func (s *fakeSource) Reloads() <-chan string {
	return s.reloads
}

func flatConfig() metadata.ShaderConfig {
	code := []byte{0x03, 0x02, 0x23, 0x07}
	return metadata.ShaderConfig{
		Stages: []metadata.StageReflection{
			{
				Stage: driver.ShaderStageVertex,
				Code:  code,
				Inputs: []metadata.StageInput{
					{Name: "in_position", Location: 0, Type: metadata.AttributeVec3},
				},
			},
			{
				Stage: driver.ShaderStageFragment,
				Code:  code,
				Resources: []metadata.StageResource{
					{Name: "color", Kind: metadata.ResourceKindUniformBuffer, Set: 0, Binding: 0, Size: 16},
				},
			},
		},
	}
}

func newTestSystem(t *testing.T, max uint16) (*ShaderSystem, *fakeSource, *renderer.Renderer) {
	t.Helper()
	r, err := renderer.New(renderer.Vulkan, drivertest.New(), core.DefaultConfig().Renderer)
	if err != nil {
		t.Fatalf("renderer.New() error = %v", err)
	}
	t.Cleanup(func() { r.Shutdown() })
	src := newFakeSource()
	ss, err := NewShaderSystem(ShaderSystemConfig{MaxShaderCount: max}, r.Backend(), src)
	if err != nil {
		t.Fatalf("NewShaderSystem() error = %v", err)
	}
	return ss, src, r
}

func TestNewShaderSystemRejectsZeroCapacity(t *testing.T) {
	if _, err := NewShaderSystem(ShaderSystemConfig{}, nil, newFakeSource()); err == nil {
		t.Error("NewShaderSystem() accepted MaxShaderCount 0")
	}
}

func TestShaderSystemAcquire(t *testing.T) {
	ss, src, r := newTestSystem(t, 1)
	src.configs["flat"] = flatConfig()
	src.configs["other"] = flatConfig()

	id, err := ss.Acquire("flat")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	again, err := ss.Acquire("flat")
	if err != nil || again != id {
		t.Errorf("second Acquire() = %d, %v, want %d", again, err, id)
	}
	if src.loads["flat"] != 1 {
		t.Errorf("flat loaded %d times, want 1", src.loads["flat"])
	}
	if loc := r.Backend().ShaderLocation(id, "color"); loc == metadata.InvalidLocation {
		t.Error("color not resolvable on the created shader")
	}
	if _, err := ss.Acquire("other"); err == nil {
		t.Error("Acquire() exceeded MaxShaderCount")
	}
	if _, err := ss.Acquire("missing"); err == nil {
		t.Error("Acquire(missing) succeeded")
	}
}

func TestShaderSystemLogsErrorsVerbatim(t *testing.T) {
	var out bytes.Buffer
	core.SetLogOutput(&out)
	t.Cleanup(func() { core.SetLogOutput(io.Discard) })

	ss, src, _ := newTestSystem(t, 1)
	src.configs["flat"] = flatConfig()
	src.configs["tint_%d"] = flatConfig()
	if _, err := ss.Acquire("flat"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := ss.Acquire("tint_%d"); err == nil {
		t.Fatal("Acquire() exceeded MaxShaderCount")
	}
	if got := out.String(); !strings.Contains(got, "tint_%d") || strings.Contains(got, "%!") {
		t.Errorf("log output = %q, want the shader name unchanged", got)
	}
}

func TestShaderSystemProcessReloads(t *testing.T) {
	ss, src, r := newTestSystem(t, 4)
	src.configs["flat"] = flatConfig()
	src.configs["broken"] = flatConfig()
	if _, err := ss.Acquire("flat"); err != nil {
		t.Fatal(err)
	}
	brokenID, err := ss.Acquire("broken")
	if err != nil {
		t.Fatal(err)
	}

	reloaded := 0
	r.Backend().Events().Register(core.EVENT_CODE_SHADER_RELOADED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		reloaded++
		return false
	})

	src.fail["broken"] = errors.New("syntax error")
	src.reloads <- "flat"
	src.reloads <- "flat"
	src.reloads <- "broken"
	src.reloads <- "unknown"

	if n := ss.ProcessReloads(); n != 1 {
		t.Errorf("ProcessReloads() = %d, want 1", n)
	}
	if reloaded != 1 {
		t.Errorf("%d reload events, want 1", reloaded)
	}
	if src.loads["flat"] != 2 {
		t.Errorf("flat loaded %d times, want 2", src.loads["flat"])
	}
	if id, ok := ss.Get("broken"); !ok || id != brokenID {
		t.Errorf("broken shader lost after a failed reload")
	}
	if n := ss.ProcessReloads(); n != 0 {
		t.Errorf("ProcessReloads() on an empty queue = %d", n)
	}
}

func TestShaderSystemShutdown(t *testing.T) {
	ss, src, _ := newTestSystem(t, 4)
	src.configs["flat"] = flatConfig()
	if _, err := ss.Acquire("flat"); err != nil {
		t.Fatal(err)
	}
	if err := ss.Destroy("missing"); err == nil {
		t.Error("Destroy(missing) succeeded")
	}
	if err := ss.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if _, ok := ss.Get("flat"); ok {
		t.Error("flat still registered after Shutdown()")
	}
}
