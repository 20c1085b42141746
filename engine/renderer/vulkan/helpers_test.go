package vulkan

import (
	"io"
	"testing"
	"time"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func init() {
	core.SetLogOutput(io.Discard)
}

func testConfig() core.RendererConfig {
	cfg := core.DefaultConfig().Renderer
	cfg.FenceTimeout = core.Duration{Duration: time.Millisecond}
	return cfg
}

func newTestContext(t *testing.T, configure ...func(*core.RendererConfig)) (*DeviceContext, *drivertest.Device) {
	t.Helper()
	dev := drivertest.New()
	cfg := testConfig()
	for _, fn := range configure {
		fn(&cfg)
	}
	ctx, err := NewDeviceContext(dev, cfg)
	if err != nil {
		t.Fatalf("NewDeviceContext() error = %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx, dev
}

func newTestRecorder(t *testing.T, ctx *DeviceContext, name string) *CommandRecorder {
	t.Helper()
	rec, err := NewCommandRecorder(ctx, name)
	if err != nil {
		t.Fatalf("NewCommandRecorder(%s) error = %v", name, err)
	}
	return rec
}

var spirv = []byte{0x03, 0x02, 0x23, 0x07}

// colorTexConfig declares a vec4 color uniform and a sampled texture.
func colorTexConfig() metadata.ShaderConfig {
	return metadata.ShaderConfig{
		Name: "color_tex",
		Stages: []metadata.StageReflection{
			{
				Stage: driver.ShaderStageVertex,
				Code:  spirv,
				Inputs: []metadata.StageInput{
					{Name: "in_position", Location: 0, Type: metadata.AttributeVec3},
				},
			},
			{
				Stage: driver.ShaderStageFragment,
				Code:  spirv,
				Resources: []metadata.StageResource{
					{Name: "color", Kind: metadata.ResourceKindUniformBuffer, Set: 0, Binding: 0, Size: 16},
					{Name: "tex", Kind: metadata.ResourceKindSampledImage, Set: 0, Binding: 1},
				},
			},
		},
	}
}

func newTestShader(t *testing.T, ctx *DeviceContext, cfg metadata.ShaderConfig) *Shader {
	t.Helper()
	s, err := NewShader(ctx, cfg)
	if err != nil {
		t.Fatalf("NewShader(%s) error = %v", cfg.Name, err)
	}
	return s
}

var positionFormat = metadata.VertexFormat{
	Attributes: []metadata.VertexAttribute{{Name: "in_position", Type: metadata.AttributeVec3}},
	Stride:     12,
}

type eventLog struct {
	events map[core.SystemEventCode][]core.EventContext
}

func (l *eventLog) count(code core.SystemEventCode) int {
	return len(l.events[code])
}

func (l *eventLog) last(code core.SystemEventCode) core.EventContext {
	evs := l.events[code]
	if len(evs) == 0 {
		return core.EventContext{}
	}
	return evs[len(evs)-1]
}

func listen(ctx *DeviceContext, codes ...core.SystemEventCode) *eventLog {
	l := &eventLog{events: make(map[core.SystemEventCode][]core.EventContext)}
	for _, code := range codes {
		ctx.Events.Register(code, l, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
			l.events[code] = append(l.events[code], data)
			return false
		})
	}
	return l
}
