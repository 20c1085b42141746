package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type fakePresenter struct {
	images    int
	next      uint32
	ready     driver.Semaphore
	presented []uint32
	waits     []driver.Semaphore
}

func (p *fakePresenter) Acquire() (uint32, driver.Semaphore, error) {
	index := p.next
	p.next = (p.next + 1) % uint32(p.images)
	return index, p.ready, nil
}

func (p *fakePresenter) Present(index uint32, wait driver.Semaphore) error {
	p.presented = append(p.presented, index)
	p.waits = append(p.waits, wait)
	return nil
}

type backendFixture struct {
	backend *Backend
	dev     *drivertest.Device
	shader  metadata.ShaderID
	target  metadata.RenderTargetID
	albedo  *metadata.Texture
}

func newBackendFixture(t *testing.T, configure ...func(*core.RendererConfig)) *backendFixture {
	t.Helper()
	ctx, dev := newTestContext(t, configure...)
	b, err := NewBackend(ctx)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	id, err := b.CreateShader(colorTexConfig())
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	albedo := &metadata.Texture{Name: "albedo", Image: 900, View: 901, Format: driver.FormatR8G8B8A8Unorm, Extent: driver.Extent2D{Width: 4, Height: 4}}
	b.RegisterTexture(albedo, driver.ImageLayoutShaderReadOnlyOptimal)

	backbuffer := &metadata.Texture{Name: "backbuffer", Image: 800, View: 801, Format: driver.FormatB8G8R8A8Unorm, Extent: driver.Extent2D{Width: 640, Height: 480}}
	b.RegisterTexture(backbuffer, driver.ImageLayoutUndefined)
	target, err := b.CreateRenderTarget(metadata.RenderTargetConfig{
		Name:         "main",
		Colors:       []*metadata.Texture{backbuffer},
		PresentAfter: true,
		ClearFlags:   metadata.RENDERPASS_CLEAR_COLOUR_BUFFER_FLAG,
		ClearColour:  [4]float32{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatalf("CreateRenderTarget() error = %v", err)
	}
	return &backendFixture{backend: b, dev: dev, shader: id, target: target, albedo: albedo}
}

// drawTriangle binds the color and texture and draws one triangle.
func (f *backendFixture) drawTriangle(t *testing.T) {
	t.Helper()
	b := f.backend
	if err := b.BindShader(f.shader); err != nil {
		t.Fatalf("BindShader() error = %v", err)
	}
	if err := b.BindBuffer(metadata.ResourceKindUniformBuffer, b.ShaderLocation(f.shader, "color"), metadata.BufferRange{Buffer: 77, Size: 16}); err != nil {
		t.Fatalf("BindBuffer() error = %v", err)
	}
	if err := b.BindTexture(b.ShaderLocation(f.shader, "tex"), f.albedo, metadata.DefaultSampler()); err != nil {
		t.Fatalf("BindTexture() error = %v", err)
	}
	b.BindVertexBuffers(metadata.VertexBuffer{Buffer: 55, Format: positionFormat})
	if err := b.Draw(0, 3, 0, 1); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
}

func (f *backendFixture) frame(t *testing.T, draws int) {
	t.Helper()
	b := f.backend
	if err := b.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if b.presenter != nil {
		if id, ok := b.FrameTarget(); !ok || id != f.target {
			t.Fatalf("FrameTarget() = %d, %v, want %d", id, ok, f.target)
		}
	} else if err := b.BeginRenderTarget(f.target); err != nil {
		t.Fatalf("BeginRenderTarget() error = %v", err)
	}
	for i := 0; i < draws; i++ {
		f.drawTriangle(t)
	}
	if err := b.SubmitFrame(); err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}
}

func TestColorTextureTriangle(t *testing.T) {
	f := newBackendFixture(t)
	dev := f.dev
	f.frame(t, 1)

	if len(dev.DescriptorUpdates) != 1 || len(dev.DescriptorUpdates[0]) != 2 {
		t.Fatalf("DescriptorUpdates = %+v, want one update with 2 writes", dev.DescriptorUpdates)
	}
	if len(dev.Pipelines) != 1 {
		t.Fatalf("%d pipelines built, want 1", len(dev.Pipelines))
	}
	draw, ok := dev.Last(drivertest.OpDraw)
	if !ok || draw.VertexCount != 3 || draw.InstanceCount != 1 || draw.FirstVertex != 0 {
		t.Errorf("draw = %+v", draw)
	}
	if len(dev.Samplers) != 1 {
		t.Errorf("%d samplers created, want 1", len(dev.Samplers))
	}
	if len(dev.Submits) != 1 {
		t.Errorf("%d submissions, want 1", len(dev.Submits))
	}

	stats := f.backend.Statistics()
	want := core.FrameStatistics{Draws: 1, DescriptorFlushes: 1, DescriptorWrites: 2, DescriptorAllocs: 1, PipelineBuilds: 1, Barriers: 2, Submissions: 1}
	if stats != want {
		t.Errorf("Statistics() = %+v, want %+v", stats, want)
	}

	// The same draw next frame hits the pipeline cache.
	f.frame(t, 1)
	stats = f.backend.Statistics()
	if len(dev.Pipelines) != 1 || stats.PipelineHits != 1 || stats.PipelineBuilds != 0 {
		t.Errorf("second frame built %d pipelines, stats %+v", len(dev.Pipelines), stats)
	}
	if stats.DescriptorFlushes != 1 {
		t.Errorf("second frame flushes = %d, want 1", stats.DescriptorFlushes)
	}
}

func TestRepeatedDrawsShareState(t *testing.T) {
	f := newBackendFixture(t)
	b := f.backend
	if err := b.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if err := b.BeginRenderTarget(f.target); err != nil {
		t.Fatalf("BeginRenderTarget() error = %v", err)
	}
	f.drawTriangle(t)
	// A second draw without new bindings reuses everything.
	if err := b.Draw(3, 3, 0, 1); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if err := b.Draw(0, 0, 0, 1); err != nil {
		t.Fatalf("empty Draw() error = %v", err)
	}
	_ = b.SubmitFrame()

	dev := f.dev
	if dev.Count(drivertest.OpDraw) != 2 {
		t.Errorf("%d draws recorded, want 2", dev.Count(drivertest.OpDraw))
	}
	if dev.Count(drivertest.OpBindPipeline) != 1 || dev.Count(drivertest.OpBindDescriptorSets) != 1 {
		t.Errorf("pipeline bound %d times, sets bound %d times", dev.Count(drivertest.OpBindPipeline), dev.Count(drivertest.OpBindDescriptorSets))
	}
	stats := b.Statistics()
	if stats.Draws != 2 || stats.PipelineHits != 1 || stats.DescriptorFlushes != 1 {
		t.Errorf("Statistics() = %+v", stats)
	}
}

func TestRotationDepthNeverExceeded(t *testing.T) {
	f := newBackendFixture(t, func(c *core.RendererConfig) { c.RotationDepth = 2 })
	s, _ := f.backend.Shader(f.shader)
	for i := 0; i < 5; i++ {
		f.frame(t, 1)
		if live := s.Pool(0).Live(); live > 2 {
			t.Fatalf("frame %d: %d live sets", i, live)
		}
	}
	if f.dev.AllocatedSets != 2 {
		t.Errorf("AllocatedSets = %d, want 2", f.dev.AllocatedSets)
	}
}

func TestPresentTransitions(t *testing.T) {
	f := newBackendFixture(t)
	f.frame(t, 1)
	f.frame(t, 1)

	var layouts [][2]driver.ImageLayout
	for _, c := range f.dev.Commands {
		if c.Op != drivertest.OpPipelineBarrier {
			continue
		}
		for _, b := range c.Barriers {
			if b.Image == 800 {
				layouts = append(layouts, [2]driver.ImageLayout{b.OldLayout, b.NewLayout})
			}
		}
	}
	want := [][2]driver.ImageLayout{
		{driver.ImageLayoutUndefined, driver.ImageLayoutColorAttachmentOptimal},
		{driver.ImageLayoutColorAttachmentOptimal, driver.ImageLayoutPresentSrc},
		{driver.ImageLayoutPresentSrc, driver.ImageLayoutColorAttachmentOptimal},
		{driver.ImageLayoutColorAttachmentOptimal, driver.ImageLayoutPresentSrc},
	}
	if len(layouts) != len(want) {
		t.Fatalf("backbuffer transitions = %v, want %v", layouts, want)
	}
	for i := range want {
		if layouts[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, layouts[i], want[i])
		}
	}
}

func TestPresenterSemaphores(t *testing.T) {
	f := newBackendFixture(t)
	p := &fakePresenter{images: 1, ready: 4242}
	if err := f.backend.SetPresenter(p, []metadata.RenderTargetID{f.target}); err != nil {
		t.Fatalf("SetPresenter() error = %v", err)
	}
	if _, ok := f.backend.FrameTarget(); ok {
		t.Error("FrameTarget() reported a target before BeginFrame")
	}
	f.frame(t, 1)
	if _, ok := f.backend.FrameTarget(); ok {
		t.Error("FrameTarget() still set after SubmitFrame")
	}

	if len(p.presented) != 1 || p.presented[0] != 0 {
		t.Fatalf("presented %v", p.presented)
	}
	submit := f.dev.Submits[0]
	if len(submit.WaitSemaphores) != 1 || submit.WaitSemaphores[0] != p.ready {
		t.Errorf("submit waits on %v, want the acquire semaphore", submit.WaitSemaphores)
	}
	signaled := false
	for _, s := range submit.SignalSemaphores {
		if s == p.waits[0] {
			signaled = true
		}
	}
	if !signaled {
		t.Errorf("present waits on %v, which the submission never signals (%v)", p.waits[0], submit.SignalSemaphores)
	}
}

func TestBindTextureRequiresShaderReadLayout(t *testing.T) {
	if core.AssertionsPanic() {
		t.Skip("assertions panic in this build")
	}
	f := newBackendFixture(t)
	b := f.backend
	fresh := &metadata.Texture{Name: "fresh", Image: 700, View: 701, Format: driver.FormatR8G8B8A8Unorm}
	b.RegisterTexture(fresh, driver.ImageLayoutTransferDstOptimal)
	_ = b.BindShader(f.shader)

	loc := b.ShaderLocation(f.shader, "tex")
	if err := b.BindTexture(loc, fresh, metadata.DefaultSampler()); !core.IsAssertionFailure(err) {
		t.Fatalf("BindTexture() in transfer layout error = %v", err)
	}
	if err := b.PrepareTexture(fresh); err != nil {
		t.Fatalf("PrepareTexture() error = %v", err)
	}
	if err := b.BindTexture(loc, fresh, metadata.DefaultSampler()); err != nil {
		t.Errorf("BindTexture() after PrepareTexture() error = %v", err)
	}
}

func TestPushConstantsAndInlineUniforms(t *testing.T) {
	f := newBackendFixture(t)
	b := f.backend
	cfg := colorTexConfig()
	cfg.Name = "tinted"
	cfg.Stages[0].PushConstants = []metadata.PushConstantMember{{Name: "scale", Offset: 0, Size: 4}}
	cfg.Stages[1].Resources = append(cfg.Stages[1].Resources, metadata.StageResource{Name: "tint", Kind: metadata.ResourceKindInlineUniform, Offset: 16, Size: 16})
	id, err := b.CreateShader(cfg)
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	f.shader = id

	_ = b.BeginFrame()
	_ = b.BeginRenderTarget(f.target)
	_ = b.BindShader(id)
	scale := make([]byte, 4)
	binary.LittleEndian.PutUint32(scale, math.Float32bits(2))
	if err := b.SetPushConstant("scale", scale); err != nil {
		t.Fatalf("SetPushConstant() error = %v", err)
	}
	if err := b.BindInlineUniform(b.ShaderLocation(id, "tint"), make([]byte, 8)); err == nil {
		t.Error("BindInlineUniform() with a short block succeeded")
	}
	tint := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if err := b.BindInlineUniform(b.ShaderLocation(id, "tint"), tint); err != nil {
		t.Fatalf("BindInlineUniform() error = %v", err)
	}
	f.drawTriangle(t)
	f.drawTriangle(t)
	_ = b.SubmitFrame()

	if got := f.dev.Count(drivertest.OpPushConstants); got != 1 {
		t.Fatalf("%d pushes recorded, want 1", got)
	}
	push, _ := f.dev.Last(drivertest.OpPushConstants)
	if push.Offset != 0 || len(push.Data) != 32 {
		t.Fatalf("push offset %d size %d, want 0 and 32", push.Offset, len(push.Data))
	}
	if math.Float32frombits(binary.LittleEndian.Uint32(push.Data[:4])) != 2 || push.Data[16] != 1 || push.Data[31] != 16 {
		t.Errorf("push data = %v", push.Data)
	}
	if push.Stages != driver.ShaderStageVertex|driver.ShaderStageFragment {
		t.Errorf("push stages = %v", push.Stages)
	}
}

func TestReplaceShader(t *testing.T) {
	f := newBackendFixture(t)
	b := f.backend
	events := listen(b.Context(), core.EVENT_CODE_SHADER_RELOADED)
	f.frame(t, 1)
	old, _ := b.Shader(f.shader)

	broken := colorTexConfig()
	broken.Stages = append(broken.Stages, broken.Stages[1])
	if err := b.ReplaceShader(f.shader, broken); err == nil {
		t.Fatal("ReplaceShader() with a broken config succeeded")
	}
	if s, _ := b.Shader(f.shader); s != old {
		t.Fatal("failed reload replaced the shader")
	}

	if err := b.ReplaceShader(f.shader, colorTexConfig()); err != nil {
		t.Fatalf("ReplaceShader() error = %v", err)
	}
	current, _ := b.Shader(f.shader)
	if current == old || old.State != metadata.SHADER_STATE_DESTROYED {
		t.Errorf("old shader state = %v", old.State)
	}
	if events.count(core.EVENT_CODE_SHADER_RELOADED) != 1 {
		t.Errorf("%d reload events, want 1", events.count(core.EVENT_CODE_SHADER_RELOADED))
	}
	if b.Pipelines().Len() != 0 {
		t.Errorf("%d pipelines of the old shader still cached", b.Pipelines().Len())
	}
	// Bindings follow the shader across the reload.
	_ = b.BeginFrame()
	_ = b.BeginRenderTarget(f.target)
	_ = b.BindShader(f.shader)
	if err := b.Draw(0, 3, 0, 1); err != nil {
		t.Fatalf("Draw() after reload without rebinding error = %v", err)
	}
	if writes := f.dev.DescriptorUpdates[len(f.dev.DescriptorUpdates)-1]; len(writes) != 2 || writes[0].Buffers[0].Buffer != 77 {
		t.Errorf("writes after reload = %+v", writes)
	}
	_ = b.SubmitFrame()
	f.frame(t, 1)
	if len(f.dev.Pipelines) != 2 {
		t.Errorf("%d pipelines built, want one per shader version", len(f.dev.Pipelines))
	}
}

func TestBindingsSurviveShaderSwitch(t *testing.T) {
	f := newBackendFixture(t)
	b := f.backend
	cfg := colorTexConfig()
	cfg.Name = "other"
	other, err := b.CreateShader(cfg)
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	_ = b.BeginFrame()
	_ = b.BeginRenderTarget(f.target)
	f.drawTriangle(t)

	if err := b.BindShader(other); err != nil {
		t.Fatalf("BindShader(other) error = %v", err)
	}
	if err := b.Draw(0, 3, 0, 1); !core.IsConfigurationError(err) {
		t.Errorf("Draw() with nothing bound for other error = %v", err)
	}
	if err := b.BindShader(f.shader); err != nil {
		t.Fatalf("BindShader() error = %v", err)
	}
	updates := len(f.dev.DescriptorUpdates)
	if err := b.Draw(0, 3, 0, 1); err != nil {
		t.Fatalf("Draw() after switching back error = %v", err)
	}
	_ = b.SubmitFrame()

	if len(f.dev.DescriptorUpdates) != updates {
		t.Errorf("switching back issued %d descriptor updates, want none", len(f.dev.DescriptorUpdates)-updates)
	}
	if f.dev.Count(drivertest.OpDraw) != 2 || f.dev.Count(drivertest.OpBindDescriptorSets) != 2 {
		t.Errorf("%d draws, %d set binds, want 2 and 2", f.dev.Count(drivertest.OpDraw), f.dev.Count(drivertest.OpBindDescriptorSets))
	}
}

func TestDrawErrors(t *testing.T) {
	f := newBackendFixture(t)
	b := f.backend
	_ = b.BeginFrame()
	if err := b.Draw(0, 3, 0, 1); err == nil {
		t.Error("Draw() without a shader succeeded")
	}
	_ = b.BindShader(f.shader)
	if err := b.Draw(0, 3, 0, 1); err == nil {
		t.Error("Draw() without a render target succeeded")
	}
	_ = b.BeginRenderTarget(f.target)
	if err := b.DrawIndexed(0, 3, 0, 0, 1); err == nil {
		t.Error("DrawIndexed() without an index buffer succeeded")
	}
	b.BindVertexBuffers(metadata.VertexBuffer{Buffer: 55, Format: positionFormat})
	b.BindIndexBuffer(metadata.IndexBuffer{Buffer: 66, Type: driver.IndexTypeUint16})
	if err := b.DrawIndexed(0, 6, 0, 0, 1); !core.IsConfigurationError(err) {
		t.Errorf("DrawIndexed() with unbound resources error = %v", err)
	}
	_ = b.BindBuffer(metadata.ResourceKindUniformBuffer, b.ShaderLocation(f.shader, "color"), metadata.BufferRange{Buffer: 77, Size: 16})
	_ = b.BindTexture(b.ShaderLocation(f.shader, "tex"), f.albedo, metadata.DefaultSampler())
	if err := b.DrawIndexed(0, 6, 0, 0, 1); err != nil {
		t.Errorf("DrawIndexed() error = %v", err)
	}
	cmd, _ := f.dev.Last(drivertest.OpDrawIndexed)
	if cmd.IndexCount != 6 || cmd.InstanceCount != 1 {
		t.Errorf("indexed draw = %+v", cmd)
	}
	if err := b.BindShader(metadata.ShaderID(99)); err == nil {
		t.Error("BindShader() with an unknown id succeeded")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newBackendFixture(t)
	f.frame(t, 1)
	if err := f.backend.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(f.dev.DestroyedPipeline) != 1 {
		t.Errorf("%d pipelines destroyed, want 1", len(f.dev.DestroyedPipeline))
	}
	if f.backend.Context().PendingReleases() != 0 {
		t.Errorf("%d releases still pending", f.backend.Context().PendingReleases())
	}
}
