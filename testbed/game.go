package testbed

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

const (
	offscreenSize = 256
	globalsSize   = 32
)

// TestGame draws a tinted triangle into an offscreen texture and samples
// that texture onto the swapchain image.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	ctx *engine.Context

	tinted  metadata.ShaderID
	present metadata.ShaderID

	triangle  driver.Buffer
	quad      driver.Buffer
	globals   driver.Buffer
	offscreen *metadata.Texture
	target    metadata.RenderTargetID

	elapsed time.Duration
	width   uint32
	height  uint32
}

var (
	triangleFormat = metadata.VertexFormat{
		Attributes: []metadata.VertexAttribute{
			{Name: "position", Type: metadata.AttributeVec2, Offset: 0},
			{Name: "color", Type: metadata.AttributeVec3, Offset: 8},
		},
		Stride: 20,
	}
	quadFormat = metadata.VertexFormat{
		Attributes: []metadata.VertexAttribute{
			{Name: "in_position", Type: metadata.AttributeVec2, Offset: 0},
			{Name: "in_uv", Type: metadata.AttributeVec2, Offset: 8},
		},
		Stride: 16,
	}
)

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:           "vkbridge testbed",
				ConfigPath:     configPath,
				MaxShaderCount: 16,
			},
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func packFloats(values ...float32) []byte {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return data
}

func createBuffer(dev driver.Device, usage driver.BufferUsage, data []byte) (driver.Buffer, error) {
	buf, err := dev.CreateBuffer(driver.BufferDesc{Size: uint64(len(data)), Usage: usage, HostVisible: true})
	if err != nil {
		return 0, err
	}
	if err := dev.WriteBuffer(buf, 0, data); err != nil {
		dev.DestroyBuffer(buf)
		return 0, err
	}
	return buf, nil
}

func (g *TestGame) Initialize(ctx *engine.Context) error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	s.ctx = ctx

	var err error
	if s.tinted, err = ctx.Shaders.Acquire("tinted"); err != nil {
		return err
	}
	if s.present, err = ctx.Shaders.Acquire("present"); err != nil {
		return err
	}

	dev := ctx.Device
	if s.triangle, err = createBuffer(dev, driver.BufferUsageVertex, packFloats(
		0.0, -0.5, 1.0, 0.0, 0.0,
		0.5, 0.5, 0.0, 1.0, 0.0,
		-0.5, 0.5, 0.0, 0.0, 1.0,
	)); err != nil {
		return errors.Wrap(err, "triangle vertices")
	}
	if s.quad, err = createBuffer(dev, driver.BufferUsageVertex, packFloats(
		-1, -1, 0, 0,
		1, -1, 1, 0,
		1, 1, 1, 1,
		-1, -1, 0, 0,
		1, 1, 1, 1,
		-1, 1, 0, 1,
	)); err != nil {
		return errors.Wrap(err, "quad vertices")
	}
	if s.globals, err = createBuffer(dev, driver.BufferUsageUniform, make([]byte, globalsSize)); err != nil {
		return errors.Wrap(err, "globals")
	}

	extent := driver.Extent2D{Width: offscreenSize, Height: offscreenSize}
	img, err := dev.CreateImage(driver.ImageDesc{
		Format:  driver.FormatR8G8B8A8Unorm,
		Extent:  extent,
		Usage:   driver.ImageUsageColorAttachment | driver.ImageUsageSampled,
		Samples: 1,
	})
	if err != nil {
		return errors.Wrap(err, "offscreen image")
	}
	view, err := dev.CreateImageView(driver.ImageViewDesc{Image: img, Format: driver.FormatR8G8B8A8Unorm, Aspect: driver.ImageAspectColor})
	if err != nil {
		dev.DestroyImage(img)
		return errors.Wrap(err, "offscreen view")
	}
	s.offscreen = &metadata.Texture{
		Name:   "offscreen",
		Image:  img,
		View:   view,
		Format: driver.FormatR8G8B8A8Unorm,
		Extent: extent,
		Flags:  metadata.TextureFlagIsWriteable,
	}
	ctx.Backend.RegisterTexture(s.offscreen, driver.ImageLayoutUndefined)
	if s.target, err = ctx.Backend.CreateRenderTarget(metadata.RenderTargetConfig{
		Name:        "offscreen",
		Colors:      []*metadata.Texture{s.offscreen},
		ClearFlags:  metadata.RENDERPASS_CLEAR_COLOUR_BUFFER_FLAG,
		ClearColour: [4]float32{0.1, 0.1, 0.1, 1.0},
	}); err != nil {
		return err
	}
	return nil
}

func (g *TestGame) Update(deltaTime time.Duration) error {
	s := g.state()
	s.elapsed += deltaTime
	t := float32(s.elapsed.Seconds())
	tint := packFloats(
		0.75+0.25*float32(math.Sin(float64(t))), 0.75+0.25*float32(math.Cos(float64(t))), 1.0, 1.0,
		t, float32(s.width), float32(s.height), 0,
	)
	return s.ctx.Device.WriteBuffer(s.globals, 0, tint)
}

func (g *TestGame) Render(b renderer.Backend, deltaTime time.Duration) error {
	s := g.state()
	frame, ok := b.FrameTarget()
	if !ok {
		return errors.New("no swapchain image was acquired")
	}

	b.PushDebugLabel("offscreen")
	if err := b.BeginRenderTarget(s.target); err != nil {
		b.PopDebugLabel()
		return err
	}
	if err := g.drawTriangle(b); err != nil {
		b.PopDebugLabel()
		return err
	}
	b.PopDebugLabel()

	if err := b.PrepareTexture(s.offscreen); err != nil {
		return err
	}

	b.PushDebugLabel("present")
	defer b.PopDebugLabel()
	if err := b.BeginRenderTarget(frame); err != nil {
		return err
	}
	if err := b.BindShader(s.present); err != nil {
		return err
	}
	if err := b.BindTexture(b.ShaderLocation(s.present, "scene"), s.offscreen, metadata.DefaultSampler()); err != nil {
		return err
	}
	b.BindVertexBuffers(metadata.VertexBuffer{Buffer: s.quad, Format: quadFormat})
	return b.Draw(0, 6, 0, 1)
}

func (g *TestGame) drawTriangle(b renderer.Backend) error {
	s := g.state()
	if err := b.BindShader(s.tinted); err != nil {
		return err
	}
	loc := b.ShaderLocation(s.tinted, "globals")
	if err := b.BindBuffer(metadata.ResourceKindUniformBuffer, loc, metadata.BufferRange{Buffer: s.globals, Size: globalsSize}); err != nil {
		return err
	}
	b.SetTopology(driver.TopologyTriangleList)
	b.BindVertexBuffers(metadata.VertexBuffer{Buffer: s.triangle, Format: triangleFormat})
	return b.Draw(0, 3, 0, 1)
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	if s.ctx == nil {
		return nil
	}
	b, dev := s.ctx.Backend, s.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		return err
	}
	var errs error
	if s.offscreen != nil {
		errs = errors.CombineErrors(errs, b.DestroyRenderTarget(s.target))
		b.ReleaseTexture(s.offscreen)
		dev.DestroyImageView(s.offscreen.View)
		dev.DestroyImage(s.offscreen.Image)
		s.offscreen = nil
	}
	for _, buf := range []driver.Buffer{s.triangle, s.quad, s.globals} {
		if buf != 0 {
			dev.DestroyBuffer(buf)
		}
	}
	return errs
}
