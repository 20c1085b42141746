package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// Presenter supplies the presentable images of a surface.
type Presenter interface {
	// Acquire returns the index of the next image and a semaphore signaled
	// once it may be rendered to.
	Acquire() (uint32, driver.Semaphore, error)
	// Present queues the image for presentation once wait is signaled.
	Present(index uint32, wait driver.Semaphore) error
}

// Backend implements the state-based drawing API on top of a driver.Device.
// Bind calls only record state; everything reaches the device at draw time.
type Backend struct {
	ctx       *DeviceContext
	recorder  *CommandRecorder
	tracker   *DescriptorSetTracker
	push      *PushConstantBuffer
	vertices  *VertexBindingCache
	pipelines *PipelineAssembler

	shaders *core.Arena[*Shader]
	targets *core.Arena[*RenderTarget]

	presenter      Presenter
	presentTargets []metadata.RenderTargetID
	renderFinished driver.Semaphore
	frameImage     uint32
	frameAcquired  bool

	shader        *Shader
	state         driver.FixedFunctionState
	topology      driver.PrimitiveTopology
	vertexBuffers []metadata.VertexBuffer
	indexBuffer   *metadata.IndexBuffer
	target        *RenderTarget

	clock *core.Clock
}

func NewBackend(ctx *DeviceContext) (*Backend, error) {
	rec, err := NewCommandRecorder(ctx, "graphics")
	if err != nil {
		return nil, err
	}
	b := &Backend{
		ctx:       ctx,
		recorder:  rec,
		tracker:   NewDescriptorSetTracker(ctx),
		push:      NewPushConstantBuffer(),
		vertices:  NewVertexBindingCache(),
		pipelines: NewPipelineAssembler(ctx),
		shaders:   core.NewArena[*Shader](16),
		targets:   core.NewArena[*RenderTarget](4),
		state:     driver.DefaultFixedFunctionState(),
		topology:  driver.TopologyTriangleList,
		clock:     core.NewClock(),
	}
	core.LogInfo("vulkan backend ready on `%s` (rotation depth %d)", ctx.Device.Name(), ctx.RotationDepth())
	return b, nil
}

func (b *Backend) Context() *DeviceContext {
	return b.ctx
}

func (b *Backend) Recorder() *CommandRecorder {
	return b.recorder
}

func (b *Backend) Events() *core.EventBus {
	return b.ctx.Events
}

func (b *Backend) Pipelines() *PipelineAssembler {
	return b.pipelines
}

// CreateShader finalizes a shader. Configuration errors are returned as is.
func (b *Backend) CreateShader(config metadata.ShaderConfig) (metadata.ShaderID, error) {
	s, err := NewShader(b.ctx, config)
	if err != nil {
		return metadata.ShaderID(core.InvalidID), err
	}
	return metadata.ShaderID(b.shaders.Acquire(s)), nil
}

func (b *Backend) Shader(id metadata.ShaderID) (*Shader, bool) {
	return b.shaders.Get(uint32(id))
}

// ReplaceShader finalizes config and swaps it in for id. The previous
// shader stays in use when the new one fails to build.
func (b *Backend) ReplaceShader(id metadata.ShaderID, config metadata.ShaderConfig) error {
	old, ok := b.shaders.Get(uint32(id))
	if !ok {
		return errors.Newf("unknown shader %d", id)
	}
	s, err := NewShader(b.ctx, config)
	if err != nil {
		core.LogWarn("shader `%s` not reloaded, keeping the previous version: %s", config.Name, err.Error())
		return err
	}
	b.shaders.Set(uint32(id), s)
	b.tracker.Adopt(old, s)
	if b.shader == old {
		b.useShader(s)
	}
	b.retire(old)
	b.ctx.Events.Fire(core.EVENT_CODE_SHADER_RELOADED, b,
		core.String("shader", s.Name),
		core.Uint("id", uint64(id)),
	)
	return nil
}

func (b *Backend) DestroyShader(id metadata.ShaderID) error {
	s, ok := b.shaders.Get(uint32(id))
	if !ok {
		return errors.Newf("unknown shader %d", id)
	}
	if b.shader == s {
		b.useShader(nil)
	}
	b.retire(s)
	return b.shaders.Release(uint32(id))
}

func (b *Backend) retire(s *Shader) {
	b.pipelines.ReleaseShader(s.Identity)
	b.vertices.Forget(s.Identity)
	b.tracker.Forget(s.Identity)
	s.Destroy()
}

// ShaderLocation resolves a resource or inline uniform name of a shader.
func (b *Backend) ShaderLocation(id metadata.ShaderID, name string) metadata.ShaderResourceLocation {
	s, ok := b.shaders.Get(uint32(id))
	if !ok {
		return metadata.InvalidLocation
	}
	return s.Location(name)
}

// RegisterTexture starts tracking the layout of a texture's image.
func (b *Backend) RegisterTexture(tex *metadata.Texture, layout driver.ImageLayout) {
	aspect := driver.ImageAspectColor
	if tex.IsDepth() {
		aspect = driver.ImageAspectDepth
	}
	tex.LayoutRecord = b.ctx.TrackImage(tex.Name, tex.Image, aspect, layout)
}

func (b *Backend) ReleaseTexture(tex *metadata.Texture) {
	b.ctx.UntrackImage(tex.LayoutRecord)
	tex.LayoutRecord = core.InvalidID
}

// PrepareTexture moves a texture into the layout shaders sample from. It
// must happen outside of a render target.
func (b *Backend) PrepareTexture(tex *metadata.Texture) error {
	state, ok := b.ctx.ImageState(tex.LayoutRecord)
	if !ok {
		return errors.Newf("texture `%s` is not registered", tex.Name)
	}
	if err := b.recorder.Begin(); err != nil {
		return err
	}
	_, err := state.Transition(b.recorder, metadata.ImageAccessShaderRead)
	return err
}

func (b *Backend) CreateRenderTarget(config metadata.RenderTargetConfig) (metadata.RenderTargetID, error) {
	rt, err := NewRenderTarget(b.ctx, config)
	if err != nil {
		return metadata.RenderTargetID(core.InvalidID), err
	}
	return metadata.RenderTargetID(b.targets.Acquire(rt)), nil
}

func (b *Backend) DestroyRenderTarget(id metadata.RenderTargetID) error {
	rt, ok := b.targets.Get(uint32(id))
	if !ok {
		return errors.Newf("unknown render target %d", id)
	}
	if b.target == rt {
		b.recorder.EndRenderPass()
		b.target = nil
	}
	rt.Destroy(b.recorder.Serial())
	return b.targets.Release(uint32(id))
}

// SetPresenter makes BeginFrame acquire an image from p and render into the
// target registered for its index.
func (b *Backend) SetPresenter(p Presenter, targets []metadata.RenderTargetID) error {
	if b.renderFinished == 0 {
		s, err := b.ctx.Device.CreateSemaphore()
		if err != nil {
			return errors.Wrap(err, "failed to create the render finished semaphore")
		}
		b.renderFinished = s
	}
	b.presenter = p
	b.presentTargets = append([]metadata.RenderTargetID(nil), targets...)
	return nil
}

// FrameTarget is the target of the image acquired by BeginFrame.
func (b *Backend) FrameTarget() (metadata.RenderTargetID, bool) {
	if !b.frameAcquired {
		return metadata.RenderTargetID(core.InvalidID), false
	}
	return b.presentTargets[b.frameImage], true
}

func (b *Backend) useShader(s *Shader) {
	b.shader = s
	b.tracker.SetShader(s)
	b.push.SetShader(s)
}

// BindShader makes id the shader of the following draws. The resources bound
// for id earlier stay bound.
func (b *Backend) BindShader(id metadata.ShaderID) error {
	s, ok := b.shaders.Get(uint32(id))
	if !ok {
		return errors.Newf("unknown shader %d", id)
	}
	b.useShader(s)
	return nil
}

func (b *Backend) BindBuffer(kind metadata.ResourceKind, loc metadata.ShaderResourceLocation, buffer metadata.BufferRange) error {
	if !kind.IsBuffer() {
		return errors.Newf("%s is not a buffer kind", kind)
	}
	return b.tracker.Bind(kind, loc, BoundResource{Buffer: buffer.Buffer, Offset: buffer.Offset, Size: buffer.Size})
}

// BindTexture binds a texture and, for combined image samplers, the sampler
// described by sampler. Textures are sampled in the shader read layout.
func (b *Backend) BindTexture(loc metadata.ShaderResourceLocation, texture *metadata.Texture, sampler driver.SamplerDesc) error {
	if b.shader == nil {
		return errors.New("texture bound without a bound shader")
	}
	rb, ok := b.shader.Interface.Resource(loc)
	if !ok {
		return errors.Newf("shader `%s` has no resource at %s", b.shader.Name, loc)
	}
	res := BoundResource{View: texture.View, Layout: driver.ImageLayoutShaderReadOnlyOptimal}
	if rb.Kind == metadata.ResourceKindStorageImage {
		res.Layout = driver.ImageLayoutGeneral
	}
	if state, ok := b.ctx.ImageState(texture.LayoutRecord); ok && state.Layout() != res.Layout {
		if err := core.Assertf(false, "texture `%s` bound to `%s` in layout %s, want %s", texture.Name, rb.Name, state.Layout(), res.Layout); err != nil {
			return err
		}
	}
	if rb.Kind == metadata.ResourceKindSampledImage {
		s, err := b.ctx.Sampler(sampler)
		if err != nil {
			return err
		}
		res.Sampler = s
	}
	return b.tracker.Bind(rb.Kind, loc, res)
}

// BindSampler binds a standalone sampler resource.
func (b *Backend) BindSampler(loc metadata.ShaderResourceLocation, sampler driver.SamplerDesc) error {
	s, err := b.ctx.Sampler(sampler)
	if err != nil {
		return err
	}
	return b.tracker.Bind(metadata.ResourceKindSampler, loc, BoundResource{Sampler: s})
}

func (b *Backend) BindInlineUniform(loc metadata.ShaderResourceLocation, data []byte) error {
	return b.push.BindInlineUniform(loc, data)
}

func (b *Backend) SetPushConstant(name string, data []byte) error {
	return b.push.Set(name, data)
}

func (b *Backend) BindVertexBuffers(buffers ...metadata.VertexBuffer) {
	b.vertexBuffers = append(b.vertexBuffers[:0], buffers...)
}

func (b *Backend) BindIndexBuffer(buffer metadata.IndexBuffer) {
	b.indexBuffer = &buffer
}

func (b *Backend) SetState(state driver.FixedFunctionState) {
	b.state = state
}

func (b *Backend) SetTopology(topology driver.PrimitiveTopology) {
	b.topology = topology
}

// BeginFrame starts recording the frame. With a presenter it acquires the
// next image and selects its render target.
func (b *Backend) BeginFrame() error {
	b.clock.Start()
	if err := b.recorder.Begin(); err != nil {
		return err
	}
	if b.presenter == nil {
		return nil
	}
	index, ready, err := b.presenter.Acquire()
	if err != nil {
		return err
	}
	if int(index) >= len(b.presentTargets) {
		return errors.Newf("presenter returned image %d, only %d targets registered", index, len(b.presentTargets))
	}
	b.frameImage = index
	b.frameAcquired = true
	b.recorder.AddWaitSemaphore(ready, driver.PipelineStageColorAttachmentOutput)
	return b.BeginRenderTarget(b.presentTargets[index])
}

// BeginRenderTarget makes id the target of the following draws.
func (b *Backend) BeginRenderTarget(id metadata.RenderTargetID) error {
	rt, ok := b.targets.Get(uint32(id))
	if !ok {
		return errors.Newf("unknown render target %d", id)
	}
	if err := b.recorder.Begin(); err != nil {
		return err
	}
	b.recorder.EndRenderPass()
	b.target = rt
	return rt.Begin(b.recorder)
}

func (b *Backend) PushDebugLabel(label string) {
	if err := b.recorder.Begin(); err != nil {
		core.LogError("debug label `%s` dropped: %s", label, err.Error())
		return
	}
	b.recorder.PushLabel(label, [4]float32{1, 1, 1, 1})
}

func (b *Backend) PopDebugLabel() {
	b.recorder.PopLabel()
}

// prepareDraw brings the device state in line with the bound state.
func (b *Backend) prepareDraw() error {
	if b.shader == nil {
		return errors.New("draw without a bound shader")
	}
	if b.target == nil {
		return errors.New("draw without a render target")
	}
	rec := b.recorder
	if err := rec.Begin(); err != nil {
		return err
	}
	if !rec.InRenderPass() {
		if err := b.target.Begin(rec); err != nil {
			return err
		}
	}

	formats := make([]metadata.VertexFormat, len(b.vertexBuffers))
	for i, vb := range b.vertexBuffers {
		formats[i] = vb.Format
	}
	layout, err := b.vertices.Resolve(b.shader, formats)
	if err != nil {
		return err
	}
	pipeline, err := b.pipelines.GetOrBuild(PipelineRequest{
		Shader:   b.shader,
		Vertex:   layout,
		Topology: b.topology,
		State:    b.state,
		Pass:     b.target.Pass(),
	}, rec.Serial())
	if err != nil {
		return err
	}
	rec.BindPipeline(pipeline)
	if _, err := b.tracker.Flush(rec); err != nil {
		return err
	}
	b.push.Flush(rec)
	layout.Bind(rec, b.vertexBuffers, b.ctx.ZeroBuffer())
	return nil
}

func (b *Backend) recordDraw(kind string, count, instances uint32) {
	b.ctx.Metrics.Current().Draws++
	b.ctx.Events.Fire(core.EVENT_CODE_DRAW, b,
		core.String("shader", b.shader.Name),
		core.String("kind", kind),
		core.Uint("count", uint64(count)),
		core.Uint("instances", uint64(instances)),
		core.Uint("serial", b.recorder.Serial()),
	)
}

func (b *Backend) Draw(firstVertex, vertexCount, firstInstance, instanceCount uint32) error {
	if vertexCount == 0 || instanceCount == 0 {
		return nil
	}
	if err := b.prepareDraw(); err != nil {
		core.LogError("draw failed: %s", err.Error())
		return err
	}
	b.recorder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	b.recordDraw("draw", vertexCount, instanceCount)
	return nil
}

func (b *Backend) DrawIndexed(firstIndex, indexCount uint32, vertexOffset int32, firstInstance, instanceCount uint32) error {
	if indexCount == 0 || instanceCount == 0 {
		return nil
	}
	if b.indexBuffer == nil {
		return errors.New("indexed draw without an index buffer")
	}
	if err := b.prepareDraw(); err != nil {
		core.LogError("indexed draw failed: %s", err.Error())
		return err
	}
	b.recorder.BindIndexBuffer(b.indexBuffer.Buffer, b.indexBuffer.Offset, b.indexBuffer.Type)
	b.recorder.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	b.recordDraw("draw_indexed", indexCount, instanceCount)
	return nil
}

// SubmitFrame moves the presented image to its present layout, submits the
// frame and releases what the finished work no longer needs.
func (b *Backend) SubmitFrame() error {
	rec := b.recorder
	if rec.State() == RECORDER_STATE_RECORDING && b.target != nil {
		if img := b.target.PresentImage(); img != nil {
			if err := img.EnsurePresentable(rec); err != nil {
				return err
			}
		}
	}
	presenting := b.presenter != nil && b.frameAcquired
	if presenting {
		rec.AddSignalSemaphore(b.renderFinished)
	}
	if err := rec.Submit(false, true); err != nil {
		return err
	}
	if presenting {
		b.frameAcquired = false
		if err := b.presenter.Present(b.frameImage, b.renderFinished); err != nil {
			return errors.Mark(errors.Wrap(err, "present failed"), core.ErrFrameSubmission)
		}
	}
	b.target = nil
	b.ctx.CollectGarbage()
	b.clock.Update()
	b.ctx.Metrics.EndFrame(b.clock.Elapsed())
	return nil
}

// Statistics returns the counters of the last submitted frame.
func (b *Backend) Statistics() core.FrameStatistics {
	return b.ctx.Metrics.LastFrame()
}

// Shutdown waits for the device and releases everything the backend owns.
func (b *Backend) Shutdown() error {
	if err := b.ctx.Device.WaitIdle(); err != nil {
		core.LogError("device wait idle failed during shutdown: %s", err.Error())
	}
	b.recorder.Destroy()
	b.pipelines.Destroy()
	b.shaders.Each(func(id uint32, s *Shader) bool {
		s.Destroy()
		return true
	})
	b.targets.Each(func(id uint32, rt *RenderTarget) bool {
		rt.Destroy(0)
		return true
	})
	if b.renderFinished != 0 {
		b.ctx.Device.DestroySemaphore(b.renderFinished)
		b.renderFinished = 0
	}
	b.ctx.Destroy()
	return nil
}
