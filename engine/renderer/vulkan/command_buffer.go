package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

type RecorderState int

const (
	RECORDER_STATE_IDLE RecorderState = iota
	RECORDER_STATE_RECORDING
	RECORDER_STATE_PENDING_SUBMIT
	RECORDER_STATE_IN_FLIGHT
)

func (s RecorderState) String() string {
	switch s {
	case RECORDER_STATE_IDLE:
		return "idle"
	case RECORDER_STATE_RECORDING:
		return "recording"
	case RECORDER_STATE_PENDING_SUBMIT:
		return "pending_submit"
	case RECORDER_STATE_IN_FLIGHT:
		return "in_flight"
	}
	return "unknown"
}

type waitSemaphore struct {
	semaphore driver.Semaphore
	stage     driver.PipelineStage
}

// CommandRecorder owns one reusable command buffer, its completion fence and
// a pair of semaphores signaled alternately by successive submissions. A
// submission waits on the most recent signal of its peer, which is the
// recorder itself unless Link was called.
type CommandRecorder struct {
	ctx  *DeviceContext
	name string

	handle     driver.CommandBuffer
	fence      driver.Fence
	semaphores [2]driver.Semaphore
	// Slot the next submission signals.
	toggle int
	// Most recent signal not yet waited on, 0 when consumed.
	lastSignal driver.Semaphore
	peer       *CommandRecorder

	state            RecorderState
	fenceOutstanding bool
	// Serial of the work being recorded or in flight.
	serial uint64
	// Incremented by every Begin. Consumers compare it to detect a new
	// command buffer.
	generation   uint64
	commandCount int

	inRenderPass   bool
	boundPipeline  driver.Pipeline
	openLabels     int
	externalWaits  []waitSemaphore
	externalSignal []driver.Semaphore
}

func NewCommandRecorder(ctx *DeviceContext, name string) (*CommandRecorder, error) {
	r := &CommandRecorder{
		ctx:  ctx,
		name: name,
	}
	dev := ctx.Device
	cb, err := dev.AllocateCommandBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "recorder `%s`: failed to allocate command buffer", name)
	}
	r.handle = cb

	// The fence starts unsignaled and is only waited on once something was submitted.
	if r.fence, err = dev.CreateFence(false); err != nil {
		r.Destroy()
		return nil, errors.Wrapf(err, "recorder `%s`: failed to create fence", name)
	}
	for i := range r.semaphores {
		if r.semaphores[i], err = dev.CreateSemaphore(); err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "recorder `%s`: failed to create semaphore", name)
		}
	}
	r.peer = r
	return r, nil
}

func (r *CommandRecorder) Context() *DeviceContext { return r.ctx }
func (r *CommandRecorder) Name() string { return r.name }
func (r *CommandRecorder) State() RecorderState { return r.state }
func (r *CommandRecorder) Handle() driver.CommandBuffer { return r.handle }
func (r *CommandRecorder) Serial() uint64 { return r.serial }
func (r *CommandRecorder) Generation() uint64 { return r.generation }
func (r *CommandRecorder) InRenderPass() bool { return r.inRenderPass }
func (r *CommandRecorder) HasPendingWork() bool { return r.commandCount > 0 }
func (r *CommandRecorder) LastSignal() driver.Semaphore { return r.lastSignal }
func (r *CommandRecorder) Semaphores() [2]driver.Semaphore { return r.semaphores }

// Link makes submissions of r wait on the most recent signal of producer.
func (r *CommandRecorder) Link(producer *CommandRecorder) {
	if producer == nil {
		producer = r
	}
	r.peer = producer
}

// AddWaitSemaphore makes the next submission wait on an external semaphore,
// such as a swapchain image acquisition.
func (r *CommandRecorder) AddWaitSemaphore(s driver.Semaphore, stage driver.PipelineStage) {
	r.externalWaits = append(r.externalWaits, waitSemaphore{semaphore: s, stage: stage})
}

// AddSignalSemaphore makes the next submission also signal s.
func (r *CommandRecorder) AddSignalSemaphore(s driver.Semaphore) {
	r.externalSignal = append(r.externalSignal, s)
}

// waitFence blocks on the outstanding fence with a bounded number of timed waits.
func (r *CommandRecorder) waitFence() error {
	if !r.fenceOutstanding {
		return nil
	}
	timeout := r.ctx.Config.FenceTimeout.Duration
	retries := r.ctx.Config.FenceRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		signaled, err := r.ctx.Device.WaitFence(r.fence, timeout)
		if err != nil {
			core.LogError("recorder `%s`: fence wait failed: %s", r.name, err.Error())
			return errors.Wrapf(err, "recorder `%s`: fence wait failed", r.name)
		}
		if signaled {
			r.fenceOutstanding = false
			r.ctx.Timeline.Retire(r.serial)
			if r.state == RECORDER_STATE_IN_FLIGHT {
				r.state = RECORDER_STATE_IDLE
			}
			return nil
		}
		core.LogWarn("recorder `%s`: fence wait timed out after %s (attempt %d/%d)", r.name, timeout, attempt, retries)
		r.ctx.Events.Fire(core.EVENT_CODE_FENCE_TIMEOUT, r,
			core.String("recorder", r.name),
			core.Int("attempt", int64(attempt)),
		)
	}
	err := errors.Wrapf(core.ErrDeviceHang, "recorder `%s`: fence not signaled after %d waits of %s", r.name, retries, timeout)
	core.LogError("%s", err.Error())
	return err
}

// Begin starts a new recording scope, waiting for the previous submission
// first. It does nothing if the recorder is already recording.
func (r *CommandRecorder) Begin() error {
	if r.state == RECORDER_STATE_RECORDING {
		return nil
	}
	if err := core.Assertf(r.state != RECORDER_STATE_PENDING_SUBMIT,
		"recorder `%s`: begin while ended work waits for submission", r.name); err != nil {
		return err
	}
	if err := r.waitFence(); err != nil {
		return err
	}
	dev := r.ctx.Device
	if err := dev.ResetFence(r.fence); err != nil {
		return errors.Wrapf(err, "recorder `%s`: failed to reset fence", r.name)
	}
	if err := dev.ResetCommandBuffer(r.handle); err != nil {
		return errors.Wrapf(err, "recorder `%s`: failed to reset command buffer", r.name)
	}
	if err := dev.BeginCommandBuffer(r.handle, true); err != nil {
		return errors.Wrapf(err, "recorder `%s`: failed to begin command buffer", r.name)
	}
	r.serial = r.ctx.Timeline.Acquire()
	r.generation++
	r.commandCount = 0
	r.boundPipeline = 0
	r.inRenderPass = false
	r.state = RECORDER_STATE_RECORDING
	return nil
}

// End closes an open render pass and the recording scope.
func (r *CommandRecorder) End() error {
	if r.state != RECORDER_STATE_RECORDING {
		return nil
	}
	r.EndRenderPass()
	for r.openLabels > 0 {
		r.PopLabel()
	}
	if err := r.ctx.Device.EndCommandBuffer(r.handle); err != nil {
		return errors.Wrapf(err, "recorder `%s`: failed to end command buffer", r.name)
	}
	r.state = RECORDER_STATE_PENDING_SUBMIT
	return nil
}

// Submit ends recording if needed and hands pending work to the queue. An
// empty recorder is not submitted unless final is set. The queue is drained
// before Submit returns unless pipelined submission is enabled. With rotate a
// new recording scope begins right away.
func (r *CommandRecorder) Submit(rotate, final bool) error {
	if err := r.End(); err != nil {
		return err
	}
	if r.state == RECORDER_STATE_PENDING_SUBMIT {
		if r.commandCount > 0 || final {
			if err := r.submit(final); err != nil {
				return err
			}
		} else {
			// Nothing recorded, the scope is simply dropped.
			r.ctx.Timeline.Retire(r.serial)
			r.state = RECORDER_STATE_IDLE
		}
	}
	if rotate {
		return r.Begin()
	}
	return nil
}

func (r *CommandRecorder) submit(final bool) error {
	info := driver.SubmitInfo{
		CommandBuffer: r.handle,
		Fence:         r.fence,
	}
	for _, w := range r.externalWaits {
		info.WaitSemaphores = append(info.WaitSemaphores, w.semaphore)
		info.WaitStages = append(info.WaitStages, w.stage)
	}
	if r.peer.lastSignal != 0 {
		info.WaitSemaphores = append(info.WaitSemaphores, r.peer.lastSignal)
		info.WaitStages = append(info.WaitStages, driver.PipelineStageAllCommands)
	}
	signal := r.semaphores[r.toggle]
	info.SignalSemaphores = append([]driver.Semaphore{signal}, r.externalSignal...)

	if err := r.ctx.Device.Submit(info); err != nil {
		core.LogError("recorder `%s`: queue submission failed: %s", r.name, err.Error())
		return errors.Mark(errors.Wrapf(err, "recorder `%s`: queue submission failed", r.name), core.ErrFrameSubmission)
	}
	// A binary semaphore wait consumes the signal.
	r.peer.lastSignal = 0
	r.lastSignal = signal
	r.toggle ^= 1
	r.externalWaits = r.externalWaits[:0]
	r.externalSignal = r.externalSignal[:0]
	r.fenceOutstanding = true
	r.state = RECORDER_STATE_IN_FLIGHT

	r.ctx.Metrics.Current().Submissions++
	r.ctx.Events.Fire(core.EVENT_CODE_SUBMIT, r,
		core.String("recorder", r.name),
		core.Uint("serial", r.serial),
		core.Int("wait_semaphores", int64(len(info.WaitSemaphores))),
		core.Uint("signal_semaphore", uint64(signal)),
		core.Bool("final", final),
	)

	if r.ctx.Config.PipelinedSubmission {
		return nil
	}
	if err := r.ctx.Device.QueueWaitIdle(); err != nil {
		return errors.Mark(errors.Wrapf(err, "recorder `%s`: queue wait idle failed", r.name), core.ErrFrameSubmission)
	}
	r.ctx.Timeline.Retire(r.serial)
	return nil
}

// Wait blocks until the last submission of the recorder completed.
func (r *CommandRecorder) Wait() error {
	return r.waitFence()
}

// Destroy waits for outstanding work and releases the device objects.
func (r *CommandRecorder) Destroy() {
	if err := r.waitFence(); err != nil {
		core.LogError("recorder `%s`: destroying with unfinished work: %s", r.name, err.Error())
		_ = r.ctx.Device.WaitIdle()
	}
	if r.state == RECORDER_STATE_RECORDING || r.state == RECORDER_STATE_PENDING_SUBMIT {
		r.ctx.Timeline.Retire(r.serial)
	}
	dev := r.ctx.Device
	if r.handle != 0 {
		dev.FreeCommandBuffer(r.handle)
		r.handle = 0
	}
	if r.fence != 0 {
		dev.DestroyFence(r.fence)
		r.fence = 0
	}
	for i, s := range r.semaphores {
		if s != 0 {
			dev.DestroySemaphore(s)
			r.semaphores[i] = 0
		}
	}
	r.state = RECORDER_STATE_IDLE
}

func (r *CommandRecorder) record(op string) bool {
	if r.state != RECORDER_STATE_RECORDING {
		_ = core.Assertf(false, "recorder `%s`: %s recorded while %s", r.name, op, r.state)
		return false
	}
	r.commandCount++
	return true
}

func (r *CommandRecorder) BeginRenderPass(info driver.RenderPassBeginInfo) error {
	if r.inRenderPass {
		r.EndRenderPass()
	}
	if !r.record("begin render pass") {
		return errors.AssertionFailedf("recorder `%s` is not recording", r.name)
	}
	r.ctx.Device.CmdBeginRenderPass(r.handle, info)
	r.inRenderPass = true
	return nil
}

func (r *CommandRecorder) EndRenderPass() {
	if !r.inRenderPass {
		return
	}
	if r.record("end render pass") {
		r.ctx.Device.CmdEndRenderPass(r.handle)
	}
	r.inRenderPass = false
}

// PipelineBarrier must be recorded outside of a render pass; an open one is ended.
func (r *CommandRecorder) PipelineBarrier(src, dst driver.PipelineStage, barriers []driver.ImageBarrier) error {
	r.EndRenderPass()
	if !r.record("pipeline barrier") {
		return errors.AssertionFailedf("recorder `%s` is not recording", r.name)
	}
	r.ctx.Device.CmdPipelineBarrier(r.handle, src, dst, barriers)
	return nil
}

// BindPipeline skips the command when p is already bound.
func (r *CommandRecorder) BindPipeline(p driver.Pipeline) {
	if p == r.boundPipeline {
		return
	}
	if r.record("bind pipeline") {
		r.ctx.Device.CmdBindPipeline(r.handle, p)
		r.boundPipeline = p
	}
}

func (r *CommandRecorder) BindDescriptorSets(layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	if r.record("bind descriptor sets") {
		r.ctx.Device.CmdBindDescriptorSets(r.handle, layout, first, sets)
	}
}

func (r *CommandRecorder) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if r.record("push constants") {
		r.ctx.Device.CmdPushConstants(r.handle, layout, stages, offset, data)
	}
}

func (r *CommandRecorder) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	if r.record("bind vertex buffers") {
		r.ctx.Device.CmdBindVertexBuffers(r.handle, first, buffers, offsets)
	}
}

func (r *CommandRecorder) BindIndexBuffer(buf driver.Buffer, offset uint64, indexType driver.IndexType) {
	if r.record("bind index buffer") {
		r.ctx.Device.CmdBindIndexBuffer(r.handle, buf, offset, indexType)
	}
}

func (r *CommandRecorder) SetViewport(vp driver.Viewport) {
	if r.record("set viewport") {
		r.ctx.Device.CmdSetViewport(r.handle, vp)
	}
}

func (r *CommandRecorder) SetScissor(rect driver.Rect2D) {
	if r.record("set scissor") {
		r.ctx.Device.CmdSetScissor(r.handle, rect)
	}
}

func (r *CommandRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if r.record("draw") {
		r.ctx.Device.CmdDraw(r.handle, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (r *CommandRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if r.record("draw indexed") {
		r.ctx.Device.CmdDrawIndexed(r.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

// PushLabel opens a debug label region. Labels are dropped when disabled in
// the configuration but are still reported on the debug channel.
func (r *CommandRecorder) PushLabel(label string, color [4]float32) {
	if r.ctx.Config.DebugLabels {
		if !r.record("begin label") {
			return
		}
		r.ctx.Device.CmdBeginLabel(r.handle, label, color)
	}
	r.openLabels++
	r.ctx.Events.Fire(core.EVENT_CODE_DEBUG_LABEL, r,
		core.String("label", label),
		core.Int("depth", int64(r.openLabels)),
	)
}

func (r *CommandRecorder) PopLabel() {
	if r.openLabels == 0 {
		return
	}
	r.openLabels--
	if r.ctx.Config.DebugLabels && r.record("end label") {
		r.ctx.Device.CmdEndLabel(r.handle)
	}
	r.ctx.Events.Fire(core.EVENT_CODE_DEBUG_LABEL, r,
		core.String("label", ""),
		core.Int("depth", int64(r.openLabels)),
	)
}
