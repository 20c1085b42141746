// Package drivertest provides a recording driver.Device that completes work
// instantly. Tests inspect the recorded commands and counters.
package drivertest

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

type Op string

const (
	OpBeginRenderPass    Op = "begin_render_pass"
	OpEndRenderPass      Op = "end_render_pass"
	OpBindPipeline       Op = "bind_pipeline"
	OpBindDescriptorSets Op = "bind_descriptor_sets"
	OpPushConstants      Op = "push_constants"
	OpBindVertexBuffers  Op = "bind_vertex_buffers"
	OpBindIndexBuffer    Op = "bind_index_buffer"
	OpSetViewport        Op = "set_viewport"
	OpSetScissor         Op = "set_scissor"
	OpDraw               Op = "draw"
	OpDrawIndexed        Op = "draw_indexed"
	OpPipelineBarrier    Op = "pipeline_barrier"
	OpBeginLabel         Op = "begin_label"
	OpEndLabel           Op = "end_label"
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op            Op
	CommandBuffer driver.CommandBuffer

	Pipeline       driver.Pipeline
	PipelineLayout driver.PipelineLayout
	FirstSet       uint32
	Sets           []driver.DescriptorSet
	Stages         driver.ShaderStage
	Offset         uint32
	Data           []byte
	Buffers        []driver.Buffer
	Offsets        []uint64
	RenderPass     driver.RenderPassBeginInfo
	Barriers       []driver.ImageBarrier
	SrcStage       driver.PipelineStage
	DstStage       driver.PipelineStage
	Label          string

	VertexCount   uint32
	IndexCount    uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

type commandBuffer struct {
	recording bool
	begins    int
}

type pool struct {
	maxSets   uint32
	allocated uint32
}

// Device implements driver.Device in memory.
type Device struct {
	limits driver.Limits
	next   uint64

	Commands []Command
	Submits  []driver.SubmitInfo
	// DescriptorUpdates holds one entry per UpdateDescriptorSets call.
	DescriptorUpdates [][]driver.DescriptorWrite
	Pipelines         []driver.GraphicsPipelineDesc
	SetLayouts        [][]driver.DescriptorSetLayoutBinding
	PipelineLayouts   []driver.PipelineLayoutDesc
	PoolDescs         []driver.DescriptorPoolDesc
	Samplers          []driver.SamplerDesc
	BufferWrites      map[driver.Buffer][]byte

	AllocatedSets     int
	FenceWaits        int
	FenceResets       int
	QueueIdleWaits    int
	DestroyedPipeline []driver.Pipeline
	Destroyed         int

	// FailNextPipelines makes the next N CreateGraphicsPipeline calls fail with
	// ErrOutOfDeviceMemory.
	FailNextPipelines int
	// FailNextPools makes the next N CreateDescriptorPool calls fail.
	FailNextPools int
	// FenceTimeouts makes the next N WaitFence calls time out.
	FenceTimeouts int
	// HoldCompletion keeps submitted fences unsignaled until Complete is called.
	HoldCompletion bool
	SubmitErr      error

	pools    map[driver.DescriptorPool]*pool
	fences   map[driver.Fence]bool
	pending  []driver.Fence
	cmdBufs  map[driver.CommandBuffer]*commandBuffer
	labelTop int
}

var _ driver.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		limits:       driver.DefaultLimits(),
		BufferWrites: make(map[driver.Buffer][]byte),
		pools:        make(map[driver.DescriptorPool]*pool),
		fences:       make(map[driver.Fence]bool),
		cmdBufs:      make(map[driver.CommandBuffer]*commandBuffer),
	}
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) Name() string { return "drivertest" }
func (d *Device) Limits() driver.Limits { return d.limits }
func (d *Device) SetLimits(l driver.Limits) {
	d.limits = l
}
func (d *Device) Destroy() {}

func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	b := driver.Buffer(d.handle())
	d.BufferWrites[b] = make([]byte, desc.Size)
	return b, nil
}

func (d *Device) WriteBuffer(buf driver.Buffer, offset uint64, data []byte) error {
	mem, ok := d.BufferWrites[buf]
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "buffer %d", buf)
	}
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return errors.Newf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, len(mem))
	}
	copy(mem[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(buf driver.Buffer) {
	delete(d.BufferWrites, buf)
	d.Destroyed++
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	return driver.Image(d.handle()), nil
}
func (d *Device) DestroyImage(img driver.Image) { d.Destroyed++ }
func (d *Device) CreateImageView(desc driver.ImageViewDesc) (driver.ImageView, error) {
	return driver.ImageView(d.handle()), nil
}
func (d *Device) DestroyImageView(view driver.ImageView) { d.Destroyed++ }

func (d *Device) CreateSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	d.Samplers = append(d.Samplers, desc)
	return driver.Sampler(d.handle()), nil
}
func (d *Device) DestroySampler(s driver.Sampler) { d.Destroyed++ }

func (d *Device) CreateShaderModule(desc driver.ShaderModuleDesc) (driver.ShaderModule, error) {
	if len(desc.Code) == 0 {
		return 0, errors.Newf("shader module `%s` has no code", desc.Name)
	}
	return driver.ShaderModule(d.handle()), nil
}
func (d *Device) DestroyShaderModule(m driver.ShaderModule) { d.Destroyed++ }

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	d.SetLayouts = append(d.SetLayouts, append([]driver.DescriptorSetLayoutBinding(nil), bindings...))
	return driver.DescriptorSetLayout(d.handle()), nil
}
func (d *Device) DestroyDescriptorSetLayout(l driver.DescriptorSetLayout) { d.Destroyed++ }

func (d *Device) CreatePipelineLayout(desc driver.PipelineLayoutDesc) (driver.PipelineLayout, error) {
	d.PipelineLayouts = append(d.PipelineLayouts, desc)
	return driver.PipelineLayout(d.handle()), nil
}
func (d *Device) DestroyPipelineLayout(l driver.PipelineLayout) { d.Destroyed++ }

func (d *Device) CreateDescriptorPool(desc driver.DescriptorPoolDesc) (driver.DescriptorPool, error) {
	if d.FailNextPools > 0 {
		d.FailNextPools--
		return 0, driver.ErrOutOfDeviceMemory
	}
	d.PoolDescs = append(d.PoolDescs, desc)
	p := driver.DescriptorPool(d.handle())
	d.pools[p] = &pool{maxSets: desc.MaxSets}
	return p, nil
}

func (d *Device) ResetDescriptorPool(p driver.DescriptorPool) error {
	pl, ok := d.pools[p]
	if !ok {
		return driver.ErrInvalidHandle
	}
	pl.allocated = 0
	return nil
}

func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	delete(d.pools, p)
	d.Destroyed++
}

func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	pl, ok := d.pools[p]
	if !ok {
		return 0, driver.ErrInvalidHandle
	}
	if pl.allocated >= pl.maxSets {
		return 0, driver.ErrOutOfPoolMemory
	}
	pl.allocated++
	d.AllocatedSets++
	return driver.DescriptorSet(d.handle()), nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	d.DescriptorUpdates = append(d.DescriptorUpdates, append([]driver.DescriptorWrite(nil), writes...))
}

func (d *Device) CreateGraphicsPipeline(desc driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	if d.FailNextPipelines > 0 {
		d.FailNextPipelines--
		return 0, driver.ErrOutOfDeviceMemory
	}
	d.Pipelines = append(d.Pipelines, desc)
	return driver.Pipeline(d.handle()), nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	d.DestroyedPipeline = append(d.DestroyedPipeline, p)
	d.Destroyed++
}

func (d *Device) CreateRenderPass(desc driver.RenderPassDesc) (driver.RenderPass, error) {
	return driver.RenderPass(d.handle()), nil
}
func (d *Device) DestroyRenderPass(rp driver.RenderPass) { d.Destroyed++ }
func (d *Device) CreateFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	return driver.Framebuffer(d.handle()), nil
}
func (d *Device) DestroyFramebuffer(fb driver.Framebuffer) { d.Destroyed++ }

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	f := driver.Fence(d.handle())
	d.fences[f] = signaled
	return f, nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	delete(d.fences, f)
	d.Destroyed++
}

func (d *Device) WaitFence(f driver.Fence, timeout time.Duration) (bool, error) {
	d.FenceWaits++
	signaled, ok := d.fences[f]
	if !ok {
		return false, driver.ErrInvalidHandle
	}
	if signaled {
		return true, nil
	}
	if d.FenceTimeouts > 0 {
		d.FenceTimeouts--
		return false, nil
	}
	if d.HoldCompletion {
		return false, nil
	}
	d.fences[f] = true
	return true, nil
}

func (d *Device) ResetFence(f driver.Fence) error {
	if _, ok := d.fences[f]; !ok {
		return driver.ErrInvalidHandle
	}
	d.FenceResets++
	d.fences[f] = false
	return nil
}

// FenceSignaled reports the state of f.
func (d *Device) FenceSignaled(f driver.Fence) bool {
	return d.fences[f]
}

// Complete signals every fence submitted while HoldCompletion was set.
func (d *Device) Complete() {
	for _, f := range d.pending {
		d.fences[f] = true
	}
	d.pending = nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	return driver.Semaphore(d.handle()), nil
}
func (d *Device) DestroySemaphore(s driver.Semaphore) { d.Destroyed++ }

func (d *Device) Submit(info driver.SubmitInfo) error {
	if d.SubmitErr != nil {
		return d.SubmitErr
	}
	cb, ok := d.cmdBufs[info.CommandBuffer]
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "command buffer %d", info.CommandBuffer)
	}
	if cb.recording {
		return errors.Newf("command buffer %d submitted while recording", info.CommandBuffer)
	}
	d.Submits = append(d.Submits, info)
	if info.Fence != 0 {
		if d.HoldCompletion {
			d.pending = append(d.pending, info.Fence)
		} else {
			d.fences[info.Fence] = true
		}
	}
	return nil
}

func (d *Device) QueueWaitIdle() error {
	d.QueueIdleWaits++
	if !d.HoldCompletion {
		d.Complete()
	}
	return nil
}

func (d *Device) WaitIdle() error {
	d.Complete()
	return nil
}

func (d *Device) AllocateCommandBuffer() (driver.CommandBuffer, error) {
	cb := driver.CommandBuffer(d.handle())
	d.cmdBufs[cb] = &commandBuffer{}
	return cb, nil
}

func (d *Device) FreeCommandBuffer(cb driver.CommandBuffer) {
	delete(d.cmdBufs, cb)
	d.Destroyed++
}

func (d *Device) ResetCommandBuffer(cb driver.CommandBuffer) error {
	c, ok := d.cmdBufs[cb]
	if !ok {
		return driver.ErrInvalidHandle
	}
	c.recording = false
	return nil
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer, oneTimeSubmit bool) error {
	c, ok := d.cmdBufs[cb]
	if !ok {
		return driver.ErrInvalidHandle
	}
	if c.recording {
		return errors.Newf("command buffer %d is already recording", cb)
	}
	c.recording = true
	c.begins++
	return nil
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	c, ok := d.cmdBufs[cb]
	if !ok {
		return driver.ErrInvalidHandle
	}
	if !c.recording {
		return errors.Newf("command buffer %d is not recording", cb)
	}
	c.recording = false
	return nil
}

func (d *Device) record(c Command) {
	d.Commands = append(d.Commands, c)
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBuffer, info driver.RenderPassBeginInfo) {
	d.record(Command{Op: OpBeginRenderPass, CommandBuffer: cb, RenderPass: info})
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBuffer) {
	d.record(Command{Op: OpEndRenderPass, CommandBuffer: cb})
}

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, p driver.Pipeline) {
	d.record(Command{Op: OpBindPipeline, CommandBuffer: cb, Pipeline: p})
}

func (d *Device) CmdBindDescriptorSets(cb driver.CommandBuffer, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	d.record(Command{
		Op:             OpBindDescriptorSets,
		CommandBuffer:  cb,
		PipelineLayout: layout,
		FirstSet:       firstSet,
		Sets:           append([]driver.DescriptorSet(nil), sets...),
	})
}

func (d *Device) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	d.record(Command{
		Op:             OpPushConstants,
		CommandBuffer:  cb,
		PipelineLayout: layout,
		Stages:         stages,
		Offset:         offset,
		Data:           append([]byte(nil), data...),
	})
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBuffer, firstBinding uint32, buffers []driver.Buffer, offsets []uint64) {
	d.record(Command{
		Op:            OpBindVertexBuffers,
		CommandBuffer: cb,
		FirstSet:      firstBinding,
		Buffers:       append([]driver.Buffer(nil), buffers...),
		Offsets:       append([]uint64(nil), offsets...),
	})
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBuffer, buf driver.Buffer, offset uint64, indexType driver.IndexType) {
	d.record(Command{Op: OpBindIndexBuffer, CommandBuffer: cb, Buffers: []driver.Buffer{buf}, Offsets: []uint64{offset}})
}

func (d *Device) CmdSetViewport(cb driver.CommandBuffer, vp driver.Viewport) {
	d.record(Command{Op: OpSetViewport, CommandBuffer: cb})
}

func (d *Device) CmdSetScissor(cb driver.CommandBuffer, rect driver.Rect2D) {
	d.record(Command{Op: OpSetScissor, CommandBuffer: cb})
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(Command{
		Op:            OpDraw,
		CommandBuffer: cb,
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	})
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(Command{
		Op:            OpDrawIndexed,
		CommandBuffer: cb,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

func (d *Device) CmdPipelineBarrier(cb driver.CommandBuffer, src, dst driver.PipelineStage, barriers []driver.ImageBarrier) {
	d.record(Command{
		Op:            OpPipelineBarrier,
		CommandBuffer: cb,
		SrcStage:      src,
		DstStage:      dst,
		Barriers:      append([]driver.ImageBarrier(nil), barriers...),
	})
}

func (d *Device) CmdBeginLabel(cb driver.CommandBuffer, label string, color [4]float32) {
	d.labelTop++
	d.record(Command{Op: OpBeginLabel, CommandBuffer: cb, Label: label})
}

func (d *Device) CmdEndLabel(cb driver.CommandBuffer) {
	d.labelTop--
	d.record(Command{Op: OpEndLabel, CommandBuffer: cb})
}

// Count returns how many commands with op were recorded.
func (d *Device) Count(op Op) int {
	n := 0
	for _, c := range d.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Last returns the most recent command with op.
func (d *Device) Last(op Op) (Command, bool) {
	for i := len(d.Commands) - 1; i >= 0; i-- {
		if d.Commands[i].Op == op {
			return d.Commands[i], true
		}
	}
	return Command{}, false
}

// WriteCount returns the total number of descriptor writes issued.
func (d *Device) WriteCount() int {
	n := 0
	for _, u := range d.DescriptorUpdates {
		n += len(u)
	}
	return n
}

// Recording reports whether cb is between Begin and End.
func (d *Device) Recording(cb driver.CommandBuffer) bool {
	c, ok := d.cmdBufs[cb]
	return ok && c.recording
}

// OpenLabels returns the number of labels begun but not ended.
func (d *Device) OpenLabels() int {
	return d.labelTop
}

// Reset clears the recorded history but keeps every live object.
func (d *Device) Reset() {
	d.Commands = nil
	d.Submits = nil
	d.DescriptorUpdates = nil
	d.Pipelines = nil
	d.AllocatedSets = 0
	d.FenceWaits = 0
	d.FenceResets = 0
	d.QueueIdleWaits = 0
}
