package vkdriver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

func (d *Device) AllocateCommandBuffer() (driver.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := resultError(vk.AllocateCommandBuffers(d.logical, &allocateInfo, buffers), "vkAllocateCommandBuffers"); err != nil {
		core.LogError("failed to allocate command buffer: %s", err)
		return 0, err
	}
	return driver.CommandBuffer(d.commandBuffers.add(buffers[0])), nil
}

func (d *Device) FreeCommandBuffer(h driver.CommandBuffer) {
	if cb, ok := d.commandBuffers.remove(uint64(h)); ok {
		vk.FreeCommandBuffers(d.logical, d.commandPool, 1, []vk.CommandBuffer{cb})
	}
}

func (d *Device) commandBuffer(h driver.CommandBuffer) (vk.CommandBuffer, error) {
	cb, ok := d.commandBuffers.get(uint64(h))
	if !ok {
		return nil, errors.Wrapf(driver.ErrInvalidHandle, "command buffer %d", h)
	}
	return cb, nil
}

func (d *Device) ResetCommandBuffer(h driver.CommandBuffer) error {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return err
	}
	return resultError(vk.ResetCommandBuffer(cb, 0), "vkResetCommandBuffer")
}

func (d *Device) BeginCommandBuffer(h driver.CommandBuffer, oneTimeSubmit bool) error {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := resultError(vk.BeginCommandBuffer(cb, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		core.LogError("failed to begin command buffer: %s", err)
		return err
	}
	return nil
}

func (d *Device) EndCommandBuffer(h driver.CommandBuffer) error {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return err
	}
	if err := resultError(vk.EndCommandBuffer(cb), "vkEndCommandBuffer"); err != nil {
		core.LogError("failed to end command buffer: %s", err)
		return err
	}
	return nil
}

// The Cmd methods drop commands naming unknown handles; the recorder above
// has validated them already.

func (d *Device) CmdBeginRenderPass(h driver.CommandBuffer, info driver.RenderPassBeginInfo) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	rp, ok := d.renderPasses.get(uint64(info.RenderPass))
	if !ok {
		return
	}
	fb, ok := d.framebuffers.get(uint64(info.Framebuffer))
	if !ok {
		return
	}
	clearValues := make([]vk.ClearValue, len(info.ClearColors)+1)
	for i, c := range info.ClearColors {
		clearValues[i].SetColor(c[:])
	}
	clearValues[len(info.ClearColors)].SetDepthStencil(info.ClearDepth, info.ClearStencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.X, Y: info.Area.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(h driver.CommandBuffer) {
	if cb, err := d.commandBuffer(h); err == nil {
		vk.CmdEndRenderPass(cb)
	}
}

func (d *Device) CmdBindPipeline(h driver.CommandBuffer, p driver.Pipeline) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	if pipeline, ok := d.pipelines.get(uint64(p)); ok {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pipeline)
	}
}

func (d *Device) CmdBindDescriptorSets(h driver.CommandBuffer, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	l, ok := d.pipeLayouts.get(uint64(layout))
	if !ok {
		return
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := d.sets.get(uint64(s))
		if !ok {
			core.LogWarn("bind of unknown descriptor set %d dropped", s)
			return
		}
		vkSets[i] = set
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, l, firstSet, uint32(len(vkSets)), vkSets, 0, nil)
}

func (d *Device) CmdPushConstants(h driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	l, ok := d.pipeLayouts.get(uint64(layout))
	if !ok {
		return
	}
	vk.CmdPushConstants(cb, l, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Device) CmdBindVertexBuffers(h driver.CommandBuffer, firstBinding uint32, buffers []driver.Buffer, offsets []uint64) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	vkBuffers := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		buf, ok := d.buffers.get(uint64(b))
		if !ok {
			core.LogWarn("bind of unknown vertex buffer %d dropped", b)
			return
		}
		vkBuffers[i] = buf.handle
		vkOffsets[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(cb, firstBinding, uint32(len(vkBuffers)), vkBuffers, vkOffsets)
}

func (d *Device) CmdBindIndexBuffer(h driver.CommandBuffer, b driver.Buffer, offset uint64, indexType driver.IndexType) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	if buf, ok := d.buffers.get(uint64(b)); ok {
		vk.CmdBindIndexBuffer(cb, buf.handle, vk.DeviceSize(offset), vk.IndexType(indexType))
	}
}

func (d *Device) CmdSetViewport(h driver.CommandBuffer, vp driver.Viewport) {
	if cb, err := d.commandBuffer(h); err == nil {
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
			X:        vp.X,
			Y:        vp.Y,
			Width:    vp.Width,
			Height:   vp.Height,
			MinDepth: vp.MinDepth,
			MaxDepth: vp.MaxDepth,
		}})
	}
}

func (d *Device) CmdSetScissor(h driver.CommandBuffer, rect driver.Rect2D) {
	if cb, err := d.commandBuffer(h); err == nil {
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
			Offset: vk.Offset2D{X: rect.X, Y: rect.Y},
			Extent: vk.Extent2D{Width: rect.Extent.Width, Height: rect.Extent.Height},
		}})
	}
}

func (d *Device) CmdDraw(h driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb, err := d.commandBuffer(h); err == nil {
		vk.CmdDraw(cb, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (d *Device) CmdDrawIndexed(h driver.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, err := d.commandBuffer(h); err == nil {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (d *Device) CmdPipelineBarrier(h driver.CommandBuffer, src, dst driver.PipelineStage, barriers []driver.ImageBarrier) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	vkBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := d.images.get(uint64(b.Image))
		if !ok {
			core.LogWarn("barrier on unknown image %d dropped", b.Image)
			continue
		}
		mips, layers := b.MipCount, b.LayerCount
		if mips == 0 {
			mips = 1
		}
		if layers == 0 {
			layers = 1
		}
		vkBarriers = append(vkBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(b.Aspect),
				BaseMipLevel:   b.BaseMip,
				LevelCount:     mips,
				BaseArrayLayer: b.BaseLayer,
				LayerCount:     layers,
			},
		})
	}
	if len(vkBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0, 0, nil, 0, nil, uint32(len(vkBarriers)), vkBarriers)
}

// The bindings carry no debug marker or debug utils commands, so labels stay
// on the recorder's event bus and record nothing here.
func (d *Device) CmdBeginLabel(h driver.CommandBuffer, label string, color [4]float32) {}

func (d *Device) CmdEndLabel(h driver.CommandBuffer) {}
