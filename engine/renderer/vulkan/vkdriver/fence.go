package vkdriver

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := resultError(vk.CreateFence(d.logical, &info, nil, &fence), "vkCreateFence"); err != nil {
		core.LogError("failed to create fence: %s", err)
		return 0, err
	}
	return driver.Fence(d.fences.add(fence)), nil
}

func (d *Device) DestroyFence(h driver.Fence) {
	if f, ok := d.fences.remove(uint64(h)); ok {
		vk.DestroyFence(d.logical, f, nil)
	}
}

// WaitFence reports false without error when timeout elapses first.
func (d *Device) WaitFence(h driver.Fence, timeout time.Duration) (bool, error) {
	f, ok := d.fences.get(uint64(h))
	if !ok {
		return false, errors.Wrapf(driver.ErrInvalidHandle, "fence %d", h)
	}
	result := vk.WaitForFences(d.logical, 1, []vk.Fence{f}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return false, nil
	}
	err := resultError(result, "vkWaitForFences")
	core.LogError("%s", err.Error())
	return false, err
}

func (d *Device) ResetFence(h driver.Fence) error {
	f, ok := d.fences.get(uint64(h))
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "fence %d", h)
	}
	if err := resultError(vk.ResetFences(d.logical, 1, []vk.Fence{f}), "vkResetFences"); err != nil {
		core.LogError("failed to reset fence: %s", err)
		return err
	}
	return nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var s vk.Semaphore
	if err := resultError(vk.CreateSemaphore(d.logical, &info, nil, &s), "vkCreateSemaphore"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.Semaphore(d.semaphores.add(s)), nil
}

func (d *Device) DestroySemaphore(h driver.Semaphore) {
	if s, ok := d.semaphores.remove(uint64(h)); ok {
		vk.DestroySemaphore(d.logical, s, nil)
	}
}

func (d *Device) semaphoreList(handles []driver.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(handles))
	for i, h := range handles {
		s, ok := d.semaphores.get(uint64(h))
		if !ok {
			return nil, errors.Wrapf(driver.ErrInvalidHandle, "semaphore %d", h)
		}
		out[i] = s
	}
	return out, nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	cb, ok := d.commandBuffers.get(uint64(info.CommandBuffer))
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "command buffer %d", info.CommandBuffer)
	}
	waits, err := d.semaphoreList(info.WaitSemaphores)
	if err != nil {
		return err
	}
	signals, err := d.semaphoreList(info.SignalSemaphores)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = vk.PipelineStageFlags(s)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	var fence vk.Fence
	if info.Fence != 0 {
		f, ok := d.fences.get(uint64(info.Fence))
		if !ok {
			return errors.Wrapf(driver.ErrInvalidHandle, "fence %d", info.Fence)
		}
		fence = f
	}

	d.queueLock.Lock()
	defer d.queueLock.Unlock()
	if err := resultError(vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit"); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	return nil
}

func (d *Device) QueueWaitIdle() error {
	d.queueLock.Lock()
	defer d.queueLock.Unlock()
	return resultError(vk.QueueWaitIdle(d.graphicsQueue), "vkQueueWaitIdle")
}

func (d *Device) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(d.logical), "vkDeviceWaitIdle")
}
