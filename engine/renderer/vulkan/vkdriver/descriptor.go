package vkdriver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

// descriptorPool remembers the sets it handed out so a reset can drop their
// handles.
type descriptorPool struct {
	handle vk.DescriptorPool
	sets   []uint64
}

func (d *Device) CreateShaderModule(desc driver.ShaderModuleDesc) (driver.ShaderModule, error) {
	if len(desc.Code) == 0 || len(desc.Code)%4 != 0 {
		return 0, errors.Newf("shader module `%s`: SPIR-V size %d is not a multiple of 4", desc.Name, len(desc.Code))
	}
	words := make([]uint32, len(desc.Code)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(desc.Code)), desc.Code)

	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(desc.Code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := resultError(vk.CreateShaderModule(d.logical, &info, nil, &module), "vkCreateShaderModule"); err != nil {
		core.LogError("shader module `%s`: %s", desc.Name, err)
		return 0, err
	}
	return driver.ShaderModule(d.modules.add(module)), nil
}

func (d *Device) DestroyShaderModule(h driver.ShaderModule) {
	if m, ok := d.modules.remove(uint64(h)); ok {
		vk.DestroyShaderModule(d.logical, m, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := resultError(vk.CreateDescriptorSetLayout(d.logical, &info, nil, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.DescriptorSetLayout(d.setLayouts.add(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(h driver.DescriptorSetLayout) {
	if l, ok := d.setLayouts.remove(uint64(h)); ok {
		vk.DestroyDescriptorSetLayout(d.logical, l, nil)
	}
}

func (d *Device) CreatePipelineLayout(desc driver.PipelineLayoutDesc) (driver.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		l, ok := d.setLayouts.get(uint64(h))
		if !ok {
			return 0, errors.Wrapf(driver.ErrInvalidHandle, "descriptor set layout %d", h)
		}
		setLayouts[i] = l
	}
	ranges := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, r := range desc.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := resultError(vk.CreatePipelineLayout(d.logical, &info, nil, &layout), "vkCreatePipelineLayout"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.PipelineLayout(d.pipeLayouts.add(layout)), nil
}

func (d *Device) DestroyPipelineLayout(h driver.PipelineLayout) {
	if l, ok := d.pipeLayouts.remove(uint64(h)); ok {
		vk.DestroyPipelineLayout(d.logical, l, nil)
	}
}

func (d *Device) CreateDescriptorPool(desc driver.DescriptorPoolDesc) (driver.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	p := &descriptorPool{}
	if err := resultError(vk.CreateDescriptorPool(d.logical, &info, nil, &p.handle), "vkCreateDescriptorPool"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.DescriptorPool(d.pools.add(p)), nil
}

func (d *Device) dropSets(p *descriptorPool) {
	for _, h := range p.sets {
		d.sets.remove(h)
	}
	p.sets = p.sets[:0]
}

func (d *Device) ResetDescriptorPool(h driver.DescriptorPool) error {
	p, ok := d.pools.get(uint64(h))
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "descriptor pool %d", h)
	}
	if err := resultError(vk.ResetDescriptorPool(d.logical, p.handle, 0), "vkResetDescriptorPool"); err != nil {
		return err
	}
	d.dropSets(p)
	return nil
}

func (d *Device) DestroyDescriptorPool(h driver.DescriptorPool) {
	p, ok := d.pools.remove(uint64(h))
	if !ok {
		return
	}
	d.dropSets(p)
	vk.DestroyDescriptorPool(d.logical, p.handle, nil)
}

func (d *Device) AllocateDescriptorSet(h driver.DescriptorPool, layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	p, ok := d.pools.get(uint64(h))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "descriptor pool %d", h)
	}
	l, ok := d.setLayouts.get(uint64(layout))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "descriptor set layout %d", layout)
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if err := resultError(vk.AllocateDescriptorSets(d.logical, &info, &set), "vkAllocateDescriptorSets"); err != nil {
		return 0, err
	}
	handle := d.sets.add(set)
	p.sets = append(p.sets, handle)
	return driver.DescriptorSet(handle), nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.get(uint64(w.Set))
		if !ok {
			core.LogWarn("descriptor write to unknown set %d dropped", w.Set)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if w.Type.IsBuffer() {
			infos := make([]vk.DescriptorBufferInfo, 0, len(w.Buffers))
			for _, bi := range w.Buffers {
				b, ok := d.buffers.get(uint64(bi.Buffer))
				if !ok {
					continue
				}
				infos = append(infos, vk.DescriptorBufferInfo{
					Buffer: b.handle,
					Offset: vk.DeviceSize(bi.Offset),
					Range:  vk.DeviceSize(bi.Range),
				})
			}
			write.DescriptorCount = uint32(len(infos))
			write.PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, 0, len(w.Images))
			for _, ii := range w.Images {
				info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayout(ii.Layout)}
				if s, ok := d.samplers.get(uint64(ii.Sampler)); ok {
					info.Sampler = s
				}
				if v, ok := d.views.get(uint64(ii.View)); ok {
					info.ImageView = v
				}
				infos = append(infos, info)
			}
			write.DescriptorCount = uint32(len(infos))
			write.PImageInfo = infos
		}
		if write.DescriptorCount == 0 {
			continue
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
}
