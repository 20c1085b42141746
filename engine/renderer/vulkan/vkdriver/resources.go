package vkdriver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

type buffer struct {
	handle      vk.Buffer
	memory      vk.DeviceMemory
	size        uint64
	hostVisible bool
}

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	// Swapchain images are owned by the swapchain and never freed here.
	owned bool
}

func (d *Device) allocate(req vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	req.Deref()
	index, ok := d.memoryIndex(req.MemoryTypeBits, flags)
	if !ok {
		return nil, errors.Wrap(driver.ErrOutOfDeviceMemory, "no memory type matches the requested properties")
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := resultError(vk.AllocateMemory(d.logical, &allocInfo, nil, &memory), "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return memory, nil
}

func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b := &buffer{size: desc.Size, hostVisible: desc.HostVisible}
	if err := resultError(vk.CreateBuffer(d.logical, &info, nil, &b.handle), "vkCreateBuffer"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, b.handle, &req)
	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.HostVisible {
		flags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	memory, err := d.allocate(req, flags)
	if err != nil {
		vk.DestroyBuffer(d.logical, b.handle, nil)
		core.LogError("failed to allocate buffer memory: %s", err)
		return 0, err
	}
	b.memory = memory
	if err := resultError(vk.BindBufferMemory(d.logical, b.handle, b.memory, 0), "vkBindBufferMemory"); err != nil {
		vk.DestroyBuffer(d.logical, b.handle, nil)
		vk.FreeMemory(d.logical, b.memory, nil)
		return 0, err
	}
	return driver.Buffer(d.buffers.add(b)), nil
}

func (d *Device) WriteBuffer(buf driver.Buffer, offset uint64, data []byte) error {
	b, ok := d.buffers.get(uint64(buf))
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "buffer %d", buf)
	}
	if !b.hostVisible {
		return errors.Newf("buffer %d is not host visible", buf)
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, buf, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	var mapped unsafe.Pointer
	if err := resultError(vk.MapMemory(d.logical, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped), "vkMapMemory"); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.logical, b.memory)
	return nil
}

func (d *Device) DestroyBuffer(buf driver.Buffer) {
	b, ok := d.buffers.remove(uint64(buf))
	if !ok {
		return
	}
	vk.DestroyBuffer(d.logical, b.handle, nil)
	vk.FreeMemory(d.logical, b.memory, nil)
}

func sampleCount(samples uint32) vk.SampleCountFlagBits {
	if samples == 0 {
		return vk.SampleCount1Bit
	}
	// The sample count bits equal the count.
	return vk.SampleCountFlagBits(samples)
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       sampleCount(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	img := &image{owned: true}
	if err := resultError(vk.CreateImage(d.logical, &info, nil, &img.handle), "vkCreateImage"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, img.handle, &req)
	memory, err := d.allocate(req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.logical, img.handle, nil)
		core.LogError("failed to allocate image memory: %s", err)
		return 0, err
	}
	img.memory = memory
	if err := resultError(vk.BindImageMemory(d.logical, img.handle, img.memory, 0), "vkBindImageMemory"); err != nil {
		vk.DestroyImage(d.logical, img.handle, nil)
		vk.FreeMemory(d.logical, img.memory, nil)
		return 0, err
	}
	return driver.Image(d.images.add(img)), nil
}

// wrapImage registers an image owned by someone else, the swapchain.
func (d *Device) wrapImage(handle vk.Image) driver.Image {
	return driver.Image(d.images.add(&image{handle: handle}))
}

func (d *Device) DestroyImage(h driver.Image) {
	img, ok := d.images.remove(uint64(h))
	if !ok || !img.owned {
		return
	}
	vk.DestroyImage(d.logical, img.handle, nil)
	vk.FreeMemory(d.logical, img.memory, nil)
}

func (d *Device) CreateImageView(desc driver.ImageViewDesc) (driver.ImageView, error) {
	img, ok := d.images.get(uint64(desc.Image))
	if !ok {
		return 0, errors.Wrapf(driver.ErrInvalidHandle, "image %d", desc.Image)
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(desc.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := resultError(vk.CreateImageView(d.logical, &info, nil, &view), "vkCreateImageView"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.ImageView(d.views.add(view)), nil
}

func (d *Device) DestroyImageView(h driver.ImageView) {
	if view, ok := d.views.remove(uint64(h)); ok {
		vk.DestroyImageView(d.logical, view, nil)
	}
}

func (d *Device) CreateSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	anisotropy := desc.MaxAnisotropy
	if anisotropy > d.limits.MaxSamplerAnisotropy {
		anisotropy = d.limits.MaxSamplerAnisotropy
	}
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(desc.MagFilter),
		MinFilter:               vk.Filter(desc.MinFilter),
		AddressModeU:            vk.SamplerAddressMode(desc.AddressU),
		AddressModeV:            vk.SamplerAddressMode(desc.AddressV),
		AddressModeW:            vk.SamplerAddressMode(desc.AddressW),
		AnisotropyEnable:        boolToVk(anisotropy > 1),
		MaxAnisotropy:           anisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           boolToVk(desc.Compare),
		CompareOp:               vk.CompareOp(desc.CompareOp),
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  1.0,
	}
	var sampler vk.Sampler
	if err := resultError(vk.CreateSampler(d.logical, &info, nil, &sampler), "vkCreateSampler"); err != nil {
		core.LogError("%s", err.Error())
		return 0, err
	}
	return driver.Sampler(d.samplers.add(sampler)), nil
}

func (d *Device) DestroySampler(h driver.Sampler) {
	if s, ok := d.samplers.remove(uint64(h)); ok {
		vk.DestroySampler(d.logical, s, nil)
	}
}
