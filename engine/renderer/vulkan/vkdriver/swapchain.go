package vkdriver

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type swapchainSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (swapchainSupport, error) {
	var support swapchainSupport
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &support.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return support, err
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return support, err
	}
	if formatCount > 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, support.Formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return support, err
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return support, err
	}
	if modeCount > 0 {
		support.PresentModes = make([]vk.PresentMode, modeCount)
		if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, support.PresentModes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return support, err
		}
	}
	return support, nil
}

// Swapchain presents to the device's window surface. Its images are wrapped
// as textures so render targets can draw into them.
type Swapchain struct {
	device *Device
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent driver.Extent2D
	vsync  bool

	images []*metadata.Texture
	depth  *metadata.Texture

	// One acquire semaphore per image, used round robin.
	available []driver.Semaphore
	next      int
	stale     bool
}

// NewSwapchain creates a swapchain sized to the window's framebuffer.
func NewSwapchain(d *Device, vsync bool) (*Swapchain, error) {
	sc := &Swapchain{device: d, vsync: vsync}
	width, height := d.window.FramebufferSize()
	if err := sc.create(width, height); err != nil {
		return nil, err
	}
	return sc, nil
}

func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func (sc *Swapchain) create(width, height uint32) error {
	d := sc.device
	support, err := querySwapchainSupport(d.physical, d.surface)
	if err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	sc.format = chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes, sc.vsync)

	caps := support.Capabilities
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     sc.handle,
	}
	if d.graphicsQueueIndex != d.presentQueueIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.graphicsQueueIndex, d.presentQueueIndex}
	}

	var handle vk.Swapchain
	if err := resultError(vk.CreateSwapchain(d.logical, &info, nil, &handle), "vkCreateSwapchainKHR"); err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return err
	}
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.logical, sc.handle, nil)
	}
	sc.handle = handle
	sc.extent = driver.Extent2D{Width: extent.Width, Height: extent.Height}
	sc.stale = false

	var count uint32
	if err := resultError(vk.GetSwapchainImages(d.logical, handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	images := make([]vk.Image, count)
	if err := resultError(vk.GetSwapchainImages(d.logical, handle, &count, images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}

	format := driver.Format(sc.format.Format)
	for i, img := range images {
		wrapped := d.wrapImage(img)
		view, err := d.CreateImageView(driver.ImageViewDesc{Image: wrapped, Format: format, Aspect: driver.ImageAspectColor})
		if err != nil {
			d.DestroyImage(wrapped)
			return err
		}
		sc.images = append(sc.images, &metadata.Texture{
			ID:           uint32(i),
			Name:         fmt.Sprintf("swapchain_image_%d", i),
			Image:        wrapped,
			View:         view,
			Format:       format,
			Extent:       sc.extent,
			Flags:        metadata.TextureFlagIsWrapped | metadata.TextureFlagIsWriteable,
			LayoutRecord: core.InvalidID,
		})
	}

	if d.depthFormat != vk.FormatUndefined {
		depthFormat := driver.Format(d.depthFormat)
		img, err := d.CreateImage(driver.ImageDesc{
			Format:  depthFormat,
			Extent:  sc.extent,
			Usage:   driver.ImageUsageDepthAttachment,
			Samples: 1,
		})
		if err != nil {
			return err
		}
		view, err := d.CreateImageView(driver.ImageViewDesc{Image: img, Format: depthFormat, Aspect: driver.ImageAspectDepth})
		if err != nil {
			d.DestroyImage(img)
			return err
		}
		sc.depth = &metadata.Texture{
			Name:         "swapchain_depth",
			Image:        img,
			View:         view,
			Format:       depthFormat,
			Extent:       sc.extent,
			Flags:        metadata.TextureFlagDepth | metadata.TextureFlagIsWriteable,
			LayoutRecord: core.InvalidID,
		}
	}

	for len(sc.available) < len(sc.images) {
		s, err := d.CreateSemaphore()
		if err != nil {
			return err
		}
		sc.available = append(sc.available, s)
	}
	core.LogInfo("Swapchain created: %d images, %dx%d.", len(sc.images), sc.extent.Width, sc.extent.Height)
	return nil
}

func (sc *Swapchain) releaseImages() {
	d := sc.device
	for _, tex := range sc.images {
		d.DestroyImageView(tex.View)
		d.DestroyImage(tex.Image)
	}
	sc.images = sc.images[:0]
	if sc.depth != nil {
		d.DestroyImageView(sc.depth.View)
		d.DestroyImage(sc.depth.Image)
		sc.depth = nil
	}
}

// Recreate rebuilds the swapchain for the current framebuffer size. The
// textures returned before are invalid afterwards.
func (sc *Swapchain) Recreate() error {
	d := sc.device
	if err := d.WaitIdle(); err != nil {
		return err
	}
	width, height := d.window.FramebufferSize()
	if width == 0 || height == 0 {
		return errors.Wrap(ErrOutOfDate, "framebuffer has zero size")
	}
	sc.releaseImages()
	return sc.create(width, height)
}

// Acquire implements the backend's presenter.
func (sc *Swapchain) Acquire() (uint32, driver.Semaphore, error) {
	d := sc.device
	ready := sc.available[sc.next]
	s, ok := d.semaphores.get(uint64(ready))
	if !ok {
		return 0, 0, errors.Wrapf(driver.ErrInvalidHandle, "semaphore %d", ready)
	}
	var index uint32
	result := vk.AcquireNextImage(d.logical, sc.handle, math.MaxUint64, s, vk.NullFence, &index)
	if result == vk.Suboptimal {
		sc.stale = true
	}
	if err := resultError(result, "vkAcquireNextImageKHR"); err != nil {
		return 0, 0, err
	}
	sc.next = (sc.next + 1) % len(sc.available)
	return index, ready, nil
}

// Present implements the backend's presenter. A suboptimal swapchain is
// presented and reported by Stale.
func (sc *Swapchain) Present(index uint32, wait driver.Semaphore) error {
	d := sc.device
	s, ok := d.semaphores.get(uint64(wait))
	if !ok {
		return errors.Wrapf(driver.ErrInvalidHandle, "semaphore %d", wait)
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{index},
	}
	d.queueLock.Lock()
	result := vk.QueuePresent(d.presentQueue, &info)
	d.queueLock.Unlock()
	if result == vk.Suboptimal {
		sc.stale = true
	}
	return resultError(result, "vkQueuePresentKHR")
}

// Stale reports whether the surface changed and the swapchain should be
// recreated.
func (sc *Swapchain) Stale() bool {
	return sc.stale
}

func (sc *Swapchain) Images() []*metadata.Texture {
	return sc.images
}

// Depth returns nil when the device has no depth format.
func (sc *Swapchain) Depth() *metadata.Texture {
	return sc.depth
}

func (sc *Swapchain) Extent() driver.Extent2D {
	return sc.extent
}

func (sc *Swapchain) Destroy() {
	d := sc.device
	if d.logical == nil {
		return
	}
	d.WaitIdle()
	sc.releaseImages()
	for _, s := range sc.available {
		d.DestroySemaphore(s)
	}
	sc.available = nil
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.logical, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}
