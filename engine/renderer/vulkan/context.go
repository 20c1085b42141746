package vulkan

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/spaghettifunk/vkbridge/engine/containers"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

// Size of the shared zero vertex buffer. Large enough for one row of any
// supported attribute and a whole mat4.
const zeroBufferSize = 64

type setLayoutEntry struct {
	key    string
	handle driver.DescriptorSetLayout
	refs   int
}

type deferredRelease struct {
	serial  uint64
	name    string
	release func()
}

// DeviceContext is created once per logical device and passed explicitly to
// every component. It owns the caches shared by all shaders and recorders on
// that device.
type DeviceContext struct {
	ID      uuid.UUID
	Device  driver.Device
	Limits  driver.Limits
	Config  core.RendererConfig
	Events  *core.EventBus
	Metrics *core.Metrics

	Timeline *Timeline

	locks      *LockPool
	samplers   map[driver.SamplerDesc]driver.Sampler
	setLayouts *core.Arena[*setLayoutEntry]
	layoutKeys map[string]uint32
	images     *core.Arena[*ImageLayoutState]
	releases   *containers.RingQueue[deferredRelease]
	zeroBuffer driver.Buffer
	identities uint64
	destroyed  bool
}

func NewDeviceContext(device driver.Device, cfg core.RendererConfig) (*DeviceContext, error) {
	if device == nil {
		return nil, errors.New("device context requires a device")
	}
	ctx := &DeviceContext{
		ID:         uuid.New(),
		Device:     device,
		Limits:     device.Limits(),
		Config:     cfg,
		Events:     core.NewEventBus(cfg.Trace),
		Metrics:    core.NewMetrics(),
		Timeline:   NewTimeline(),
		locks:      NewLockPool(),
		samplers:   make(map[driver.SamplerDesc]driver.Sampler),
		setLayouts: core.NewArena[*setLayoutEntry](16),
		layoutKeys: make(map[string]uint32),
		images:     core.NewArena[*ImageLayoutState](8),
		releases:   containers.NewRingQueue[deferredRelease](0),
	}

	buf, err := device.CreateBuffer(driver.BufferDesc{
		Size:        zeroBufferSize,
		Usage:       driver.BufferUsageVertex,
		HostVisible: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the zero vertex buffer")
	}
	if err := device.WriteBuffer(buf, 0, make([]byte, zeroBufferSize)); err != nil {
		device.DestroyBuffer(buf)
		return nil, errors.Wrap(err, "failed to clear the zero vertex buffer")
	}
	ctx.zeroBuffer = buf

	core.Logger("context", ctx.ID.String()).Infof("device context created on `%s`", device.Name())
	return ctx, nil
}

// RotationDepth is the number of descriptor sets per layout that may be live.
func (c *DeviceContext) RotationDepth() int {
	if c.Config.RotationDepth < core.MinRotationDepth {
		return core.MinRotationDepth
	}
	return c.Config.RotationDepth
}

// ZeroBuffer is bound for vertex attributes no buffer supplies.
func (c *DeviceContext) ZeroBuffer() driver.Buffer {
	return c.zeroBuffer
}

// NextIdentity returns a process unique identity for cache keys. Unlike arena
// indices identities are never reused.
func (c *DeviceContext) NextIdentity() uint64 {
	c.identities++
	return c.identities
}

// Sampler returns the cached sampler for desc, creating it on first use.
func (c *DeviceContext) Sampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	var out driver.Sampler
	err := c.locks.SafeCall(SamplerManagement, func() error {
		if s, ok := c.samplers[desc]; ok {
			out = s
			return nil
		}
		if desc.MaxAnisotropy > c.Limits.MaxSamplerAnisotropy {
			desc.MaxAnisotropy = c.Limits.MaxSamplerAnisotropy
		}
		s, err := c.Device.CreateSampler(desc)
		if err != nil {
			return errors.Wrap(err, "failed to create sampler")
		}
		c.samplers[desc] = s
		out = s
		return nil
	})
	return out, err
}

func setLayoutKey(bindings []driver.DescriptorSetLayoutBinding) string {
	var sb strings.Builder
	for _, b := range bindings {
		fmt.Fprintf(&sb, "%d:%d:%d:%d;", b.Binding, b.Type, b.Count, b.Stages)
	}
	return sb.String()
}

// AcquireSetLayout returns a shared descriptor set layout for bindings. The
// caller keeps the returned id and hands it back to ReleaseSetLayout.
func (c *DeviceContext) AcquireSetLayout(bindings []driver.DescriptorSetLayoutBinding) (uint32, driver.DescriptorSetLayout, error) {
	var (
		id     uint32
		handle driver.DescriptorSetLayout
	)
	err := c.locks.SafeCall(LayoutManagement, func() error {
		key := setLayoutKey(bindings)
		if existing, ok := c.layoutKeys[key]; ok {
			entry, _ := c.setLayouts.Get(existing)
			entry.refs++
			id, handle = existing, entry.handle
			return nil
		}
		l, err := c.Device.CreateDescriptorSetLayout(bindings)
		if err != nil {
			return errors.Wrap(err, "failed to create descriptor set layout")
		}
		id = c.setLayouts.Acquire(&setLayoutEntry{key: key, handle: l, refs: 1})
		c.layoutKeys[key] = id
		handle = l
		return nil
	})
	return id, handle, err
}

// ReleaseSetLayout drops one reference. The layout is destroyed with the last one.
func (c *DeviceContext) ReleaseSetLayout(id uint32) {
	_ = c.locks.SafeCall(LayoutManagement, func() error {
		entry, ok := c.setLayouts.Get(id)
		if !ok {
			core.LogWarn("release of unknown descriptor set layout %d", id)
			return nil
		}
		entry.refs--
		if entry.refs > 0 {
			return nil
		}
		delete(c.layoutKeys, entry.key)
		c.Device.DestroyDescriptorSetLayout(entry.handle)
		return c.setLayouts.Release(id)
	})
}

// SetLayoutCount returns how many distinct set layouts are alive.
func (c *DeviceContext) SetLayoutCount() int {
	return c.setLayouts.Len()
}

// TrackImage registers the layout record of an image and returns its index.
func (c *DeviceContext) TrackImage(name string, image driver.Image, aspect driver.ImageAspect, initial driver.ImageLayout) uint32 {
	var id uint32
	_ = c.locks.SafeCall(ImageManagement, func() error {
		id = c.images.Acquire(newImageLayoutState(name, image, aspect, initial))
		return nil
	})
	return id
}

func (c *DeviceContext) ImageState(id uint32) (*ImageLayoutState, bool) {
	var (
		state *ImageLayoutState
		ok    bool
	)
	_ = c.locks.SafeCall(ImageManagement, func() error {
		state, ok = c.images.Get(id)
		return nil
	})
	return state, ok
}

func (c *DeviceContext) UntrackImage(id uint32) {
	_ = c.locks.SafeCall(ImageManagement, func() error {
		return c.images.Release(id)
	})
}

// DeferRelease runs release once all work up to serial completed on the device.
func (c *DeviceContext) DeferRelease(serial uint64, name string, release func()) {
	if c.Timeline.IsComplete(serial) {
		release()
		return
	}
	_ = c.locks.SafeCall(ReleaseManagement, func() error {
		return c.releases.Enqueue(deferredRelease{serial: serial, name: name, release: release})
	})
}

// CollectGarbage runs the deferred releases whose work completed. It returns
// how many ran.
func (c *DeviceContext) CollectGarbage() int {
	completed := c.Timeline.Completed()
	n := 0
	_ = c.locks.SafeCall(ReleaseManagement, func() error {
		for !c.releases.IsEmpty() {
			next, _ := c.releases.Peek()
			if next.serial > completed {
				break
			}
			_, _ = c.releases.Dequeue()
			core.LogDebug("releasing `%s` (serial %d)", next.name, next.serial)
			next.release()
			n++
		}
		return nil
	})
	return n
}

// PendingReleases returns the number of objects waiting for the device.
func (c *DeviceContext) PendingReleases() int {
	return c.releases.Len()
}

// Destroy waits for the device, runs every pending release and destroys the
// shared caches. The context cannot be used afterwards.
func (c *DeviceContext) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if err := c.Device.WaitIdle(); err != nil {
		core.LogError("device wait idle failed during shutdown: %s", err.Error())
	}
	for !c.releases.IsEmpty() {
		next, _ := c.releases.Dequeue()
		next.release()
	}
	for desc, s := range c.samplers {
		c.Device.DestroySampler(s)
		delete(c.samplers, desc)
	}
	c.setLayouts.Each(func(id uint32, entry *setLayoutEntry) bool {
		core.LogWarn("descriptor set layout %d still referenced %d times at shutdown", id, entry.refs)
		c.Device.DestroyDescriptorSetLayout(entry.handle)
		return true
	})
	c.Device.DestroyBuffer(c.zeroBuffer)
	c.Events.Shutdown()
	core.Logger("context", c.ID.String()).Info("device context destroyed")
}
