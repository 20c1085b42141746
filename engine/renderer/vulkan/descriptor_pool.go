package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/containers"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

// PhysicalDescriptorSet is a device descriptor set owned by a DescriptorPool.
type PhysicalDescriptorSet struct {
	Handle driver.DescriptorSet
	Set    uint32
	// Serial of the last submission that referenced the set.
	lastUse uint64
}

func (p *PhysicalDescriptorSet) LastUse() uint64 {
	return p.lastUse
}

// DescriptorPool hands out descriptor sets of one layout. A set is only
// returned again after the submission that last referenced it completed, so a
// set is never written while the device may read it. Once the rotation depth
// is reached the oldest set is recycled as soon as it completed; otherwise a
// new set is allocated.
type DescriptorPool struct {
	ctx    *DeviceContext
	shader string
	set    uint32
	layout driver.DescriptorSetLayout
	desc   driver.DescriptorPoolDesc
	depth  int

	chunks []driver.DescriptorPool
	// Live sets, oldest first.
	live *containers.RingQueue[*PhysicalDescriptorSet]
}

func NewDescriptorPool(ctx *DeviceContext, shader string, set uint32, layout driver.DescriptorSetLayout, desc driver.DescriptorPoolDesc) *DescriptorPool {
	return &DescriptorPool{
		ctx:    ctx,
		shader: shader,
		set:    set,
		layout: layout,
		desc:   desc,
		depth:  ctx.RotationDepth(),
		live:   containers.NewRingQueue[*PhysicalDescriptorSet](0),
	}
}

// Live returns the number of sets the pool currently owns.
func (p *DescriptorPool) Live() int {
	return p.live.Len()
}

// Chunks returns the number of device pools created so far.
func (p *DescriptorPool) Chunks() int {
	return len(p.chunks)
}

// Acquire returns a set that no pending work references, tagged with serial.
func (p *DescriptorPool) Acquire(serial uint64) (*PhysicalDescriptorSet, error) {
	if p.live.Len() >= p.depth {
		oldest, _ := p.live.Peek()
		if p.ctx.Timeline.IsComplete(oldest.lastUse) {
			_, _ = p.live.Dequeue()
			oldest.lastUse = serial
			_ = p.live.Enqueue(oldest)
			return oldest, nil
		}
		core.LogDebug("shader `%s` set %d: oldest descriptor set still in flight (serial %d), growing past depth %d", p.shader, p.set, oldest.lastUse, p.depth)
	}

	handle, err := p.allocate()
	if err != nil {
		return nil, err
	}
	ps := &PhysicalDescriptorSet{Handle: handle, Set: p.set, lastUse: serial}
	_ = p.live.Enqueue(ps)
	p.ctx.Metrics.Current().DescriptorAllocs++
	return ps, nil
}

// Touch records that serial references ps again.
func (p *DescriptorPool) Touch(ps *PhysicalDescriptorSet, serial uint64) {
	if serial > ps.lastUse {
		ps.lastUse = serial
	}
}

func (p *DescriptorPool) allocate() (driver.DescriptorSet, error) {
	if len(p.chunks) > 0 {
		handle, err := p.ctx.Device.AllocateDescriptorSet(p.chunks[len(p.chunks)-1], p.layout)
		if err == nil {
			return handle, nil
		}
		if !driver.IsPoolExhausted(err) {
			return 0, errors.Wrapf(err, "shader `%s` set %d: descriptor set allocation failed", p.shader, p.set)
		}
		core.LogDebug("shader `%s` set %d: descriptor pool exhausted, creating a new one", p.shader, p.set)
	}

	// Fall back to a fresh pool. A failure here is final.
	chunk, err := p.ctx.Device.CreateDescriptorPool(p.desc)
	if err != nil {
		core.LogError("shader `%s` set %d: descriptor pool creation failed: %s", p.shader, p.set, err.Error())
		return 0, core.NewResourceExhaustedError(err, "shader `%s` set %d: descriptor pool", p.shader, p.set)
	}
	p.chunks = append(p.chunks, chunk)
	handle, err := p.ctx.Device.AllocateDescriptorSet(chunk, p.layout)
	if err != nil {
		core.LogError("shader `%s` set %d: descriptor set allocation failed on a fresh pool: %s", p.shader, p.set, err.Error())
		return 0, core.NewResourceExhaustedError(err, "shader `%s` set %d: descriptor set", p.shader, p.set)
	}
	return handle, nil
}

// Destroy frees every device pool and with them every set. Callers make sure
// no pending work references them.
func (p *DescriptorPool) Destroy() {
	for _, c := range p.chunks {
		p.ctx.Device.DestroyDescriptorPool(c)
	}
	p.chunks = nil
	p.live = containers.NewRingQueue[*PhysicalDescriptorSet](0)
}
