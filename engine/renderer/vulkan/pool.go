package vulkan

import "sync"

type LockGroup uint8

const (
	// Sampler cache of the device context.
	SamplerManagement LockGroup = iota
	// Descriptor set layout registry.
	LayoutManagement
	// Image layout states of registered textures.
	ImageManagement
	// Deferred release queue.
	ReleaseManagement
	// Pipeline cache and its LRU order.
	PipelineManagement

	lockGroupCount
)

var lockGroupNames = [lockGroupCount]string{
	"sampler_management",
	"layout_management",
	"image_management",
	"release_management",
	"pipeline_management",
}

func (g LockGroup) String() string {
	if g >= lockGroupCount {
		return "unknown"
	}
	return lockGroupNames[g]
}

// LockPool holds one mutex per cache of a DeviceContext. The caches may be
// shared by several rendering contexts on the same device; everything else is
// confined to the thread that records.
type LockPool struct {
	locks [lockGroupCount]sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{}
}

// SafeCall runs fn holding the mutex of group.
func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := &lp.locks[group]
	l.Lock()
	defer l.Unlock()

	return fn()
}
