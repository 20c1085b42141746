package vulkan

// Timeline hands out submission serials and tracks which of them are still
// pending on the device. Serial 0 is never issued and is always complete.
type Timeline struct {
	next    uint64
	pending map[uint64]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{pending: make(map[uint64]struct{})}
}

// Acquire issues a serial for work that is about to be recorded.
func (t *Timeline) Acquire() uint64 {
	t.next++
	t.pending[t.next] = struct{}{}
	return t.next
}

// Retire marks the work of serial as finished on the device.
func (t *Timeline) Retire(serial uint64) {
	delete(t.pending, serial)
}

func (t *Timeline) IsComplete(serial uint64) bool {
	if serial > t.next {
		return false
	}
	_, pending := t.pending[serial]
	return !pending
}

// Completed returns the highest serial at or below which all work finished.
func (t *Timeline) Completed() uint64 {
	completed := t.next
	for s := range t.pending {
		if s-1 < completed {
			completed = s - 1
		}
	}
	return completed
}

func (t *Timeline) Latest() uint64 {
	return t.next
}
