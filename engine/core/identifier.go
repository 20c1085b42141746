package core

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// InvalidID is never handed out by an Arena.
const InvalidID uint32 = ^uint32(0)

// Arena owns entries by stable index. Consumers keep the index instead of a
// pointer back into the owner and release it on teardown. Released slots are
// reused by later acquisitions.
type Arena[T any] struct {
	owners []T
	used   []bool
	free   []uint32
	live   int
}

func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		owners: make([]T, 0, capacity),
		used:   make([]bool, 0, capacity),
	}
}

// Acquire stores owner and returns its id.
func (a *Arena[T]) Acquire(owner T) uint32 {
	a.live++
	// Existing free spot. Take it.
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.owners[id] = owner
		a.used[id] = true
		return id
	}
	// No free slots, push a new one. The id is length - 1.
	a.owners = append(a.owners, owner)
	a.used = append(a.used, true)
	return uint32(len(a.owners) - 1)
}

// Release zeroes out the entry, making the id available again.
func (a *Arena[T]) Release(id uint32) error {
	if id >= uint32(len(a.owners)) {
		return errors.Newf("arena release: id '%d' out of range (max=%d). Nothing was done", id, len(a.owners))
	}
	if !a.used[id] {
		return errors.Newf("arena release: id '%d' is not in use. Nothing was done", id)
	}
	var zero T
	a.owners[id] = zero
	a.used[id] = false
	a.free = append(a.free, id)
	a.live--
	return nil
}

func (a *Arena[T]) Get(id uint32) (T, bool) {
	if id >= uint32(len(a.used)) || !a.used[id] {
		var zero T
		return zero, false
	}
	return a.owners[id], true
}

// Set replaces the entry of a live id.
func (a *Arena[T]) Set(id uint32, owner T) bool {
	if id >= uint32(len(a.used)) || !a.used[id] {
		return false
	}
	a.owners[id] = owner
	return true
}

// Each visits every live entry in id order. Returning false stops the walk.
func (a *Arena[T]) Each(fn func(id uint32, owner T) bool) {
	for i, used := range a.used {
		if used && !fn(uint32(i), a.owners[i]) {
			return
		}
	}
}

func (a *Arena[T]) Len() int {
	return a.live
}

// AlignUp rounds v up to the next multiple of alignment, which must be a power of two.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}
