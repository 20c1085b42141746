package vkdriver

import "github.com/spaghettifunk/vkbridge/engine/core"

// table maps the opaque driver handles onto the native objects. Handle 0 is
// the null handle so ids are shifted by one.
type table[T any] struct {
	arena *core.Arena[T]
}

func newTable[T any]() *table[T] {
	return &table[T]{arena: core.NewArena[T](16)}
}

func (t *table[T]) add(v T) uint64 {
	return uint64(t.arena.Acquire(v)) + 1
}

func (t *table[T]) get(h uint64) (T, bool) {
	if h == 0 {
		var zero T
		return zero, false
	}
	return t.arena.Get(uint32(h - 1))
}

func (t *table[T]) remove(h uint64) (T, bool) {
	v, ok := t.get(h)
	if !ok {
		return v, false
	}
	_ = t.arena.Release(uint32(h - 1))
	return v, true
}

func (t *table[T]) each(fn func(h uint64, v T)) {
	t.arena.Each(func(id uint32, v T) bool {
		fn(uint64(id)+1, v)
		return true
	})
}

func (t *table[T]) len() int {
	return t.arena.Len()
}
