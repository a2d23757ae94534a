package containers

import "errors"

var ErrInvalidHandle = errors.New("invalid handle")

// Handle is a stable reference into a Registry. The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Registry owns values addressed by generational handles. Released slots are
// reused, and the generation bump makes any handle to the old value stale.
type Registry[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

func NewRegistry[T any](capacity int) *Registry[T] {
	return &Registry[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

func (r *Registry[T]) Insert(value T) Handle {
	if n := len(r.free); n > 0 {
		// Existing free spot. Take it.
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		s := &r.slots[idx]
		s.value = value
		s.occupied = true
		r.count++
		return Handle{Index: idx, Generation: s.generation}
	}
	r.slots = append(r.slots, slot[T]{value: value, generation: 1, occupied: true})
	r.count++
	return Handle{Index: uint32(len(r.slots) - 1), Generation: 1}
}

func (r *Registry[T]) Get(h Handle) (T, bool) {
	var zero T
	if !r.Contains(h) {
		return zero, false
	}
	return r.slots[h.Index].value, true
}

func (r *Registry[T]) Contains(h Handle) bool {
	if !h.IsValid() || int(h.Index) >= len(r.slots) {
		return false
	}
	s := r.slots[h.Index]
	return s.occupied && s.generation == h.Generation
}

// Remove frees the slot and returns the value it held.
func (r *Registry[T]) Remove(h Handle) (T, error) {
	var zero T
	if !r.Contains(h) {
		return zero, ErrInvalidHandle
	}
	s := &r.slots[h.Index]
	value := s.value
	s.value = zero
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	r.free = append(r.free, h.Index)
	r.count--
	return value, nil
}

func (r *Registry[T]) Len() int {
	return r.count
}

// Each visits every live value in slot order. Returning false stops the walk.
func (r *Registry[T]) Each(fn func(Handle, T) bool) {
	for i := range r.slots {
		s := r.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
