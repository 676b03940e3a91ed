// Package pool implements the buffer pool: a cache of PhysicalBuffers keyed
// by BufferDescriptor, with per-pass eviction and get-or-create semantics.
package pool

import "sync"

// snatchable wraps a device buffer that can be "snatched" for destruction
// exactly once. It backs the pool's Free → Retired transition: when
// BeginPass evicts a buffer, it snatches the handle, so any stale external
// holder sees nil instead of a destroyed-but-still-referenced value.
type snatchable[T any] struct {
	mu       sync.RWMutex
	value    *T
	snatched bool
}

func newSnatchable[T any](value T) *snatchable[T] {
	return &snatchable[T]{value: &value}
}

// get returns the wrapped value, or nil if it has already been snatched.
func (s *snatchable[T]) get() *T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snatched {
		return nil
	}
	return s.value
}

// snatch takes the wrapped value for destruction. Returns nil if it has
// already been snatched. Safe to call more than once; only the first call
// returns a non-nil value.
func (s *snatchable[T]) snatch() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snatched {
		return nil
	}
	s.snatched = true
	v := s.value
	s.value = nil
	return v
}

// isSnatched reports whether the value has been taken for destruction.
func (s *snatchable[T]) isSnatched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snatched
}
