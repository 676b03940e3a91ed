package pool

import "sync"

// GlobalID uniquely identifies a PhysicalBuffer for the lifetime of the
// process. Ids are never reused: a buffer re-parked into the free list keeps
// its original id, and only a cache miss ever mints a new one.
type GlobalID uint64

// idAllocator hands out fresh, ever-increasing GlobalIDs. It has no free
// list to recycle: this id space is not dense, and nothing in this module
// needs small ids for array indexing — live buffers are looked up by map,
// not by slot.
type idAllocator struct {
	mu   sync.Mutex
	next GlobalID
}

// alloc returns the next fresh GlobalID.
func (a *idAllocator) alloc() GlobalID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
