package pool

import (
	"fmt"
	"sync"

	"github.com/ratchetgo/gpubuf/types"
)

// PhysicalBuffer is a live GPU allocation owned exclusively by a BufferPool.
// Everything outside the pool holds a *PhysicalBuffer obtained through the
// pool's API; nobody else constructs one directly (spec §3).
type PhysicalBuffer struct {
	id           GlobalID
	descriptor   types.BufferDescriptor
	inner        *snatchable[types.GPUBuffer]
	passLastUsed uint64
}

// ID returns the buffer's process-wide unique, monotonically increasing
// identifier.
func (b *PhysicalBuffer) ID() GlobalID { return b.id }

// GlobalID returns the buffer's identifier as a plain uint64.
func (b *PhysicalBuffer) GlobalID() uint64 { return uint64(b.id) }

// Descriptor returns the descriptor this buffer was created to satisfy.
func (b *PhysicalBuffer) Descriptor() types.BufferDescriptor { return b.descriptor }

// Inner returns the underlying device buffer, or nil if this PhysicalBuffer
// has been retired (evicted) by the pool.
func (b *PhysicalBuffer) Inner() types.GPUBuffer {
	v := b.inner.get()
	if v == nil {
		return nil
	}
	return *v
}

// Retired reports whether the pool has evicted this buffer (§4.6: Free →
// Retired transition). A retired PhysicalBuffer's Inner() returns nil; the
// next request for the same descriptor allocates anew.
func (b *PhysicalBuffer) Retired() bool { return b.inner.isSnatched() }

// PassLastUsed returns the pass index this buffer was last handed out on.
func (b *PhysicalBuffer) PassLastUsed() uint64 { return b.passLastUsed }

// freeEntry is one slot in a descriptor's free list. GetOrCreate pops from
// the tail (LIFO, for locality); BeginPass eviction filters the slice in
// place, keeping the order of the entries it retains.
type freeEntry struct {
	buf *PhysicalBuffer
}

// BufferPool caches PhysicalBuffers keyed by BufferDescriptor and recycles
// them across allocation passes (spec §4.1). A single RWMutex guards it:
// reads (Get, telemetry) take the shared lock, mutations (GetOrCreate,
// BeginPass, release-on-drop) take the exclusive lock.
type BufferPool struct {
	mu          sync.RWMutex
	free        map[types.BufferDescriptor][]freeEntry
	live        map[GlobalID]*PhysicalBuffer
	currentPass uint64
	ids         idAllocator

	evictionWindow uint64 // 0 = retain forever (spec §9 Open Question)
	totalBytes     uint64
	metrics        *poolMetrics
}

// New creates an empty BufferPool. Options configure non-default behavior
// (see WithEvictionWindow, WithLabel).
func New(opts ...Option) *BufferPool {
	p := &BufferPool{
		free: make(map[types.BufferDescriptor][]freeEntry),
		live: make(map[GlobalID]*PhysicalBuffer),
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p.evictionWindow = cfg.evictionWindow
	p.metrics = newPoolMetrics(cfg.label)
	return p
}

// BeginPass advances the pool's notion of the current pass and, if an
// eviction window was configured, retires any free buffer that has gone
// unused for longer than that window (spec §4.1, §4.6).
func (p *BufferPool) BeginPass(passIndex uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentPass = passIndex
	if p.evictionWindow == 0 {
		return
	}

	for desc, entries := range p.free {
		kept := entries[:0]
		for _, e := range entries {
			if p.currentPass-e.buf.passLastUsed > p.evictionWindow {
				p.retire(e.buf)
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.free, desc)
		} else {
			p.free[desc] = kept
		}
	}
}

// retire snatches a buffer's device handle and drops it from live/telemetry.
// Must be called with the write lock held.
func (p *BufferPool) retire(buf *PhysicalBuffer) {
	if raw := buf.inner.snatch(); raw != nil && *raw != nil {
		(*raw).Destroy()
	}
	delete(p.live, buf.id)
	p.totalBytes -= buf.descriptor.SizeBytes
	p.metrics.observe(p.totalBytes, len(p.live))
}

// GetOrCreate returns a PhysicalBuffer matching desc, reusing one from the
// free list on a cache hit, or asking device to allocate a fresh one on a
// miss (spec §4.1). Lookup is exact on descriptor; approximate ("request
// 128, accept 192") fit logic belongs to the allocator's graphAllocate, not
// here.
func (p *BufferPool) GetOrCreate(desc types.BufferDescriptor, device types.Device) (*PhysicalBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entries := p.free[desc]; len(entries) > 0 {
		last := len(entries) - 1
		buf := entries[last].buf
		p.free[desc] = entries[:last]
		buf.passLastUsed = p.currentPass
		p.live[buf.id] = buf
		return buf, nil
	}

	raw, err := device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("pool: device allocation failed for %+v: %w", desc, err)
	}

	buf := &PhysicalBuffer{
		id:           p.ids.alloc(),
		descriptor:   desc,
		inner:        newSnatchable(raw),
		passLastUsed: p.currentPass,
	}
	p.live[buf.id] = buf
	p.totalBytes += desc.SizeBytes
	p.metrics.observe(p.totalBytes, len(p.live))
	return buf, nil
}

// Get looks up a PhysicalBuffer by id. ok is false if no live buffer with
// that id exists.
func (p *BufferPool) Get(id GlobalID) (*PhysicalBuffer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	buf, ok := p.live[id]
	return buf, ok
}

// Release returns buf to the free list, making it eligible for reuse by a
// later GetOrCreate with a matching descriptor. This is the only way a
// buffer re-enters the pool's free list (spec §3) — the caller (here, the
// allocator's ReleaseAssignments, once a pass's assignments are no longer
// needed) invokes it explicitly in place of Rust's drop-triggered
// re-parking, since Go has no destructor equivalent.
func (p *BufferPool) Release(buf *PhysicalBuffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if buf.inner.isSnatched() {
		return
	}
	delete(p.live, buf.id)
	p.free[buf.descriptor] = append(p.free[buf.descriptor], freeEntry{buf: buf})
}

// TotalGPUSizeInBytes returns the sum of descriptor sizes for every
// PhysicalBuffer the pool currently owns (free or live), for telemetry.
func (p *BufferPool) TotalGPUSizeInBytes() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalBytes
}

// NumResources returns the number of PhysicalBuffers the pool currently
// owns (free or live).
func (p *BufferPool) NumResources() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.live)
	for _, entries := range p.free {
		n += len(entries)
	}
	return n
}
