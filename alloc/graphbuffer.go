package alloc

import "github.com/ratchetgo/gpubuf/pool"

// GraphBuffer is a lease wrapper around a shared *pool.PhysicalBuffer. Its
// lease count is the allocator's liveness signal within one allocation
// pass: count == 0 after a tensor's own release point means no assignment
// entry still needs it, and it is returned to the pass-local free list.
//
// This replaces the reference-counted-pointer approach the spec describes
// (count == 1 meaning "only the assignments map holds it") with an explicit
// counter, per the §4.4 "known caveat" fix: Go offers no introspectable
// analogue of a shared pointer's live reference count, and the caveat's
// under-release in in-place chains only goes away with an explicit count
// incremented at every alias and decremented at every owning tensor's
// release point.
type GraphBuffer struct {
	physical *pool.PhysicalBuffer
	lease    int32
	constant bool
}

func newGraphBuffer(physical *pool.PhysicalBuffer) *GraphBuffer {
	return &GraphBuffer{physical: physical, lease: 1}
}

// newConstGraphBuffer wraps a resolved tensor's pre-existing buffer.
// Constants are never handed to ReleaseAssignments's recycling — their
// PhysicalBuffer stays live in the pool for the process's lifetime.
func newConstGraphBuffer(physical *pool.PhysicalBuffer) *GraphBuffer {
	return &GraphBuffer{physical: physical, lease: 1, constant: true}
}

// Physical returns the underlying pool-owned buffer.
func (g *GraphBuffer) Physical() *pool.PhysicalBuffer { return g.physical }

// retain records that one more TensorId now aliases this buffer (step 3a's
// alias propagation).
func (g *GraphBuffer) retain() { g.lease++ }

// release records that one tensor has reached its own release point (step
// 3b). Returns true when the lease has dropped to zero, meaning no
// assignment entry still depends on this buffer and it may re-enter the
// pass-local free list.
func (g *GraphBuffer) release() bool {
	g.lease--
	return g.lease <= 0
}
