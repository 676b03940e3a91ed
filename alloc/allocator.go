// Package alloc implements the graph buffer allocator: given a topologically
// ordered execution plan of tensor operations, it assigns a physical GPU
// buffer to every intermediate tensor, reusing buffers as aggressively as is
// safe and honoring in-place aliasing, constants, and the graph output.
package alloc

import (
	"fmt"

	"github.com/ratchetgo/gpubuf/graph"
	"github.com/ratchetgo/gpubuf/pool"
	"github.com/ratchetgo/gpubuf/types"
)

// UNIFORM_ALIGN is the platform uniform-buffer alignment assumed by
// CreateUniformInit.
const UNIFORM_ALIGN = 256

// Assignments maps each tensor in an execution order to the GraphBuffer
// that will hold its result. Multiple TensorIDs may map to the same
// GraphBuffer when they share an in-place chain or reuse via the free list.
type Assignments map[graph.TensorID]*GraphBuffer

// BufferAllocator is the public façade: it owns a BufferPool and implements
// graph-wide lifetime analysis and in-place source resolution on top of it.
type BufferAllocator struct {
	pool  *pool.BufferPool
	debug debugFlag
}

// NewBufferAllocator creates a BufferAllocator backed by a fresh BufferPool
// configured with opts. The RATCHET_DEBUG diagnostic override is read once,
// from this process's environment, and cached on the instance — not shared
// process-wide, so tests may construct allocators with different debug
// settings in the same binary.
func NewBufferAllocator(opts ...pool.Option) *BufferAllocator {
	a := &BufferAllocator{pool: pool.New(opts...)}
	a.debug.set(debugFromEnv())
	return a
}

// SetDebug overrides this allocator's diagnostic flag, bypassing the
// environment. Primarily for tests exercising both code paths of
// graphAllocate without fork/exec.
func (a *BufferAllocator) SetDebug(enabled bool) { a.debug.set(enabled) }

// Pool returns the backing BufferPool, for telemetry access.
func (a *BufferAllocator) Pool() *pool.BufferPool { return a.pool }

// BeginPass advances the backing pool's pass counter.
func (a *BufferAllocator) BeginPass(passIndex uint64) { a.pool.BeginPass(passIndex) }

// CreateBuffer is a thin passthrough to the pool's get-or-create, outside
// the graph walk. Used by the execution engine for buffers it manages
// itself (spec §4.5).
func (a *BufferAllocator) CreateBuffer(desc types.BufferDescriptor, device types.Device) (*pool.PhysicalBuffer, error) {
	buf, err := a.pool.GetOrCreate(desc, device)
	if err != nil {
		return nil, &DeviceAllocationFailedError{Descriptor: desc, Cause: err}
	}
	return buf, nil
}

// CreateBufferInit creates a buffer, uploads contents starting at offset 0,
// submits an empty command batch to flush the write, and blocks until the
// device has drained. Used for weight upload, where the caller must not
// proceed until the data is visible to the device.
func (a *BufferAllocator) CreateBufferInit(desc types.BufferDescriptor, contents []byte, device types.Device) (*pool.PhysicalBuffer, error) {
	buf, err := a.CreateBuffer(desc, device)
	if err != nil {
		return nil, err
	}
	q := device.Queue()
	if err := q.WriteBuffer(buf.Inner(), 0, contents); err != nil {
		return nil, fmt.Errorf("gpubuf: write buffer contents: %w", err)
	}
	if err := q.Submit(nil); err != nil {
		return nil, fmt.Errorf("gpubuf: submit flush batch: %w", err)
	}
	if err := device.Poll(types.PollWait); err != nil {
		return nil, fmt.Errorf("gpubuf: poll for drain: %w", err)
	}
	return buf, nil
}

// CreateUniformInit pads data to the next multiple of UNIFORM_ALIGN,
// allocates a buffer with UNIFORM|COPY_DST usage, and uploads without
// blocking the caller.
func (a *BufferAllocator) CreateUniformInit(data []byte, device types.Device) (*pool.PhysicalBuffer, error) {
	padded := padToAlignment(data, UNIFORM_ALIGN)
	desc := types.NewBufferDescriptor(uint64(len(padded)), types.UsageUniform|types.UsageCopyDst)

	buf, err := a.CreateBuffer(desc, device)
	if err != nil {
		return nil, err
	}
	if err := device.Queue().WriteBuffer(buf.Inner(), 0, padded); err != nil {
		return nil, fmt.Errorf("gpubuf: write uniform contents: %w", err)
	}
	return buf, nil
}

func padToAlignment(data []byte, align int) []byte {
	rem := len(data) % align
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data)+(align-rem))
	copy(padded, data)
	return padded
}

// Get looks up a PhysicalBuffer by id.
func (a *BufferAllocator) Get(id pool.GlobalID) (*pool.PhysicalBuffer, error) {
	buf, ok := a.pool.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrBufferNotFound, id)
	}
	return buf, nil
}

// determineTensorSource finds t's "true source": the ancestor whose buffer
// t actually aliases, by following in-place chains (spec §4.2). uses is the
// precomputed per-tensor consumer count built once per AllocateCFG call
// (§4.2(a)) — it stands in for a live shared-reference count, which Go has
// no introspectable equivalent of.
func (a *BufferAllocator) determineTensorSource(t graph.Tensor, uses map[graph.TensorID]int) graph.Tensor {
	current := t
	for {
		if current.Resolved() {
			break
		}
		op := current.Op()
		if op == nil {
			break
		}
		srcs := op.Srcs()
		if len(srcs) == 0 {
			break
		}
		cantInplace := !op.SupportsInplace()
		multipleConsumers := uses[current.ID()] != 1
		Logger().Debug("gpubuf: in-place traversal condition", "tensor_id", current.ID(), "cant_inplace", cantInplace, "multiple_consumers", multipleConsumers)
		if cantInplace || multipleConsumers {
			break
		}
		idx := 0
		if i, ok := op.InplaceSourceIndex(); ok {
			idx = i
		}
		if idx < 0 || idx >= len(srcs) {
			break
		}
		current = srcs[idx]
	}
	Logger().Debug("gpubuf: traversed to true source", "tensor_id", current.ID())
	return current
}

// graphAllocate satisfies desc from the pass-local free list by best fit
// (minimum size overhead among adequately-large candidates, ties broken by
// earliest index), or falls through to the pool on a miss (spec §4.3).
// RATCHET_DEBUG disables the free-list path entirely.
func (a *BufferAllocator) graphAllocate(desc types.BufferDescriptor, free *[]*GraphBuffer, device types.Device) (*GraphBuffer, error) {
	if !a.debug.get() {
		list := *free
		best := -1
		var bestDiff uint64
		for i, gb := range list {
			d := gb.physical.Descriptor()
			if d.SizeBytes < desc.SizeBytes || d.Usage != desc.Usage {
				continue
			}
			diff := d.SizeBytes - desc.SizeBytes
			if best == -1 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best != -1 {
			chosen := list[best]
			*free = append(list[:best], list[best+1:]...)
			chosen.lease = 1
			return chosen, nil
		}
	}

	physical, err := a.pool.GetOrCreate(desc, device)
	if err != nil {
		return nil, &DeviceAllocationFailedError{Descriptor: desc, Cause: err}
	}
	return newGraphBuffer(physical), nil
}

// AllocateCFG is the main pass: given an execution order where every
// tensor's sources appear earlier and the last element is the graph output,
// it returns a GraphBuffer assignment for every tensor (spec §4.4).
func (a *BufferAllocator) AllocateCFG(executionOrder []graph.Tensor, device types.Device) (Assignments, error) {
	if len(executionOrder) == 0 {
		return Assignments{}, nil
	}

	uses := make(map[graph.TensorID]int, len(executionOrder))
	for _, t := range executionOrder {
		op := t.Op()
		if op == nil {
			continue
		}
		for _, s := range op.Srcs() {
			uses[s.ID()]++
		}
	}

	assignments := make(Assignments, len(executionOrder))
	var free []*GraphBuffer

	// Step 1: seed constants, reverse order. Constants are never released
	// to free.
	for i := len(executionOrder) - 1; i >= 0; i-- {
		t := executionOrder[i]
		if !t.Resolved() {
			continue
		}
		physical, ok := t.Storage()
		if !ok || physical == nil {
			return nil, &StorageAbsentError{TensorID: t.ID()}
		}
		assignments[t.ID()] = newConstGraphBuffer(physical)
	}

	output := executionOrder[len(executionOrder)-1]
	outputID := output.ID()

	// The output's real consumer is the external caller, not another op in
	// this graph, so it never appears as a source in the uses map built
	// above. It nonetheless has exactly one consumer (the caller), so
	// determineTensorSource must see a count of 1 here for the in-place
	// chain above the output to resolve the same way it would for any
	// other single-consumer tensor.
	uses[outputID] = 1

	// Step 2: seed the output's true source.
	trueOut := a.determineTensorSource(output, uses)
	if gb, ok := assignments[trueOut.ID()]; ok {
		assignments[outputID] = gb
		if trueOut.ID() != outputID {
			gb.retain()
		}
	} else {
		desc := types.NewBufferDescriptor(trueOut.NumBytes(), types.StandardUsage())
		gb, err := a.graphAllocate(desc, &free, device)
		if err != nil {
			return nil, err
		}
		assignments[outputID] = gb
		assignments[trueOut.ID()] = gb
		if trueOut.ID() != outputID {
			gb.retain()
		}
	}

	// Step 3: main reverse walk.
	for i := len(executionOrder) - 1; i >= 0; i-- {
		t := executionOrder[i]
		if t.Resolved() {
			continue
		}

		if op := t.Op(); op != nil {
			for _, s := range op.Srcs() {
				sourceStar := a.determineTensorSource(s, uses)

				gb, ok := assignments[sourceStar.ID()]
				if !ok {
					desc := types.NewBufferDescriptor(sourceStar.NumBytes(), types.StandardUsage())
					fresh, err := a.graphAllocate(desc, &free, device)
					if err != nil {
						return nil, err
					}
					assignments[sourceStar.ID()] = fresh
					gb = fresh
				}

				if sourceStar.ID() != s.ID() {
					assignments[s.ID()] = gb
					gb.retain()
					Logger().Debug("gpubuf: double assignment", "tensor_id", s.ID(), "buffer_id", gb.physical.ID())
				}
			}
		}

		gb, ok := assignments[t.ID()]
		if !ok {
			return nil, &InvariantViolationError{
				TensorID: t.ID(),
				Reason:   "no assignment after source resolution",
			}
		}
		if gb.release() {
			Logger().Debug("gpubuf: releasing buffer", "buffer_id", gb.physical.ID())
			free = append(free, gb)
		}
	}

	// free is intentionally NOT drained into the pool here. Every GraphBuffer
	// still sitting in free by this point is also reachable through
	// assignments (it was pushed above straight from an assignments lookup),
	// including — critically — the graph output's own buffer: the output is
	// processed first in the reverse walk, so its lease reaches zero and it
	// lands in free before any other tensor has even been considered, purely
	// to make it available as scratch space for intra-pass reuse by tensors
	// that run before it (spec §1(c): outputs are honoured as long-lived).
	// Releasing free's remainder to the pool here would let a wholly
	// unrelated GetOrCreate in the very next line of caller code hand that
	// physical buffer to a different tensor while the caller is still
	// holding (and reading) these assignments. The original Rust relies on
	// Arc::drop to re-park a buffer only once its last clone — including the
	// one living inside the returned map — disappears; Go has no destructor
	// to hook, so that final release is instead the caller's explicit job,
	// via ReleaseAssignments, once it is actually done with this pass's
	// assignments.
	Logger().Info("gpubuf: allocate_cfg complete",
		"total_gpu_size_in_bytes", a.pool.TotalGPUSizeInBytes(),
		"num_resources", a.pool.NumResources())

	return assignments, nil
}

// ReleaseAssignments returns every non-constant PhysicalBuffer referenced by
// a previous pass's assignments to the pool's free list, making them
// eligible for reuse by a later pass. The caller (execution engine) invokes
// this once it has fully consumed a pass's assignments — dispatched every
// kernel and no longer needs the mapping — typically right before starting
// the next pass.
//
// This is the explicit stand-in for the original Rust implementation's
// reliance on Arc::drop: there, a PhysicalBuffer re-parks into the pool's
// free list automatically when its last clone (including the one inside the
// caller's own copy of the assignments map) is dropped. Go has no
// destructor equivalent, so AllocateCFG itself never performs this step
// (see the comment at the end of that function); it is surfaced here as an
// explicit call instead.
//
// Multiple TensorIDs may alias the same GraphBuffer (in-place chains,
// intra-pass reuse); each distinct PhysicalBuffer is released at most once.
func (a *BufferAllocator) ReleaseAssignments(assignments Assignments) {
	seen := make(map[pool.GlobalID]struct{}, len(assignments))
	for _, gb := range assignments {
		if gb == nil || gb.constant {
			continue
		}
		id := gb.physical.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		a.pool.Release(gb.physical)
	}
}
