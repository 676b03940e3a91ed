// Package noopdevice implements types.Device without touching a real GPU,
// for tests and the demo CLI. Buffer contents are backed by a plain byte
// slice sized to the descriptor, so WriteBuffer copies data and rejects
// out-of-bounds writes without any actual device present; there is no
// accessor to read the contents back. Adapted from the teacher's hal/noop
// backend.
package noopdevice

import (
	"fmt"

	"github.com/ratchetgo/gpubuf/types"
)

// buffer is the noop backend's types.GPUBuffer: a byte slice plus a
// destroyed flag, so tests can assert a retired buffer was actually torn
// down.
type buffer struct {
	data      []byte
	destroyed bool
}

func (b *buffer) Destroy() { b.destroyed = true }

// Destroyed reports whether Destroy has been called. Exposed for tests
// asserting pool eviction behavior end to end.
func (b *buffer) Destroyed() bool { return b.destroyed }

// Device implements types.Device by allocating plain byte slices.
type Device struct {
	createCalls int
	failOOM     bool
}

// New creates a noop device.
func New() *Device {
	return &Device{}
}

// FailNextAllocation makes the next CreateBuffer call return an error,
// simulating a device OOM for one call.
func (d *Device) FailNextAllocation() {
	d.failOOM = true
}

// CreateCalls returns the number of buffers actually allocated through this
// device, for tests asserting pool cache-hit/miss counts.
func (d *Device) CreateCalls() int { return d.createCalls }

func (d *Device) CreateBuffer(desc types.BufferDescriptor) (types.GPUBuffer, error) {
	if d.failOOM {
		d.failOOM = false
		return nil, fmt.Errorf("noopdevice: simulated out-of-memory for %d bytes", desc.SizeBytes)
	}
	d.createCalls++
	return &buffer{data: make([]byte, desc.SizeBytes)}, nil
}

func (d *Device) Queue() types.Queue { return queue{} }

func (d *Device) Poll(types.WaitMode) error { return nil }

type queue struct{}

func (queue) WriteBuffer(buf types.GPUBuffer, offset uint64, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return fmt.Errorf("noopdevice: WriteBuffer called on unrecognized buffer")
	}
	if int(offset)+len(data) > len(b.data) {
		return fmt.Errorf("noopdevice: write of %d bytes at offset %d exceeds buffer of %d bytes", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (queue) Submit(types.CommandBatch) error { return nil }
