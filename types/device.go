package types

// GPUBuffer is an opaque handle to a physical device allocation. Concrete
// device implementations (a real GPU backend, or noopdevice for tests)
// provide their own type satisfying this interface.
type GPUBuffer interface {
	// Destroy releases the underlying device allocation. Called by the
	// pool when a buffer is retired (see the §4.6 state machine).
	Destroy()
}

// CommandBatch is an opaque handle to a recorded set of commands submitted
// via Queue.Submit. An empty/nil batch is valid — CreateBufferInit submits
// one purely to force a drain.
type CommandBatch interface{}

// WaitMode selects how Device.Poll blocks.
type WaitMode uint8

const (
	// PollNoWait returns immediately after processing any already-completed work.
	PollNoWait WaitMode = iota
	// PollWait blocks until all outstanding work has completed.
	PollWait
)

// Queue submits work and transfers data to/from device buffers.
type Queue interface {
	// WriteBuffer enqueues a host-to-device write starting at offset.
	WriteBuffer(buf GPUBuffer, offset uint64, data []byte) error
	// Submit submits a (possibly empty) command batch for execution.
	Submit(batch CommandBatch) error
}

// Device is the minimal GPU device abstraction the pool and allocator
// consume. It deliberately exposes nothing about pipelines, shaders, or
// command encoding — those are the dispatcher's concern, out of scope for
// this module.
type Device interface {
	// CreateBuffer allocates a new physical buffer matching desc.
	CreateBuffer(desc BufferDescriptor) (GPUBuffer, error)
	// Queue returns the device's submission queue.
	Queue() Queue
	// Poll drains outstanding work according to wait.
	Poll(wait WaitMode) error
}
