// Package types holds the plain value types shared by the buffer pool and
// allocator: buffer descriptors, usage flags, and the minimal GPU device
// contract those components consume.
package types

// UsageFlags describes how a buffer will be used, as a bitset.
type UsageFlags uint32

const (
	// UsageStorage allows binding the buffer as a storage buffer.
	UsageStorage UsageFlags = 1 << iota
	// UsageCopySrc allows the buffer to be a copy source.
	UsageCopySrc
	// UsageCopyDst allows the buffer to be a copy destination.
	UsageCopyDst
	// UsageUniform allows binding the buffer as a uniform buffer.
	UsageUniform
	// UsageIndirect allows use as an indirect dispatch/draw buffer.
	UsageIndirect
	// UsageQueryResolve allows use as a query-result destination.
	UsageQueryResolve
)

// StandardUsage is the conventional preset for graph-intermediate buffers:
// storage bound for compute, readable and writable via copy.
func StandardUsage() UsageFlags {
	return UsageStorage | UsageCopySrc | UsageCopyDst
}

// Contains returns true if all flags in other are present in u.
func (u UsageFlags) Contains(other UsageFlags) bool {
	return u&other == other
}

// BufferDescriptor describes a requested physical buffer. It is structurally
// comparable, which is what makes it usable as a map key in BufferPool's
// free list.
type BufferDescriptor struct {
	SizeBytes        uint64
	Usage            UsageFlags
	MappedAtCreation bool
}

// NewBufferDescriptor builds a BufferDescriptor with the given size and
// usage, not mapped at creation.
func NewBufferDescriptor(sizeBytes uint64, usage UsageFlags) BufferDescriptor {
	return BufferDescriptor{SizeBytes: sizeBytes, Usage: usage}
}
