// Package graph holds the contract the allocator consumes from the tensor
// graph. The tensor graph itself — operator definitions, shape inference,
// the invariant enforcer — is an external collaborator and deliberately not
// implemented here; this package is the interface boundary only.
package graph

import "github.com/ratchetgo/gpubuf/pool"

// TensorID is a stable, comparable identifier used to key allocator maps.
type TensorID uint64

// DType identifies a tensor's element type, used for descriptor derivation
// (byte-size computation lives on the Tensor implementation, not here).
type DType uint8

const (
	F32 DType = iota
	F16
	I32
	U32
	Bool
)

// String returns a human-readable name for the DType.
func (d DType) String() string {
	switch d {
	case F32:
		return "f32"
	case F16:
		return "f16"
	case I32:
		return "i32"
	case U32:
		return "u32"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Op is the subset of an operation's identity the allocator needs: its
// sources, and whether it may write its output over one of them.
type Op interface {
	// Srcs returns the operation's input tensors, in source order.
	Srcs() []Tensor

	// SupportsInplace reports whether this op is permitted to overwrite one
	// of its inputs' storage with its output.
	SupportsInplace() bool

	// InplaceSourceIndex optionally names which source the op overwrites
	// in place. When ok is false, callers fall back to treating Srcs()[0]
	// as the in-place target.
	InplaceSourceIndex() (index int, ok bool)
}

// Tensor is the subset of tensor identity and state the allocator needs.
type Tensor interface {
	// ID returns this tensor's stable identifier.
	ID() TensorID

	// Resolved reports whether storage already exists for this tensor
	// (e.g. a constant weight or a pre-materialized input).
	Resolved() bool

	// Storage returns the tensor's existing physical buffer. Only
	// meaningful when Resolved() is true.
	Storage() (*pool.PhysicalBuffer, bool)

	// Op returns the operation that produces this tensor. Leaf tensors
	// (resolved, or otherwise source-less) may return an Op with no sources.
	Op() Op

	// NumBytes returns the tensor's size in bytes, for descriptor derivation.
	NumBytes() uint64

	// Shape returns the tensor's dimensions.
	Shape() []int

	// Rank returns len(Shape()).
	Rank() int

	// DType returns the tensor's element type.
	DType() DType
}
