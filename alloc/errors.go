package alloc

import (
	"errors"
	"fmt"

	"github.com/ratchetgo/gpubuf/graph"
	"github.com/ratchetgo/gpubuf/types"
)

// ErrBufferNotFound is returned by Get when asked for an id the pool has no
// live record of. Wrapped with the offending handle via %w, so callers can
// still match it with errors.Is.
var ErrBufferNotFound = errors.New("gpubuf: buffer not found")

// StorageAbsentError indicates a tensor declared Resolved() true has no
// backing storage. This is a caller bug (malformed tensor graph); it is
// always propagated, never retried.
type StorageAbsentError struct {
	TensorID graph.TensorID
}

func (e *StorageAbsentError) Error() string {
	return fmt.Sprintf("gpubuf: tensor %d is resolved but has no storage", e.TensorID)
}

// IsStorageAbsent reports whether err is a *StorageAbsentError.
func IsStorageAbsent(err error) bool {
	var sa *StorageAbsentError
	return errors.As(err, &sa)
}

// DeviceAllocationFailedError wraps a device allocation failure encountered
// while satisfying a descriptor the pool could not serve from its free
// list. Fatal for the whole allocation pass.
type DeviceAllocationFailedError struct {
	Descriptor types.BufferDescriptor
	Cause      error
}

func (e *DeviceAllocationFailedError) Error() string {
	return fmt.Sprintf("gpubuf: device allocation failed for %+v: %v", e.Descriptor, e.Cause)
}

func (e *DeviceAllocationFailedError) Unwrap() error { return e.Cause }

// IsDeviceAllocationFailed reports whether err is a *DeviceAllocationFailedError.
func IsDeviceAllocationFailed(err error) bool {
	var dae *DeviceAllocationFailedError
	return errors.As(err, &dae)
}

// InvariantViolationError indicates the reverse walk reached a tensor that
// has no assignment of its own at its release point: it is neither the graph
// output nor a source of any later tensor, meaning execution_order was
// malformed (a source appears after its consumer, a tensor nothing consumes,
// or a cycle). Always fatal.
type InvariantViolationError struct {
	TensorID graph.TensorID
	Reason   string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("gpubuf: invariant violated at tensor %d: %s", e.TensorID, e.Reason)
}

// IsInvariantViolation reports whether err is an *InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}
