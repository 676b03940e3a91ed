package alloc

import (
	"os"
	"sync/atomic"
)

// debugEnvVar, when present in the environment, disables free-list reuse in
// graphAllocate: every request falls through to a fresh pool allocation.
// Useful for A/B comparisons against the reuse path and for catching
// use-after-release bugs (spec §4.3, §6).
const debugEnvVar = "RATCHET_DEBUG"

// debugFromEnv reads RATCHET_DEBUG once. Unlike the teacher's SetDebugMode,
// which toggles a single process-wide switch, this module has no singleton:
// the flag is read into each *BufferAllocator's own atomic.Bool at
// construction time, so two allocators in the same process (e.g. two tests
// run in parallel) never interfere with each other.
func debugFromEnv() bool {
	_, set := os.LookupEnv(debugEnvVar)
	return set
}

// debugFlag is an instance-scoped, concurrency-safe on/off switch.
type debugFlag struct {
	v atomic.Bool
}

func (f *debugFlag) set(enabled bool) { f.v.Store(enabled) }
func (f *debugFlag) get() bool        { return f.v.Load() }
