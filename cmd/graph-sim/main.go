// Command graph-sim demonstrates the graph buffer allocator against a
// synthetic tensor graph, running several allocation passes against an
// in-memory noop device and printing pool telemetry after each one.
//
// The example is headless: no real GPU is required.
package main

import (
	"fmt"
	"log"

	"github.com/ratchetgo/gpubuf/alloc"
	"github.com/ratchetgo/gpubuf/graph"
	"github.com/ratchetgo/gpubuf/noopdevice"
	"github.com/ratchetgo/gpubuf/pool"
	"github.com/ratchetgo/gpubuf/types"
)

// simOp is a minimal graph.Op for this demo.
type simOp struct {
	srcs    []graph.Tensor
	inplace bool
}

func (o *simOp) Srcs() []graph.Tensor           { return o.srcs }
func (o *simOp) SupportsInplace() bool          { return o.inplace }
func (o *simOp) InplaceSourceIndex() (int, bool) { return 0, false }

// simTensor is a minimal graph.Tensor for this demo.
type simTensor struct {
	id       graph.TensorID
	resolved bool
	storage  *pool.PhysicalBuffer
	op       *simOp
	numBytes uint64
	name     string
}

func (t *simTensor) ID() graph.TensorID { return t.id }
func (t *simTensor) Resolved() bool     { return t.resolved }
func (t *simTensor) Storage() (*pool.PhysicalBuffer, bool) {
	if t.storage == nil {
		return nil, false
	}
	return t.storage, true
}
func (t *simTensor) Op() graph.Op {
	if t.op == nil {
		return nil
	}
	return t.op
}
func (t *simTensor) NumBytes() uint64   { return t.numBytes }
func (t *simTensor) Shape() []int       { return []int{int(t.numBytes / 4)} }
func (t *simTensor) Rank() int          { return 1 }
func (t *simTensor) DType() graph.DType { return graph.F32 }

func main() {
	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	fmt.Println("=== Graph Buffer Allocator Simulation ===")
	fmt.Println()

	device := noopdevice.New()
	allocator := alloc.NewBufferAllocator()

	fmt.Print("1. Seeding a constant weight (4096 B)... ")
	weight, err := allocator.CreateBufferInit(
		types.NewBufferDescriptor(4096, types.StandardUsage()),
		make([]byte, 4096),
		device,
	)
	if err != nil {
		return fmt.Errorf("seed weight: %w", err)
	}
	fmt.Printf("OK (id=%d)\n", weight.ID())

	// A chain with an in-place activation (Scenario A-shaped): the
	// constant feeds a unary in-place op, then a second in-place op, then
	// a final op that is not in-place and produces the graph output.
	c := &simTensor{id: 1, resolved: true, storage: weight, numBytes: 4096, name: "weight"}
	act1 := &simTensor{id: 2, numBytes: 4096, name: "act1", op: &simOp{srcs: []graph.Tensor{c}, inplace: true}}
	act2 := &simTensor{id: 3, numBytes: 4096, name: "act2", op: &simOp{srcs: []graph.Tensor{act1}, inplace: true}}
	out := &simTensor{id: 4, numBytes: 4096, name: "out", op: &simOp{srcs: []graph.Tensor{act2}, inplace: false}}

	order := []graph.Tensor{c, act1, act2, out}

	var prev alloc.Assignments
	for pass := uint64(0); pass < 3; pass++ {
		fmt.Printf("\n2.%d Running allocate_cfg (pass %d)...\n", pass, pass)

		// The caller, not AllocateCFG, owns the previous pass's buffers: once
		// its dispatch is done and its outputs are consumed, release them
		// back to the pool before starting the next pass.
		if prev != nil {
			allocator.ReleaseAssignments(prev)
		}
		allocator.BeginPass(pass)

		assignments, err := allocator.AllocateCFG(order, device)
		if err != nil {
			return fmt.Errorf("allocate_cfg: %w", err)
		}

		for _, t := range order {
			st := t.(*simTensor)
			gb := assignments[t.ID()]
			fmt.Printf("   %-5s -> buffer id=%d\n", st.name, gb.Physical().ID())
		}

		fmt.Printf("   pool: %d resources, %d bytes total\n",
			allocator.Pool().NumResources(), allocator.Pool().TotalGPUSizeInBytes())

		prev = assignments
	}

	return nil
}
