package pool

import (
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/ratchetgo/gpubuf/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBuffer struct {
	destroyed bool
}

func (b *fakeBuffer) Destroy() { b.destroyed = true }

type fakeQueue struct{}

func (fakeQueue) WriteBuffer(types.GPUBuffer, uint64, []byte) error { return nil }
func (fakeQueue) Submit(types.CommandBatch) error                  { return nil }

type fakeDevice struct {
	createCount int
	failNext    bool
}

func (d *fakeDevice) CreateBuffer(desc types.BufferDescriptor) (types.GPUBuffer, error) {
	if d.failNext {
		d.failNext = false
		return nil, errors.New("out of memory")
	}
	d.createCount++
	return &fakeBuffer{}, nil
}

func (d *fakeDevice) Queue() types.Queue       { return fakeQueue{} }
func (d *fakeDevice) Poll(types.WaitMode) error { return nil }

func descA() types.BufferDescriptor {
	return types.NewBufferDescriptor(1024, types.StandardUsage())
}

func TestGetOrCreateMissAllocatesFromDevice(t *testing.T) {
	p := New(WithLabel(t.Name()))
	dev := &fakeDevice{}

	buf, err := p.GetOrCreate(descA(), dev)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if dev.createCount != 1 {
		t.Fatalf("want 1 device allocation, got %d", dev.createCount)
	}
	if buf.Descriptor() != descA() {
		t.Fatalf("descriptor mismatch: got %+v", buf.Descriptor())
	}
	if p.NumResources() != 1 {
		t.Fatalf("want 1 resource, got %d", p.NumResources())
	}
}

func TestReleaseThenGetOrCreateHitsCache(t *testing.T) {
	p := New(WithLabel(t.Name()))
	dev := &fakeDevice{}

	buf, err := p.GetOrCreate(descA(), dev)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	p.Release(buf)

	reused, err := p.GetOrCreate(descA(), dev)
	if err != nil {
		t.Fatalf("GetOrCreate (reuse): %v", err)
	}
	if reused.ID() != buf.ID() {
		t.Fatalf("expected same buffer reused, got id %d want %d", reused.ID(), buf.ID())
	}
	if dev.createCount != 1 {
		t.Fatalf("want 1 device allocation total, got %d", dev.createCount)
	}
}

func TestGetOrCreatePropagatesDeviceError(t *testing.T) {
	p := New(WithLabel(t.Name()))
	dev := &fakeDevice{failNext: true}

	_, err := p.GetOrCreate(descA(), dev)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestBeginPassEvictsStaleFreeBuffers(t *testing.T) {
	p := New(WithLabel(t.Name()), WithEvictionWindow(1))
	dev := &fakeDevice{}

	buf, err := p.GetOrCreate(descA(), dev)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	p.Release(buf)

	p.BeginPass(1) // within window, still kept
	if p.NumResources() != 1 {
		t.Fatalf("expected buffer retained within window, got %d resources", p.NumResources())
	}

	p.BeginPass(3) // now 3 passes since last use, window is 1
	if p.NumResources() != 0 {
		t.Fatalf("expected buffer evicted past window, got %d resources", p.NumResources())
	}
	if !buf.Retired() {
		t.Fatal("expected buffer to be marked retired")
	}
}

func TestGetReturnsLiveBufferOnly(t *testing.T) {
	p := New(WithLabel(t.Name()))
	dev := &fakeDevice{}

	buf, err := p.GetOrCreate(descA(), dev)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if _, ok := p.Get(buf.ID()); !ok {
		t.Fatal("expected live buffer to be found")
	}

	p.Release(buf)
	if _, ok := p.Get(buf.ID()); ok {
		t.Fatal("expected released buffer to no longer be live")
	}
}
