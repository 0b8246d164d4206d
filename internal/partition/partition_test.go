package partition

import (
	"context"
	"testing"

	"github.com/oriys/partitiond/internal/checkpoint"
	"github.com/oriys/partitiond/internal/codec"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/interp"
	"github.com/oriys/partitiond/internal/state"
)

// memStorage adapts state.Memory to the Storage interface Partition depends
// on, so the run loop can be exercised without a live Postgres instance.
type memStorage struct {
	*state.Memory
}

func (m memStorage) Commit(_ context.Context, buf *effects.Buffer) error {
	m.Apply(buf)
	return nil
}

func newTestPartition() (*Partition, *state.Memory) {
	mem := state.NewMemory()
	p := &Partition{
		ID:         "p-0",
		Range:      domain.PartitionKeyRange{Start: 0, End: ^uint64(0)},
		ip:         interp.New(0, 0, domain.PartitionKeyRange{Start: 0, End: ^uint64(0)}, codec.JSON{}),
		store:      memStorage{mem},
		buf:        &effects.Buffer{},
		notifier:   NewChannelNotifier(),
		leases:     NewLease("p-0"),
		checks:     checkpoint.NewStore(),
		flushEvery: 1,
	}
	return p, mem
}

func TestSubmitAppliesCommandAndCommits(t *testing.T) {
	p, mem := newTestPartition()
	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "alice", "uuid-1"),
		MethodName: "greet",
		Source:     domain.IngressSource(),
	}

	if _, err := p.Submit(context.Background(), domain.NewInvokeCommand(inv)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusInvoked {
		t.Fatalf("expected StatusInvoked, got %v", status.Kind)
	}
}

func TestSubmitRefusedWithoutLease(t *testing.T) {
	p, _ := newTestPartition()
	p.leases.Stop()

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "bob", "uuid-2"),
		MethodName: "greet",
		Source:     domain.IngressSource(),
	}

	if _, err := p.Submit(context.Background(), domain.NewInvokeCommand(inv)); err == nil {
		t.Fatal("expected Submit to refuse a command once the lease is released")
	}
}

type recordingInvokerHook struct {
	dispatched []domain.ServiceInvocation
}

func (h *recordingInvokerHook) Dispatch(_ context.Context, _ *Partition, inv domain.ServiceInvocation) {
	h.dispatched = append(h.dispatched, inv)
}

type recordingIngressHook struct {
	delivered []domain.ResponseMessage
}

func (h *recordingIngressHook) Deliver(msg domain.ResponseMessage) {
	h.delivered = append(h.delivered, msg)
}

func TestSubmitDispatchesInvokeServiceEffectToInvokerHook(t *testing.T) {
	p, _ := newTestPartition()
	hook := &recordingInvokerHook{}
	p.SetInvokerHook(hook)

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "dave", "uuid-4"),
		MethodName: "greet",
		Source:     domain.IngressSource(),
	}
	if _, err := p.Submit(context.Background(), domain.NewInvokeCommand(inv)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(hook.dispatched) != 1 {
		t.Fatalf("expected exactly one dispatched invocation, got %d", len(hook.dispatched))
	}
	if hook.dispatched[0].Fid != inv.Fid {
		t.Fatalf("expected dispatched fid %v, got %v", inv.Fid, hook.dispatched[0].Fid)
	}
}

func TestSubmitWithoutHooksDoesNotPanic(t *testing.T) {
	p, _ := newTestPartition()
	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "erin", "uuid-5"),
		MethodName: "greet",
		Source:     domain.IngressSource(),
	}
	if _, err := p.Submit(context.Background(), domain.NewInvokeCommand(inv)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmitChecksPointsAfterFlushThreshold(t *testing.T) {
	p, _ := newTestPartition()
	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "carol", "uuid-3"),
		MethodName: "greet",
		Source:     domain.IngressSource(),
	}

	if _, err := p.Submit(context.Background(), domain.NewInvokeCommand(inv)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := p.Checkpoint()
	if rec == nil {
		t.Fatal("expected a checkpoint to have been flushed")
	}
	if rec.LogOffset != 1 {
		t.Fatalf("expected log offset 1, got %d", rec.LogOffset)
	}
}
