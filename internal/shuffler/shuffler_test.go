package shuffler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/storage"
)

type fakeOutboxStore struct {
	mu      sync.Mutex
	entries []storage.OutboxEntry
	err     error
}

func (f *fakeOutboxStore) PendingOutbox(_ context.Context) ([]storage.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeRouter struct {
	mu       sync.Mutex
	routable map[domain.PartitionKey]bool
	routed   []domain.Command
}

func (r *fakeRouter) SubmitFor(key domain.PartitionKey) (func(context.Context, domain.Command) error, bool) {
	if !r.routable[key] {
		return nil, false
	}
	return func(_ context.Context, cmd domain.Command) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.routed = append(r.routed, cmd)
		return nil
	}, true
}

func TestRouteDispatchesEachOutboxMessageKind(t *testing.T) {
	inv := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "a", "uuid-1")}
	term := domain.KillTermination(domain.FromFull(inv.Fid))
	resp := domain.ResponseMessage{Fid: inv.Fid, Sink: domain.ResponseSink{Kind: domain.SinkPartitionProcessor, Caller: inv.Fid}}
	awk := domain.AwakeableCompletion{TargetInvocationId: inv.Fid.InvocationId()}

	router := &fakeRouter{routable: map[domain.PartitionKey]bool{inv.Fid.PartitionKey(): true}}
	svc := New(nil, router, 0)

	cases := []domain.OutboxMessage{
		domain.NewOutboxServiceInvocation(inv),
		domain.NewOutboxTermination(term),
		domain.NewOutboxResponse(resp),
		domain.NewOutboxAwakeableCompletion(awk),
	}
	for _, msg := range cases {
		if err := svc.route(context.Background(), msg); err != nil {
			t.Fatalf("route(%v): %v", msg.Kind, err)
		}
	}
	if len(router.routed) != len(cases) {
		t.Fatalf("expected %d routed commands, got %d", len(cases), len(router.routed))
	}
}

func TestRouteFailsWhenNoPartitionOwnsKey(t *testing.T) {
	inv := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "b", "uuid-2")}
	router := &fakeRouter{routable: map[domain.PartitionKey]bool{}}
	svc := New(nil, router, 0)

	if err := svc.route(context.Background(), domain.NewOutboxServiceInvocation(inv)); err == nil {
		t.Fatal("expected route to fail when no partition owns the target key")
	}
}

func TestDrainTruncatesUpToHighestDeliveredSeq(t *testing.T) {
	inv1 := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "c", "uuid-3")}
	inv2 := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "c", "uuid-4")}
	store := &fakeOutboxStore{entries: []storage.OutboxEntry{
		{Seq: 1, Message: domain.NewOutboxServiceInvocation(inv1)},
		{Seq: 2, Message: domain.NewOutboxServiceInvocation(inv2)},
	}}
	router := &fakeRouter{routable: map[domain.PartitionKey]bool{inv1.Fid.PartitionKey(): true}}

	var truncatedTo uint64
	var truncateCalled bool
	submit := func(_ context.Context, cmd domain.Command) error {
		truncateCalled = true
		truncatedTo = cmd.TruncateOutboxUpTo
		return nil
	}

	svc := New(nil, router, 0)
	svc.drain(context.Background(), Source{ID: "p-0", Store: store, Submit: submit})

	if !truncateCalled {
		t.Fatal("expected a truncate command to be submitted")
	}
	if truncatedTo != 2 {
		t.Fatalf("expected truncate up to seq 2, got %d", truncatedTo)
	}
}

func TestDrainStopsAtFirstUnroutableMessage(t *testing.T) {
	inv1 := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "d", "uuid-5")}
	inv2 := domain.ServiceInvocation{Fid: domain.NewFullInvocationId("com.example.Greeter", "e", "uuid-6")}
	store := &fakeOutboxStore{entries: []storage.OutboxEntry{
		{Seq: 1, Message: domain.NewOutboxServiceInvocation(inv1)},
		{Seq: 2, Message: domain.NewOutboxServiceInvocation(inv2)},
	}}
	// Only inv2's key is routable, so the first (inv1) message can't be
	// delivered and draining must stop before ever reaching inv2.
	router := &fakeRouter{routable: map[domain.PartitionKey]bool{inv2.Fid.PartitionKey(): true}}

	var truncateCalled bool
	submit := func(_ context.Context, cmd domain.Command) error {
		truncateCalled = true
		return nil
	}

	svc := New(nil, router, 0)
	svc.drain(context.Background(), Source{ID: "p-0", Store: store, Submit: submit})

	if truncateCalled {
		t.Fatal("expected no truncate command when the first message can't be routed")
	}
}

func TestDrainSkipsSourceOnStoreError(t *testing.T) {
	store := &fakeOutboxStore{err: errors.New("boom")}
	router := &fakeRouter{routable: map[domain.PartitionKey]bool{}}
	submit := func(_ context.Context, _ domain.Command) error {
		t.Fatal("submit should not be called when the outbox poll fails")
		return nil
	}

	svc := New(nil, router, 0)
	svc.drain(context.Background(), Source{ID: "p-0", Store: store, Submit: submit})
}
