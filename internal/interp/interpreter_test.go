package interp

import (
	"context"
	"testing"

	"github.com/oriys/partitiond/internal/codec"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

func newTestInterpreter() (*Interpreter, *state.Memory, *effects.Buffer) {
	ip := New(0, 0, domain.PartitionKeyRange{Start: 0, End: ^uint64(0)}, codec.JSON{})
	mem := state.NewMemory()
	buf := &effects.Buffer{}
	return ip, mem, buf
}

func apply(t *testing.T, ip *Interpreter, mem *state.Memory, buf *effects.Buffer, cmd domain.Command) Applied {
	t.Helper()
	buf.Clear()
	applied, err := ip.OnApply(context.Background(), cmd, buf, mem)
	if err != nil {
		t.Fatalf("OnApply(%s): %v", cmd.Kind, err)
	}
	mem.Apply(buf)
	return applied
}

func testFid(key string) domain.FullInvocationId {
	return domain.NewFullInvocationId("com.example.Greeter", key, "uuid-"+key)
}

func TestInvokeUnlockedObjectDispatchesImmediately(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	inv := domain.ServiceInvocation{Fid: testFid("alice"), MethodName: "greet", Source: domain.IngressSource()}

	apply(t, ip, mem, buf, domain.NewInvokeCommand(inv))

	status, err := mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusInvoked {
		t.Fatalf("expected StatusInvoked, got %v", status.Kind)
	}
}

func TestInvokeLockedObjectEnqueuesIntoInbox(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	first := domain.ServiceInvocation{Fid: testFid("alice"), MethodName: "greet", Source: domain.IngressSource()}
	second := domain.ServiceInvocation{Fid: testFid("alice-2"), MethodName: "greet", Source: domain.IngressSource()}
	second.Fid.ServiceId = first.Fid.ServiceId // same object, different invocation

	apply(t, ip, mem, buf, domain.NewInvokeCommand(first))
	apply(t, ip, mem, buf, domain.NewInvokeCommand(second))

	status, err := mem.GetInvocationStatus(context.Background(), second.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusInboxed {
		t.Fatalf("expected second invocation to be inboxed behind the lock holder, got %v", status.Kind)
	}
}

func TestInvokerEffectJournalEntryThenEndDeliversResponse(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	sink := domain.IngressSink("req-1")
	inv := domain.ServiceInvocation{Fid: testFid("bob"), MethodName: "greet", Source: domain.IngressSource(), ResponseSink: &sink}
	apply(t, ip, mem, buf, domain.NewInvokeCommand(inv))

	apply(t, ip, mem, buf, domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: inv.Fid, Kind: domain.EffectJournalEntry, EntryIndex: 0,
		Entry: domain.RawEntry{Header: domain.EntryHeader{Type: domain.EntryOutput}, Payload: []byte(`{"value":"hi"}`)},
	}))

	found := false
	for _, e := range buf.Effects {
		if e.Kind == effects.SendIngressResponse {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ingress response effect, got %+v", buf.Effects)
	}

	apply(t, ip, mem, buf, domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: inv.Fid, Kind: domain.EffectEnd,
	}))

	status, err := mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusFree {
		t.Fatalf("expected invocation to be Free after End, got %v", status.Kind)
	}
}

func TestSuspendThenCompletionResumes(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	inv := domain.ServiceInvocation{Fid: testFid("carol"), MethodName: "greet", Source: domain.IngressSource()}
	apply(t, ip, mem, buf, domain.NewInvokeCommand(inv))

	apply(t, ip, mem, buf, domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: inv.Fid, Kind: domain.EffectSuspended, WaitingFor: map[domain.EntryIndex]struct{}{1: {}},
	}))
	status, err := mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusSuspended {
		t.Fatalf("expected StatusSuspended, got %v", status.Kind)
	}

	apply(t, ip, mem, buf, domain.NewInvocationResponseCommand(domain.InvocationResponseCommand{
		Id: domain.FromFull(inv.Fid), EntryIndex: 1, Result: domain.SuccessCompletion([]byte("42")),
	}))
	status, err = mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusInvoked {
		t.Fatalf("expected invocation to resume to StatusInvoked once its only awaited entry completed, got %v", status.Kind)
	}
}

func TestSuspendedRejectsEmptyWaitingFor(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	inv := domain.ServiceInvocation{Fid: testFid("dave"), MethodName: "greet", Source: domain.IngressSource()}
	apply(t, ip, mem, buf, domain.NewInvokeCommand(inv))

	buf.Clear()
	_, err := ip.OnApply(context.Background(), domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: inv.Fid, Kind: domain.EffectSuspended, WaitingFor: map[domain.EntryIndex]struct{}{},
	}), buf, mem)

	if err == nil {
		t.Fatalf("expected an invariant violation for an empty waiting-for set")
	}
}

func TestKillEndsInvocationWithKilledError(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	sink := domain.IngressSink("req-2")
	inv := domain.ServiceInvocation{Fid: testFid("erin"), MethodName: "greet", Source: domain.IngressSource(), ResponseSink: &sink}
	apply(t, ip, mem, buf, domain.NewInvokeCommand(inv))

	apply(t, ip, mem, buf, domain.NewTerminateInvocationCommand(domain.KillTermination(domain.FromFull(inv.Fid))))

	status, err := mem.GetInvocationStatus(context.Background(), inv.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus: %v", err)
	}
	if status.Kind != domain.StatusFree {
		t.Fatalf("expected invocation to be Free after kill, got %v", status.Kind)
	}

	var gotResponse bool
	for _, e := range buf.Effects {
		if e.Kind == effects.SendIngressResponse && e.IngressResponse.Result.FailureCode == uint16(domain.ErrCodeKilled) {
			gotResponse = true
		}
	}
	if !gotResponse {
		t.Fatalf("expected a killed-invocation ingress response, got %+v", buf.Effects)
	}
}

func TestTerminateInboxedInvocationRemovesItWithoutTouchingTheLockHolder(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	holder := domain.ServiceInvocation{Fid: testFid("frank"), MethodName: "greet", Source: domain.IngressSource()}
	waiting := domain.ServiceInvocation{Fid: testFid("frank-2"), MethodName: "greet", Source: domain.IngressSource()}
	waiting.Fid.ServiceId = holder.Fid.ServiceId

	apply(t, ip, mem, buf, domain.NewInvokeCommand(holder))
	apply(t, ip, mem, buf, domain.NewInvokeCommand(waiting))

	apply(t, ip, mem, buf, domain.NewTerminateInvocationCommand(domain.CancelTermination(domain.FromFull(waiting.Fid))))

	holderStatus, err := mem.GetInvocationStatus(context.Background(), holder.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus(holder): %v", err)
	}
	if holderStatus.Kind != domain.StatusInvoked {
		t.Fatalf("expected lock holder to remain Invoked, got %v", holderStatus.Kind)
	}

	if _, found, err := mem.GetInboxedInvocation(context.Background(), domain.FromFull(waiting.Fid)); err != nil || found {
		t.Fatalf("expected the waiting invocation's inbox entry to be removed, found=%v err=%v", found, err)
	}

	waitingStatus, err := mem.GetInvocationStatus(context.Background(), waiting.Fid.InvocationId())
	if err != nil {
		t.Fatalf("GetInvocationStatus(waiting): %v", err)
	}
	if waitingStatus.Kind != domain.StatusInboxed {
		t.Fatalf("Memory does not delete invocation statuses on inbox removal by design; expected stale StatusInboxed, got %v", waitingStatus.Kind)
	}
}

func TestTruncateOutboxEmitsTruncateEffect(t *testing.T) {
	ip, mem, buf := newTestInterpreter()
	apply(t, ip, mem, buf, domain.NewTruncateOutboxCommand(10))

	if len(buf.Effects) != 1 || buf.Effects[0].Kind != effects.TruncateOutbox || buf.Effects[0].TruncateUpTo != 10 {
		t.Fatalf("expected a single TruncateOutbox effect up to 10, got %+v", buf.Effects)
	}
}
