package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/partitiond/internal/codec"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleInvokerEffect folds one progress report from the invoker actuator
// into effects. A report for an invocation that is no longer Invoked (it
// already ended, was aborted, or was killed) is dropped rather than
// rejected: the invoker and the partition apply commands independently, and
// a late effect racing a termination is expected, not exceptional.
func (ip *Interpreter) handleInvokerEffect(ctx context.Context, buf *effects.Buffer, reader state.Reader, ie domain.InvokerEffect) (Applied, error) {
	iid := ie.Fid.InvocationId()
	status, err := reader.GetInvocationStatus(ctx, iid)
	if err != nil {
		return Applied{}, err
	}
	if status.Kind != domain.StatusInvoked {
		return Applied{RelatedInvocation: &ie.Fid}, nil
	}

	switch ie.Kind {
	case domain.EffectSelectedDeployment:
		buf.StoreChosenDeployment(ie.Fid, ie.DeploymentId)
	case domain.EffectJournalEntry:
		if err := ip.handleJournalEntry(ctx, buf, reader, status, ie); err != nil {
			return Applied{}, err
		}
	case domain.EffectSuspended:
		if len(ie.WaitingFor) == 0 {
			return Applied{}, invariantViolation("invocation %s suspended with an empty waiting-for set", ie.Fid)
		}
		buf.SuspendService(ie.Fid, status.Metadata, ie.WaitingFor)
	case domain.EffectEnd:
		ip.endInvocation(buf, status, ie.Fid, nil)
	case domain.EffectFailed:
		ip.endInvocation(buf, status, ie.Fid, &ie.Error)
	default:
		return Applied{}, invariantViolation("unknown invoker effect kind %v", ie.Kind)
	}
	return Applied{RelatedInvocation: &ie.Fid}, nil
}

// endInvocation closes out an invocation's lifecycle: drops its journal,
// releases the object lock, pops the next inbox entry if any, and, when the
// invocation failed, delivers the failure to whichever sink is waiting on it.
// A successful result reaches the sink earlier, when its Output entry is
// journaled.
func (ip *Interpreter) endInvocation(buf *effects.Buffer, status domain.InvocationStatus, fid domain.FullInvocationId, invErr *domain.InvocationError) {
	iid := fid.InvocationId()
	buf.AbortInvocation(fid)
	buf.DropJournalAndPopInbox(fid.ServiceId, iid, status.Metadata.Journal.Length)

	trace := effects.InvocationResultTrace{Ok: invErr == nil}
	if invErr != nil {
		trace.ErrorCode = invErr.Code
		trace.ErrorMessage = invErr.Message
	}
	buf.TraceInvocationResult(fid, trace)

	if invErr != nil && status.Metadata.ResponseSink != nil {
		ip.sendResponse(buf, fid, *status.Metadata.ResponseSink, invErr.ToCompletionResult())
	}
}

// sendResponse routes a terminal (or completion) result to its sink: either
// straight out to an ingress, or into the outbox addressed at the caller
// invocation that is awaiting it, possibly on another partition.
func (ip *Interpreter) sendResponse(buf *effects.Buffer, fid domain.FullInvocationId, sink domain.ResponseSink, result domain.CompletionResult) {
	switch sink.Kind {
	case domain.SinkIngress:
		buf.SendIngressResponse(domain.ResponseMessage{Fid: fid, Sink: sink, Result: result})
	case domain.SinkPartitionProcessor:
		buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), domain.NewOutboxResponse(domain.ResponseMessage{
			Fid:    fid,
			Sink:   sink,
			Result: result,
		}))
	}
}

// handleJournalEntry appends a newly produced journal entry and, for the
// entry types whose completion the interpreter itself can resolve (state
// reads/writes, sleeps, outgoing invokes, awakeable completions), emits the
// side effects that entry triggers.
func (ip *Interpreter) handleJournalEntry(ctx context.Context, buf *effects.Buffer, reader state.Reader, status domain.InvocationStatus, ie domain.InvokerEffect) error {
	fid := ie.Fid
	iid := fid.InvocationId()
	idx := ie.EntryIndex
	buf.AppendJournalEntry(fid, idx, ie.Entry)

	typed, err := ip.codec.Decode(ie.Entry)
	if err != nil {
		return fmt.Errorf("decode journal entry %d for %s: %w", idx, fid, err)
	}

	switch ie.Entry.Header.Type {
	case domain.EntryGetState:
		value, ok, err := reader.LoadState(ctx, fid.ServiceId, typed.Key)
		if err != nil {
			return err
		}
		result := domain.EmptyCompletion()
		if ok {
			result = domain.SuccessCompletion(value)
		}
		ip.forwardAndStore(buf, fid, iid, idx, result)
	case domain.EntryGetStateKeys:
		keys, err := reader.LoadStateKeys(ctx, fid.ServiceId)
		if err != nil {
			return err
		}
		ip.forwardAndStore(buf, fid, iid, idx, ip.codec.EncodeStateKeys(keys))
	case domain.EntrySetState:
		buf.SetState(fid.ServiceId, typed.Key, typed.Value)
		ip.forwardAndStore(buf, fid, iid, idx, domain.EmptyCompletion())
	case domain.EntryClearState:
		buf.ClearState(fid.ServiceId, typed.Key)
		ip.forwardAndStore(buf, fid, iid, idx, domain.EmptyCompletion())
	case domain.EntryClearAllState:
		buf.ClearAllState(fid.ServiceId)
		ip.forwardAndStore(buf, fid, iid, idx, domain.EmptyCompletion())
	case domain.EntrySleep:
		buf.RegisterTimer(domain.NewSleepTimer(domain.TimerKey{
			Timestamp:      time.UnixMilli(typed.WakeUpTime),
			InvocationUuid: fid.InvocationUuid,
			JournalIndex:   idx,
		}, fid.ServiceId))
	case domain.EntryInvoke, domain.EntryBackgroundInvoke:
		return ip.handleOutgoingInvoke(buf, fid, idx, ie.Entry.Header, typed)
	case domain.EntryCompleteAwakeable:
		buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), domain.NewOutboxAwakeableCompletion(domain.AwakeableCompletion{
			TargetInvocationId: ie.Entry.Header.AwakeableEnrichment.InvocationId,
			TargetEntryIndex:   ie.Entry.Header.AwakeableEnrichment.EntryIndex,
			Result:             typed.CompleteResult,
		}))
	case domain.EntryOutput:
		if status.Metadata.ResponseSink != nil {
			ip.sendResponse(buf, fid, *status.Metadata.ResponseSink, typed.OutputResult)
		}
	case domain.EntryAwakeable, domain.EntryInput, domain.EntryCustom:
		// No interpreter-resolved side effect.
	}
	return nil
}

func (ip *Interpreter) forwardAndStore(buf *effects.Buffer, fid domain.FullInvocationId, iid domain.InvocationId, idx domain.EntryIndex, result domain.CompletionResult) {
	completion := domain.Completion{EntryIndex: idx, Result: result}
	buf.StoreCompletion(iid, completion)
	buf.ForwardCompletion(fid, completion)
}

// handleOutgoingInvoke builds the invocation a journal Invoke or
// BackgroundInvoke entry requested and enqueues it in the outbox; the
// shuffler later delivers it as an Invoke command to the callee's partition,
// where handleInvoke applies the lock/inbox logic. A BackgroundInvoke never
// waits on its callee, so it gets no ResponseSink.
func (ip *Interpreter) handleOutgoingInvoke(buf *effects.Buffer, caller domain.FullInvocationId, entryIndex domain.EntryIndex, header domain.EntryHeader, typed codec.TypedEntry) error {
	if header.InvokeEnrichment == nil {
		return invariantViolation("Invoke/BackgroundInvoke entry %d for %s has no enrichment", entryIndex, caller)
	}
	enrichment := header.InvokeEnrichment

	calleeFid := domain.NewFullInvocationId(enrichment.ServiceName, enrichment.Key, enrichment.InvocationUuid)
	var sink *domain.ResponseSink
	if header.Type == domain.EntryInvoke {
		s := domain.PartitionProcessorSink(caller, entryIndex)
		sink = &s
	}

	invocation := domain.ServiceInvocation{
		Fid:          calleeFid,
		MethodName:   typed.Request.Method,
		Argument:     typed.Request.Argument,
		Source:       domain.ServiceSource(caller),
		ResponseSink: sink,
		SpanContext:  enrichment.SpanContext,
	}
	if typed.InvokeTime > 0 {
		t := time.UnixMilli(typed.InvokeTime)
		invocation.ExecutionTime = &t
	}

	// The callee's lock status is irrelevant here: this is merely queuing
	// the request for a follow-up Invoke command, not creating it directly,
	// since the object lock check belongs to handleInvoke/createServiceInvocation
	// and must run against state as of whenever that command actually applies.
	buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), domain.NewOutboxServiceInvocation(invocation))
	return nil
}
