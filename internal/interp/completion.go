package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleInvocationResponse delivers a completion to whichever invocation
// requested it. A completion for an invocation that has already finished
// (Free) or is still waiting in an inbox (never started running) is
// dropped: both are legitimate races between a response arriving and the
// invocation it targets having moved on, and redelivery must be idempotent.
func (ip *Interpreter) handleInvocationResponse(ctx context.Context, buf *effects.Buffer, reader state.Reader, resp domain.InvocationResponseCommand) (Applied, error) {
	iid := resp.Id.InvocationId()
	status, err := reader.GetInvocationStatus(ctx, iid)
	if err != nil {
		return Applied{}, err
	}

	switch status.Kind {
	case domain.StatusInvoked:
		return ip.completeInvoked(buf, status, iid, resp.EntryIndex, resp.Result)
	case domain.StatusSuspended:
		return ip.completeSuspended(buf, status, iid, resp.EntryIndex, resp.Result)
	case domain.StatusFree, domain.StatusInboxed:
		return Applied{}, nil
	default:
		return Applied{}, invariantViolation("unknown invocation status kind %v", status.Kind)
	}
}

func (ip *Interpreter) completeInvoked(buf *effects.Buffer, status domain.InvocationStatus, iid domain.InvocationId, entryIndex domain.EntryIndex, result domain.CompletionResult) (Applied, error) {
	fid := domain.CombineFullInvocationId(status.Metadata.ServiceId, iid)
	buf.StoreCompletion(iid, domain.Completion{EntryIndex: entryIndex, Result: result})
	buf.ForwardCompletion(fid, domain.Completion{EntryIndex: entryIndex, Result: result})
	return Applied{RelatedInvocation: &fid}, nil
}

func (ip *Interpreter) completeSuspended(buf *effects.Buffer, status domain.InvocationStatus, iid domain.InvocationId, entryIndex domain.EntryIndex, result domain.CompletionResult) (Applied, error) {
	fid := domain.CombineFullInvocationId(status.Metadata.ServiceId, iid)
	buf.StoreCompletion(iid, domain.Completion{EntryIndex: entryIndex, Result: result})

	remaining := remainingWaitingFor(status.WaitingFor, entryIndex)
	if len(remaining) == 0 {
		buf.ResumeService(fid, status.Metadata)
	} else {
		buf.SuspendService(fid, status.Metadata, remaining)
	}
	return Applied{RelatedInvocation: &fid}, nil
}

func remainingWaitingFor(waitingFor map[domain.EntryIndex]struct{}, resolved domain.EntryIndex) map[domain.EntryIndex]struct{} {
	remaining := make(map[domain.EntryIndex]struct{}, len(waitingFor))
	for idx := range waitingFor {
		if idx != resolved {
			remaining[idx] = struct{}{}
		}
	}
	return remaining
}
