package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleTimer fires one due timer. The timer is always deleted first --
// whether or not what it triggers still applies to anything -- since a
// fired timer is consumed exactly once regardless of outcome.
func (ip *Interpreter) handleTimer(ctx context.Context, buf *effects.Buffer, reader state.Reader, tv domain.TimerValue) (Applied, error) {
	buf.DeleteTimer(tv.Key)

	switch tv.Value.Kind {
	case domain.TimerInvoke:
		invocation := tv.Value.Invocation
		invocation.ExecutionTime = nil
		if err := ip.createServiceInvocation(ctx, buf, reader, invocation); err != nil {
			return Applied{}, err
		}
		return Applied{RelatedInvocation: &invocation.Fid}, nil

	case domain.TimerCompleteSleepEntry:
		iid := domain.InvocationId{
			PartitionKey:   tv.Value.ServiceId.PartitionKeyOf(),
			InvocationUuid: tv.Key.InvocationUuid,
		}
		status, err := reader.GetInvocationStatus(ctx, iid)
		if err != nil {
			return Applied{}, err
		}
		switch status.Kind {
		case domain.StatusInvoked:
			return ip.completeInvoked(buf, status, iid, tv.Key.JournalIndex, domain.EmptyCompletion())
		case domain.StatusSuspended:
			return ip.completeSuspended(buf, status, iid, tv.Key.JournalIndex, domain.EmptyCompletion())
		case domain.StatusFree, domain.StatusInboxed:
			return Applied{}, nil
		default:
			return Applied{}, invariantViolation("unknown invocation status kind %v", status.Kind)
		}

	default:
		return Applied{}, invariantViolation("unknown timer kind %v", tv.Value.Kind)
	}
}
