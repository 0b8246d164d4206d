package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handlePatchState applies an out-of-band state mutation (PatchState
// command) the same way an invocation would be dispatched: if the target
// object is unlocked the mutation commits immediately, otherwise it waits
// in the object's inbox behind whatever invocation currently holds the
// lock, so that a patch can never interleave with an in-flight journal.
func (ip *Interpreter) handlePatchState(ctx context.Context, buf *effects.Buffer, reader state.Reader, mutation domain.ExternalStateMutation) (Applied, error) {
	status, err := reader.GetVirtualObjectStatus(ctx, mutation.ServiceId)
	if err != nil {
		return Applied{}, err
	}

	switch status.Kind {
	case domain.Unlocked:
		buf.ApplyStateMutation(mutation)
	case domain.Locked:
		seq := ip.InboxSeqNumber
		ip.InboxSeqNumber++
		buf.EnqueueIntoInbox(mutation.ServiceId, seq, domain.InboxEntry{
			Kind:     domain.InboxStateMutation,
			Mutation: mutation,
		})
	default:
		return Applied{}, invariantViolation("unknown virtual object status kind %v", status.Kind)
	}
	return Applied{}, nil
}
