package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleTerminateInvocation resolves the command's target and applies Kill
// or Cancel semantics against whatever state it is currently in. A target
// that cannot be found (Free -- already finished, or never existed) is a
// silent no-op: termination commands race invocations finishing on their
// own and must tolerate arriving after the fact.
func (ip *Interpreter) handleTerminateInvocation(ctx context.Context, buf *effects.Buffer, reader state.Reader, term domain.InvocationTermination) (Applied, error) {
	iid := term.MaybeFid.InvocationId()

	if inboxed, found, err := reader.GetInboxedInvocation(ctx, term.MaybeFid); err != nil {
		return Applied{}, err
	} else if found {
		return ip.terminateInboxedInvocation(buf, term, *inboxed)
	}

	status, err := reader.GetInvocationStatus(ctx, iid)
	if err != nil {
		return Applied{}, err
	}

	switch status.Kind {
	case domain.StatusFree:
		return Applied{}, nil
	case domain.StatusInvoked, domain.StatusSuspended:
		fid := domain.CombineFullInvocationId(status.Metadata.ServiceId, iid)
		if term.Flavor == domain.TerminationKill {
			return ip.killInvocation(ctx, buf, reader, status, fid)
		}
		return ip.cancelInvocation(ctx, buf, reader, status, fid)
	default:
		return Applied{}, invariantViolation("unknown invocation status kind %v", status.Kind)
	}
}

// terminateInboxedInvocation removes a not-yet-started invocation from its
// object's inbox. Kill and Cancel are indistinguishable here: no user code
// has run, so there is nothing to unwind, only a terminal error to report
// to whoever is waiting on the result.
func (ip *Interpreter) terminateInboxedInvocation(buf *effects.Buffer, term domain.InvocationTermination, inboxed domain.SequenceNumberInvocation) (Applied, error) {
	buf.DeleteInboxEntry(inboxed.Invocation.Fid.ServiceId, inboxed.InboxSequenceNumber)

	invErr := domain.CanceledInvocationError
	if term.Flavor == domain.TerminationKill {
		invErr = domain.KilledInvocationError
	}
	buf.TraceInvocationResult(inboxed.Invocation.Fid, effects.InvocationResultTrace{
		Ok:           false,
		ErrorCode:    invErr.Code,
		ErrorMessage: invErr.Message,
	})
	if inboxed.Invocation.ResponseSink != nil {
		ip.sendResponse(buf, inboxed.Invocation.Fid, *inboxed.Invocation.ResponseSink, invErr.ToCompletionResult())
	}
	return Applied{RelatedInvocation: &inboxed.Invocation.Fid}, nil
}

// killInvocation unconditionally ends a running or suspended invocation: it
// never gives the invocation's own code a chance to react, and it
// transitively kills every child invocation it has spawned via blocking or
// background Invoke entries, so a kill never leaves orphaned work behind.
func (ip *Interpreter) killInvocation(ctx context.Context, buf *effects.Buffer, reader state.Reader, status domain.InvocationStatus, fid domain.FullInvocationId) (Applied, error) {
	if err := ip.killChildInvocations(ctx, buf, reader, fid, status.Metadata.Journal.Length); err != nil {
		return Applied{}, err
	}
	killedErr := domain.KilledInvocationError
	ip.endInvocation(buf, status, fid, &killedErr)
	return Applied{RelatedInvocation: &fid}, nil
}

// killChildInvocations walks every Invoke/BackgroundInvoke journal entry the
// invocation produced and routes a Kill termination to each child's
// partition, regardless of whether that child has already finished; a kill
// delivered to a Free invocation is a harmless no-op when it applies there.
func (ip *Interpreter) killChildInvocations(ctx context.Context, buf *effects.Buffer, reader state.Reader, fid domain.FullInvocationId, length domain.EntryIndex) error {
	it, err := reader.JournalEntries(ctx, fid.InvocationId(), length)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		_, entry, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if entry.Kind != domain.JournalEntryRaw {
			continue
		}
		header := entry.Entry.Header
		if (header.Type != domain.EntryInvoke && header.Type != domain.EntryBackgroundInvoke) || header.InvokeEnrichment == nil {
			continue
		}
		childFid := domain.NewFullInvocationId(header.InvokeEnrichment.ServiceName, header.InvokeEnrichment.Key, header.InvokeEnrichment.InvocationUuid)
		buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), domain.NewOutboxTermination(domain.KillTermination(domain.FromFull(childFid))))
	}
	return nil
}

// cancelInvocation delivers a canceled-invocation completion to every
// journal entry currently open at the tail of the invocation's history --
// its "leaves" -- giving running or parked user code a chance to observe
// the cancellation and run compensation logic, rather than tearing the
// invocation down outright the way Kill does. Any leaf that is itself a
// pending call to a child invocation also forwards a Cancel (not Kill) to
// that child, so cancellation propagates down a call tree without also
// forcibly terminating it.
func (ip *Interpreter) cancelInvocation(ctx context.Context, buf *effects.Buffer, reader state.Reader, status domain.InvocationStatus, fid domain.FullInvocationId) (Applied, error) {
	iid := fid.InvocationId()

	var leaves map[domain.EntryIndex]struct{}
	if status.Kind == domain.StatusSuspended {
		leaves = status.WaitingFor
	} else {
		var err error
		leaves, err = ip.openLeafEntries(ctx, reader, iid, status.Metadata.Journal.Length)
		if err != nil {
			return Applied{}, err
		}
	}

	it, err := reader.JournalEntries(ctx, iid, status.Metadata.Journal.Length)
	if err != nil {
		return Applied{}, err
	}
	defer it.Close()

	entryByIndex := make(map[domain.EntryIndex]domain.JournalEntry, len(leaves))
	for {
		idx, entry, ok, err := it.Next(ctx)
		if err != nil {
			return Applied{}, err
		}
		if !ok {
			break
		}
		if _, wanted := leaves[idx]; wanted {
			entryByIndex[idx] = entry
		}
	}

	for idx := range leaves {
		entry := entryByIndex[idx]
		if entry.Kind == domain.JournalEntryRaw {
			header := entry.Entry.Header
			if (header.Type == domain.EntryInvoke || header.Type == domain.EntryBackgroundInvoke) && header.InvokeEnrichment != nil {
				childFid := domain.NewFullInvocationId(header.InvokeEnrichment.ServiceName, header.InvokeEnrichment.Key, header.InvokeEnrichment.InvocationUuid)
				buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), domain.NewOutboxTermination(domain.CancelTermination(domain.FromFull(childFid))))
			}
		}
		buf.StoreCompletion(iid, domain.Completion{EntryIndex: idx, Result: domain.CanceledInvocationError.ToCompletionResult()})
	}

	if status.Kind == domain.StatusSuspended {
		buf.ResumeService(fid, status.Metadata)
	} else {
		for idx := range leaves {
			buf.ForwardCompletion(fid, domain.Completion{EntryIndex: idx, Result: domain.CanceledInvocationError.ToCompletionResult()})
		}
	}
	return Applied{RelatedInvocation: &fid}, nil
}

// openLeafEntries finds the trailing run of completable journal entries
// that have not yet been completed: the entries an actively running
// invocation could plausibly be blocked on right now. Scanning stops at the
// first completed (or non-completable) entry encountered walking backward,
// since anything before that point has already been resolved and is no
// longer "open".
func (ip *Interpreter) openLeafEntries(ctx context.Context, reader state.Reader, iid domain.InvocationId, length domain.EntryIndex) (map[domain.EntryIndex]struct{}, error) {
	it, err := reader.JournalEntries(ctx, iid, length)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ordered []domain.EntryIndex
	for {
		idx, entry, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if entry.Kind == domain.JournalEntryRaw && entry.Entry.Header.Type.CompletableEntry() && !entry.Entry.Header.IsCompleted {
			ordered = append(ordered, idx)
		} else {
			ordered = nil // anything before a resolved/non-completable entry is no longer a leaf
		}
	}

	leaves := make(map[domain.EntryIndex]struct{}, len(ordered))
	for _, idx := range ordered {
		leaves[idx] = struct{}{}
	}
	return leaves, nil
}
