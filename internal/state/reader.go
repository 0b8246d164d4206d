// Package state defines the read-side storage contract the command
// interpreter depends on (Reader) and a journal iterator abstraction
// used to walk an invocation's history during cancellation and kill.
// Nothing here decides how those reads are satisfied; internal/storage
// provides the Postgres-backed implementation, and Memory (memory.go, in
// this package) provides an in-memory one for unit tests.
package state

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
)

// Reader is the read-only view of partition state the interpreter consults
// while applying a command. Every method is scoped to data already
// committed by a prior command's effects; the interpreter never reads
// effects it itself produced in the current command.
type Reader interface {
	GetVirtualObjectStatus(ctx context.Context, sid domain.ServiceId) (domain.VirtualObjectStatus, error)
	GetInvocationStatus(ctx context.Context, iid domain.InvocationId) (domain.InvocationStatus, error)

	// GetInboxedInvocation resolves a bare or full invocation id to its
	// inboxed entry, used when a termination command only carries a bare id.
	GetInboxedInvocation(ctx context.Context, id domain.MaybeFullInvocationId) (*domain.SequenceNumberInvocation, bool, error)

	LoadState(ctx context.Context, sid domain.ServiceId, key string) ([]byte, bool, error)
	LoadStateKeys(ctx context.Context, sid domain.ServiceId) ([]string, error)

	LoadCompletionResult(ctx context.Context, iid domain.InvocationId, entryIndex domain.EntryIndex) (domain.CompletionResult, bool, error)

	// JournalEntries opens a forward iterator over an invocation's journal
	// starting at entry 0. Callers that only need a prefix (e.g. cancel's
	// top-level scan) are free to stop early.
	JournalEntries(ctx context.Context, iid domain.InvocationId, length domain.EntryIndex) (JournalIterator, error)
}

// JournalIterator walks journal entries in index order. Next returns
// ok == false once the iterator is exhausted, with err == nil.
type JournalIterator interface {
	Next(ctx context.Context) (index domain.EntryIndex, entry domain.JournalEntry, ok bool, err error)
	Close() error
}
