// Package interp implements the partition command interpreter: the
// deterministic, replay-safe state machine that turns one domain.Command
// plus the current committed state into an effects.Buffer. It never talks
// to storage, the network, or a clock directly -- every read goes through
// state.Reader and every write comes out as a buffered effect, so that
// running the same command against the same reader twice produces
// byte-identical effects.
package interp

import (
	"context"
	"time"

	"github.com/oriys/partitiond/internal/codec"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// Clock abstracts "now". New installs the system clock and WithClock
// replaces it; no command handler reads it, since every timestamp the
// interpreter emits comes from the command or journal entry being applied.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Interpreter holds the two monotonic sequence counters a partition owns
// (inbox and outbox) plus its key range, and applies commands against them.
// A partition owns exactly one Interpreter for its lifetime; on leader
// failover the new leader reconstructs one from the last committed
// sequence numbers before accepting new commands.
type Interpreter struct {
	InboxSeqNumber  uint64
	OutboxSeqNumber uint64

	partitionRange domain.PartitionKeyRange
	codec          codec.EntryCodec
	clock          Clock
}

// New constructs an Interpreter seeded with the sequence numbers recovered
// from storage (both 0 for a brand-new partition).
func New(inboxSeq, outboxSeq uint64, partitionRange domain.PartitionKeyRange, entryCodec codec.EntryCodec) *Interpreter {
	return &Interpreter{
		InboxSeqNumber:  inboxSeq,
		OutboxSeqNumber: outboxSeq,
		partitionRange:  partitionRange,
		codec:           entryCodec,
		clock:           systemClock{},
	}
}

// WithClock replaces the interpreter's clock. No command handler reads the
// clock, so this does not change the effects OnApply emits.
func (ip *Interpreter) WithClock(c Clock) *Interpreter {
	ip.clock = c
	return ip
}

// Applied is returned by OnApply: the invocation the command was related to
// (for logging/tracing at the call site) and the span relation a freshly
// created invocation, if any, should be traced under.
type Applied struct {
	RelatedInvocation *domain.FullInvocationId
	Span              domain.SpanRelation
}

// OnApply is the single entry point: dispatch on cmd.Kind, read whatever
// committed state the handler needs through reader, and append every
// resulting effect to buf. buf is never cleared here; the caller clears it
// between commands so that a failed OnApply call leaves no partial effects
// for the caller to accidentally commit.
func (ip *Interpreter) OnApply(ctx context.Context, cmd domain.Command, buf *effects.Buffer, reader state.Reader) (Applied, error) {
	switch cmd.Kind {
	case domain.CmdInvoke:
		return ip.handleInvoke(ctx, buf, reader, *cmd.Invoke)
	case domain.CmdInvocationResponse:
		return ip.handleInvocationResponse(ctx, buf, reader, *cmd.InvocationResponse)
	case domain.CmdInvokerEffect:
		return ip.handleInvokerEffect(ctx, buf, reader, *cmd.InvokerEffect)
	case domain.CmdTruncateOutbox:
		buf.TruncateOutbox(cmd.TruncateOutboxUpTo)
		return Applied{}, nil
	case domain.CmdTimer:
		return ip.handleTimer(ctx, buf, reader, *cmd.Timer)
	case domain.CmdTerminateInvocation:
		return ip.handleTerminateInvocation(ctx, buf, reader, *cmd.Termination)
	case domain.CmdBuiltInInvokerEffect:
		return ip.handleBuiltInInvokerEffect(ctx, buf, reader, *cmd.BuiltInEffects)
	case domain.CmdPatchState:
		return ip.handlePatchState(ctx, buf, reader, *cmd.PatchState)
	case domain.CmdAnnounceLeader:
		// Leadership bookkeeping lives entirely in the partition run loop;
		// the interpreter has nothing to do beyond acknowledging receipt.
		return Applied{}, nil
	default:
		return Applied{}, invariantViolation("unknown command kind %v", cmd.Kind)
	}
}
