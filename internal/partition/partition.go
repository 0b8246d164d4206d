// Package partition is the run loop that turns internal/interp from a pure
// function nothing calls into an actual partition process: it owns one
// Interpreter, serializes commands through OnApply one at a time (the
// interpreter itself is not safe for concurrent use, since its sequence
// counters and the effects buffer it's handed are shared mutable state),
// commits the resulting effects to internal/storage, and checkpoints its
// progress so a restart resumes instead of replaying from zero.
package partition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/partitiond/internal/checkpoint"
	"github.com/oriys/partitiond/internal/codec"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/interp"
	"github.com/oriys/partitiond/internal/logging"
	"github.com/oriys/partitiond/internal/metrics"
	"github.com/oriys/partitiond/internal/observability"
	"github.com/oriys/partitiond/internal/state"
	"github.com/oriys/partitiond/internal/storage"
)

// Storage is the subset of storage.Engine the run loop depends on; tests
// substitute state.Memory wrapped in memStorage (see partition_test.go).
type Storage interface {
	state.Reader
	Commit(ctx context.Context, buf *effects.Buffer) error
}

// Partition owns one partition's interpreter, storage, and lease, and
// exposes Submit as the only way commands enter it.
type Partition struct {
	ID    string
	Range domain.PartitionKeyRange

	mu       sync.Mutex
	ip       *interp.Interpreter
	store    Storage
	buf      *effects.Buffer
	notifier Notifier
	leases   *Lease
	checks   *checkpoint.Store
	log      *logging.Logger

	flushEvery   int
	sinceFlush   int
	lastOffset   uint64
	commitErrors int

	invokerHook InvokerHook
	ingressHook IngressHook
}

// InvokerHook is the invoker actuator's half of the contract: whenever
// Submit's effects include a fresh InvokeService, the partition hands the
// invocation off so the invoker can dispatch it to deployed service code
// without the interpreter ever blocking on network I/O.
type InvokerHook interface {
	Dispatch(ctx context.Context, p *Partition, inv domain.ServiceInvocation)
}

// IngressHook is the ingress gateway's half of the contract: whenever
// Submit's effects include a SendIngressResponse, the partition hands the
// resolved response to whichever HTTP request is still blocked waiting on it.
type IngressHook interface {
	Deliver(msg domain.ResponseMessage)
}

// SetInvokerHook wires the invoker actuator into this partition. Nil is a
// valid value (no invoker attached, used by tests that only exercise the
// interpreter/storage path).
func (p *Partition) SetInvokerHook(h InvokerHook) { p.invokerHook = h }

// SetIngressHook wires the ingress gateway into this partition.
func (p *Partition) SetIngressHook(h IngressHook) { p.ingressHook = h }

// New constructs a partition run loop. It loads the last checkpoint from
// store (if any) to seed the interpreter's sequence counters, so a restarted
// process continues the inbox/outbox numbering instead of reusing sequence
// numbers already committed to storage.
func New(ctx context.Context, id string, keyRange domain.PartitionKeyRange, store *storage.Engine, notifier Notifier) (*Partition, error) {
	inboxSeq, outboxSeq := uint64(0), uint64(0)
	if rec, err := store.LoadCheckpoint(ctx, id); err != nil {
		return nil, fmt.Errorf("partition %s: load checkpoint: %w", id, err)
	} else if rec != nil {
		inboxSeq, outboxSeq = rec.InboxSeq, rec.OutboxSeq
	}

	return &Partition{
		ID:         id,
		Range:      keyRange,
		ip:         interp.New(inboxSeq, outboxSeq, keyRange, codec.JSON{}),
		store:      store,
		buf:        &effects.Buffer{},
		notifier:   notifier,
		leases:     NewLease(id),
		checks:     checkpoint.NewStore(),
		log:        logging.Default(),
		flushEvery: 50,
	}, nil
}

// Submit applies one command through the interpreter, commits its effects,
// and reports the outcome to the ambient observability stack. It is the
// partition's only entry point; callers (the ingress gateway, the invoker,
// the timer service, the outbox shuffler) never touch the interpreter
// directly.
func (p *Partition) Submit(ctx context.Context, cmd domain.Command) (interp.Applied, error) {
	if !p.leases.Held() {
		return interp.Applied{}, fmt.Errorf("partition %s: lease not held, refusing command", p.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "partition.Submit",
		observability.AttrPartitionID.String(p.ID),
		observability.AttrCommandKind.String(cmd.Kind.String()))
	defer span.End()

	start := time.Now()
	p.buf.Clear()

	applied, err := p.ip.OnApply(ctx, cmd, p.buf, p.store)
	if err != nil {
		observability.SetSpanError(span, err)
		p.recordCommand(cmd, time.Since(start), false)
		return interp.Applied{}, fmt.Errorf("partition %s: apply %s: %w", p.ID, cmd.Kind, err)
	}

	if err := p.store.Commit(ctx, p.buf); err != nil {
		observability.SetSpanError(span, err)
		p.commitErrors++
		p.recordCommand(cmd, time.Since(start), false)
		return interp.Applied{}, fmt.Errorf("partition %s: commit %s: %w", p.ID, cmd.Kind, err)
	}

	p.lastOffset++
	p.maybeCheckpoint(ctx)
	p.notify(ctx, p.buf)
	p.dispatchActuators(ctx, p.buf)

	observability.SetSpanOK(span)
	p.recordCommand(cmd, time.Since(start), true)
	return applied, nil
}

func (p *Partition) recordCommand(cmd domain.Command, dur time.Duration, ok bool) {
	metrics.Global().RecordCommand(p.ID, cmd.Kind.String(), dur.Milliseconds(), ok)
	p.log.Log(&logging.CommandLog{
		Timestamp:      time.Now(),
		PartitionID:    p.ID,
		CommandKind:    cmd.Kind.String(),
		DurationMs:     dur.Milliseconds(),
		EffectsEmitted: p.buf.Len(),
		Success:        ok,
	})
}

// maybeCheckpoint persists a CommitRecord every flushEvery commits rather
// than on every single one: the checkpoint only needs to be fresh enough
// that replay-from-checkpoint on restart is cheap, not byte-exact with the
// last committed effect.
func (p *Partition) maybeCheckpoint(ctx context.Context) {
	p.sinceFlush++
	if p.sinceFlush < p.flushEvery {
		return
	}
	p.sinceFlush = 0
	rec := checkpoint.CommitRecord{
		PartitionID: p.ID,
		LogOffset:   p.lastOffset,
		InboxSeq:    p.ip.InboxSeqNumber,
		OutboxSeq:   p.ip.OutboxSeqNumber,
	}
	p.checks.Save(rec)
	if eng, ok := p.store.(*storage.Engine); ok {
		if err := eng.SaveCheckpoint(ctx, rec); err != nil {
			logging.Op().Warn("checkpoint flush failed", "partition", p.ID, "error", err)
		}
	}
}

// notify wakes up the timer service and shuffler if this command produced
// work they care about, so they don't wait out a full poll interval before
// noticing a freshly registered timer or outbox message.
func (p *Partition) notify(ctx context.Context, buf *effects.Buffer) {
	if p.notifier == nil {
		return
	}
	var sawTimer, sawOutbox bool
	for _, e := range buf.Effects {
		switch e.Kind {
		case effects.RegisterTimer:
			sawTimer = true
		case effects.EnqueueIntoOutbox:
			sawOutbox = true
		}
	}
	if sawTimer {
		_ = p.notifier.Notify(ctx, SignalTimer)
	}
	if sawOutbox {
		_ = p.notifier.Notify(ctx, SignalOutbox)
	}
}

// dispatchActuators hands freshly committed invocations and ingress
// responses to whichever actuators are attached. It copies the effects it
// cares about out of buf before returning, since buf's backing array is
// reused by the next Submit the moment this one's lock is released.
func (p *Partition) dispatchActuators(ctx context.Context, buf *effects.Buffer) {
	if p.invokerHook == nil && p.ingressHook == nil {
		return
	}
	var invocations []domain.ServiceInvocation
	var responses []domain.ResponseMessage
	for _, e := range buf.Effects {
		switch e.Kind {
		case effects.InvokeService:
			if p.invokerHook != nil {
				invocations = append(invocations, e.ServiceInvocation)
			}
		case effects.SendIngressResponse:
			if p.ingressHook != nil {
				responses = append(responses, e.IngressResponse)
			}
		}
	}
	for _, inv := range invocations {
		p.invokerHook.Dispatch(ctx, p, inv)
	}
	for _, resp := range responses {
		p.ingressHook.Deliver(resp)
	}
}

// Checkpoint returns the partition's most recently flushed commit record,
// or nil if nothing has been flushed yet this process.
func (p *Partition) Checkpoint() *checkpoint.CommitRecord {
	return p.checks.Load(p.ID)
}
