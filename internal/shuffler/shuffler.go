// Package shuffler drains a partition's outbox and routes each message to
// whichever partition actually owns it -- another service invocation, a
// termination request, a response destined for a caller, or an awakeable
// completion -- then truncates the outbox up to the highest sequence number
// it has successfully delivered. Everything it routes targets a partition in
// this same process; cross-process partition placement is out of scope (see
// DESIGN.md).
package shuffler

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/logging"
	"github.com/oriys/partitiond/internal/storage"
)

// Router resolves a partition key to the Submit entrypoint owning it.
type Router interface {
	SubmitFor(key domain.PartitionKey) (func(ctx context.Context, cmd domain.Command) error, bool)
}

// OutboxStore is the read-side view of a partition's storage this service
// needs; *storage.Engine satisfies it directly. Narrowed from the concrete
// engine type so tests can drive drain() against a fake.
type OutboxStore interface {
	PendingOutbox(ctx context.Context) ([]storage.OutboxEntry, error)
}

// Source is one partition's outbox plus the TruncateOutbox submit call used
// to acknowledge delivery.
type Source struct {
	ID     string
	Store  OutboxStore
	Submit func(ctx context.Context, cmd domain.Command) error
}

type Service struct {
	sources  []Source
	router   Router
	interval time.Duration
}

func New(sources []Source, router Router, interval time.Duration) *Service {
	return &Service{sources: sources, router: router, interval: interval}
}

func (s *Service) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		for _, src := range s.sources {
			s.drain(ctx, src)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (s *Service) drain(ctx context.Context, src Source) {
	entries, err := src.Store.PendingOutbox(ctx)
	if err != nil {
		logging.Op().Warn("shuffler poll failed", "partition", src.ID, "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	var delivered uint64
	anyDelivered := false
	for _, e := range entries {
		if err := s.route(ctx, e.Message); err != nil {
			logging.Op().Warn("shuffler route failed", "partition", src.ID, "seq", e.Seq, "error", err)
			break // preserve order: stop at the first message that can't be routed yet
		}
		delivered = e.Seq
		anyDelivered = true
	}
	if !anyDelivered {
		return
	}
	if err := src.Submit(ctx, domain.NewTruncateOutboxCommand(delivered)); err != nil {
		logging.Op().Warn("shuffler truncate failed", "partition", src.ID, "error", err)
	}
}

func (s *Service) route(ctx context.Context, msg domain.OutboxMessage) error {
	switch msg.Kind {
	case domain.OutboxServiceInvocation:
		inv := *msg.ServiceInvocation
		return s.submitTo(ctx, inv.Fid.PartitionKey(), domain.NewInvokeCommand(inv))
	case domain.OutboxInvocationTermination:
		t := *msg.Termination
		return s.submitTo(ctx, t.MaybeFid.InvocationId().PartitionKey, domain.NewTerminateInvocationCommand(t))
	case domain.OutboxResponse:
		r := *msg.Response
		cmd := domain.NewInvocationResponseCommand(domain.InvocationResponseCommand{
			Id:         domain.FromFull(r.Sink.Caller),
			EntryIndex: r.Sink.EntryIndex,
			Result:     r.Result,
		})
		return s.submitTo(ctx, r.Sink.Caller.PartitionKey(), cmd)
	case domain.OutboxAwakeableCompletion:
		c := *msg.AwakeableCompletion
		cmd := domain.NewInvocationResponseCommand(domain.InvocationResponseCommand{
			Id:         domain.FromPartial(c.TargetInvocationId),
			EntryIndex: c.TargetEntryIndex,
			Result:     c.Result,
		})
		return s.submitTo(ctx, c.TargetInvocationId.PartitionKey, cmd)
	default:
		return fmt.Errorf("unknown outbox message kind %v", msg.Kind)
	}
}

func (s *Service) submitTo(ctx context.Context, key domain.PartitionKey, cmd domain.Command) error {
	submit, ok := s.router.SubmitFor(key)
	if !ok {
		return fmt.Errorf("no partition owns key %d", key)
	}
	return submit(ctx, cmd)
}
