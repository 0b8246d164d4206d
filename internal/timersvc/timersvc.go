// Package timersvc is the durable timer actuator: it polls each partition's
// due timers and fires them back in as Timer commands. The interpreter
// (internal/interp's handleTimer) deletes the timer effect-side the moment
// it fires, so this service never needs to track what it has already
// delivered -- a timer it re-polls because of a slow commit is simply gone
// from the next poll.
package timersvc

import (
	"context"
	"time"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/logging"
)

// TimerStore is the read-side view of a partition's storage this service
// needs; *storage.Engine satisfies it directly. Narrowed from the concrete
// engine type so tests can drive tick() against a fake.
type TimerStore interface {
	DueTimers(ctx context.Context, asOf int64) ([]domain.TimerValue, error)
}

// Target is one partition's submit entrypoint plus the scoped storage view
// this service reads due timers from.
type Target struct {
	Submit func(ctx context.Context, cmd domain.Command) error
	Store  TimerStore
}

// Service polls every attached partition's due timers on a fixed interval,
// woken early by SignalTimer when a partition just registered a fresh one.
type Service struct {
	targets  []Target
	interval time.Duration
	log      *logging.Logger
}

func New(targets []Target, interval time.Duration) *Service {
	return &Service{targets: targets, interval: interval, log: logging.Default()}
}

// Run blocks, firing due timers until ctx is canceled.
func (s *Service) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := time.Now().Unix()
	for _, t := range s.targets {
		due, err := t.Store.DueTimers(ctx, now)
		if err != nil {
			logging.Op().Warn("timer poll failed", "error", err)
			continue
		}
		for _, tv := range due {
			if err := t.Submit(ctx, domain.NewTimerCommand(tv)); err != nil {
				logging.Op().Warn("timer fire failed", "error", err)
			}
		}
	}
}
