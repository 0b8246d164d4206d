package timersvc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oriys/partitiond/internal/domain"
)

type fakeTimerStore struct {
	mu  sync.Mutex
	due []domain.TimerValue
	err error
}

func (f *fakeTimerStore) DueTimers(_ context.Context, _ int64) ([]domain.TimerValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.due, nil
}

func recordingSubmit(fired *[]domain.TimerValue) func(context.Context, domain.Command) error {
	var mu sync.Mutex
	return func(_ context.Context, cmd domain.Command) error {
		mu.Lock()
		defer mu.Unlock()
		*fired = append(*fired, *cmd.Timer)
		return nil
	}
}

func TestTickSubmitsEveryDueTimer(t *testing.T) {
	tv1 := domain.NewSleepTimer(domain.TimerKey{InvocationUuid: "a"}, domain.ServiceId{ServiceName: "svc", Key: "a"})
	tv2 := domain.NewSleepTimer(domain.TimerKey{InvocationUuid: "b"}, domain.ServiceId{ServiceName: "svc", Key: "b"})
	store := &fakeTimerStore{due: []domain.TimerValue{tv1, tv2}}

	var fired []domain.TimerValue
	svc := New([]Target{{Submit: recordingSubmit(&fired), Store: store}}, 0)
	svc.tick(context.Background())

	if len(fired) != 2 {
		t.Fatalf("expected 2 fired timers, got %d", len(fired))
	}
}

func TestTickSkipsTargetOnStoreError(t *testing.T) {
	store := &fakeTimerStore{err: errors.New("boom")}
	var fired []domain.TimerValue
	svc := New([]Target{{Submit: recordingSubmit(&fired), Store: store}}, 0)
	svc.tick(context.Background()) // must not panic

	if len(fired) != 0 {
		t.Fatalf("expected no timers fired after a store error, got %d", len(fired))
	}
}

func TestTickNoOpWhenNoTimersDue(t *testing.T) {
	store := &fakeTimerStore{}
	var fired []domain.TimerValue
	svc := New([]Target{{Submit: recordingSubmit(&fired), Store: store}}, 0)
	svc.tick(context.Background())

	if len(fired) != 0 {
		t.Fatalf("expected no timers fired, got %d", len(fired))
	}
}
