//go:build integration

package storage

import (
	"context"
	"os"
	"testing"

	"github.com/oriys/partitiond/internal/checkpoint"
	"github.com/oriys/partitiond/internal/domain"
)

// These tests talk to a real Postgres instance and only run when a
// PARTITIOND_TEST_DSN is set and -short isn't passed; neither is wired into
// the default CI profile, matching how the teacher gated its own
// external-service tests.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	dsn := os.Getenv("PARTITIOND_TEST_DSN")
	if dsn == "" {
		t.Skip("PARTITIOND_TEST_DSN not set")
	}
	e, err := New(context.Background(), dsn, "it-"+t.Name())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEngineCheckpointRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if rec, err := e.LoadCheckpoint(ctx, e.partitionID); err != nil || rec != nil {
		t.Fatalf("expected no checkpoint yet, got %+v, %v", rec, err)
	}

	want := checkpoint.CommitRecord{PartitionID: e.partitionID, LogOffset: 7, InboxSeq: 2, OutboxSeq: 3}
	if err := e.SaveCheckpoint(ctx, want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := e.LoadCheckpoint(ctx, e.partitionID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got == nil || got.LogOffset != want.LogOffset || got.InboxSeq != want.InboxSeq || got.OutboxSeq != want.OutboxSeq {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestEngineScopedIsolatesPartitions(t *testing.T) {
	base := newTestEngine(t)
	ctx := context.Background()
	a := base.Scoped(base.partitionID + "-a")
	b := base.Scoped(base.partitionID + "-b")

	if err := a.SaveCheckpoint(ctx, checkpoint.CommitRecord{PartitionID: a.partitionID, LogOffset: 1}); err != nil {
		t.Fatalf("SaveCheckpoint(a): %v", err)
	}

	if rec, err := b.LoadCheckpoint(ctx, b.partitionID); err != nil || rec != nil {
		t.Fatalf("expected partition b to see no checkpoint written under a, got %+v, %v", rec, err)
	}
}

func TestEngineGetVirtualObjectStatusDefaultsToUnlocked(t *testing.T) {
	e := newTestEngine(t)
	status, err := e.GetVirtualObjectStatus(context.Background(), domain.ServiceId{ServiceName: "com.example.Counter", Key: "never-seen"})
	if err != nil {
		t.Fatalf("GetVirtualObjectStatus: %v", err)
	}
	if status != domain.UnlockedStatus() {
		t.Fatalf("expected an unlocked status for an object never touched, got %+v", status)
	}
}
