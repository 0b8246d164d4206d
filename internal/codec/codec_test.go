package codec

import (
	"encoding/json"
	"testing"

	"github.com/oriys/partitiond/internal/domain"
)

func TestJSONDecodeSetStateEntry(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"key": "balance", "value": 42})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	entry := domain.RawEntry{Header: domain.EntryHeader{Type: domain.EntrySetState}, Payload: payload}
	typed, err := JSON{}.Decode(entry)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if typed.Key != "balance" {
		t.Fatalf("expected key %q, got %q", "balance", typed.Key)
	}
	if string(typed.Value) != "42" {
		t.Fatalf("expected raw value %q, got %q", "42", typed.Value)
	}
}

func TestJSONDecodeCompleteAwakeableFailure(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"awakeable_id":     "aw-1",
		"failure_code":     500,
		"failure_message": "boom",
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	entry := domain.RawEntry{Header: domain.EntryHeader{Type: domain.EntryCompleteAwakeable}, Payload: payload}
	typed, err := JSON{}.Decode(entry)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if typed.CompleteAwakeableId != "aw-1" {
		t.Fatalf("expected awakeable id %q, got %q", "aw-1", typed.CompleteAwakeableId)
	}
	if !typed.CompleteResult.IsFailure() {
		t.Fatalf("expected a failure completion result")
	}
}

func TestJSONEncodeStateKeysIsDeterministic(t *testing.T) {
	first := JSON{}.EncodeStateKeys([]string{"a", "b"})
	second := JSON{}.EncodeStateKeys([]string{"a", "b"})

	if string(first.Value) != string(second.Value) {
		t.Fatalf("expected stable encoding, got %q then %q", first.Value, second.Value)
	}
}
