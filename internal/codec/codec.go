// Package codec decodes journal entry payloads into typed views the
// interpreter's handlers act on, and encodes a state-key listing as a
// completion result. The rest of the repository is JSON-first (the state
// store, the inbox, the outbox), so the default codec follows suit; a
// different wire format only requires a new EntryCodec implementation,
// never a change to the interpreter.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/partitiond/internal/domain"
)

// TypedEntry is the decoded view of a journal entry payload, one field
// populated depending on the entry's EntryType.
type TypedEntry struct {
	Type domain.EntryType

	Key   string // GetState / SetState / ClearState
	Value []byte // SetState

	WakeUpTime int64 // Sleep, unix millis

	Request      InvokeRequest // Invoke / BackgroundInvoke
	InvokeTime   int64         // BackgroundInvoke, unix millis; 0 means immediate

	CompleteAwakeableId string              // CompleteAwakeable
	CompleteResult      domain.CompletionResult // CompleteAwakeable

	OutputResult domain.CompletionResult // Output
}

type InvokeRequest struct {
	ServiceName string          `json:"service_name"`
	Key         string          `json:"key"`
	Method      string          `json:"method"`
	Argument    json.RawMessage `json:"argument"`
}

// EntryCodec is the capability the interpreter needs from a wire format: it
// must decode a raw entry payload into a TypedEntry, and it must encode the
// key list a GetStateKeys entry completes with as a completion result.
type EntryCodec interface {
	Decode(entry domain.RawEntry) (TypedEntry, error)
	EncodeStateKeys(keys []string) domain.CompletionResult
}

// JSON is the default EntryCodec, encoding every entry payload as JSON.
type JSON struct{}

func (JSON) Decode(entry domain.RawEntry) (TypedEntry, error) {
	te := TypedEntry{Type: entry.Header.Type}
	if len(entry.Payload) == 0 {
		return te, nil
	}

	switch entry.Header.Type {
	case domain.EntryGetState, domain.EntryClearState:
		var body struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode %s entry: %w", entry.Header.Type, err)
		}
		te.Key = body.Key
	case domain.EntrySetState:
		var body struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode SetState entry: %w", err)
		}
		te.Key = body.Key
		te.Value = []byte(body.Value)
	case domain.EntrySleep:
		var body struct {
			WakeUpTime int64 `json:"wake_up_time"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode Sleep entry: %w", err)
		}
		te.WakeUpTime = body.WakeUpTime
	case domain.EntryInvoke, domain.EntryBackgroundInvoke:
		var body struct {
			Request    InvokeRequest `json:"request"`
			InvokeTime int64         `json:"invoke_time,omitempty"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode %s entry: %w", entry.Header.Type, err)
		}
		te.Request = body.Request
		te.InvokeTime = body.InvokeTime
	case domain.EntryAwakeable:
		// no payload fields needed at creation time; the awakeable id is
		// derived by the caller from the owning invocation id and entry index.
	case domain.EntryCompleteAwakeable:
		var body struct {
			AwakeableId string          `json:"awakeable_id"`
			Value       json.RawMessage `json:"value,omitempty"`
			FailureCode uint16          `json:"failure_code,omitempty"`
			FailureMsg  string          `json:"failure_message,omitempty"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode CompleteAwakeable entry: %w", err)
		}
		te.CompleteAwakeableId = body.AwakeableId
		if body.FailureMsg != "" {
			te.CompleteResult = domain.FailureCompletion(body.FailureCode, body.FailureMsg)
		} else {
			te.CompleteResult = domain.SuccessCompletion(body.Value)
		}
	case domain.EntryOutput:
		var body struct {
			Value       json.RawMessage `json:"value,omitempty"`
			FailureCode uint16          `json:"failure_code,omitempty"`
			FailureMsg  string          `json:"failure_message,omitempty"`
		}
		if err := json.Unmarshal(entry.Payload, &body); err != nil {
			return te, fmt.Errorf("decode Output entry: %w", err)
		}
		if body.FailureMsg != "" {
			te.OutputResult = domain.FailureCompletion(body.FailureCode, body.FailureMsg)
		} else {
			te.OutputResult = domain.SuccessCompletion(body.Value)
		}
	}

	return te, nil
}

func (JSON) EncodeStateKeys(keys []string) domain.CompletionResult {
	value, _ := json.Marshal(keys)
	return domain.SuccessCompletion(value)
}
