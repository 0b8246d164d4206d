package ingress

import (
	"encoding/json"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/partition"
)

func TestGatewayDeliverWakesPendingRequest(t *testing.T) {
	g := NewGateway(nil, time.Second)
	ch := make(chan domain.ResponseMessage, 1)
	g.pending["req-1"] = ch

	msg := domain.ResponseMessage{Sink: domain.ResponseSink{Kind: domain.SinkIngress, IngressId: "req-1"}, Result: domain.SuccessCompletion(json.RawMessage(`"ok"`))}
	g.Deliver(msg)

	select {
	case got := <-ch:
		if got.Sink.IngressId != "req-1" {
			t.Fatalf("expected delivery for req-1, got %q", got.Sink.IngressId)
		}
	default:
		t.Fatal("expected Deliver to push onto the pending channel")
	}
}

func TestGatewayDeliverDropsUnknownRequest(t *testing.T) {
	g := NewGateway(nil, time.Second)
	msg := domain.ResponseMessage{Sink: domain.ResponseSink{Kind: domain.SinkIngress, IngressId: "missing"}}
	g.Deliver(msg) // must not panic or block
}

func TestGatewayDeliverDoesNotBlockOnFullChannel(t *testing.T) {
	g := NewGateway(nil, time.Second)
	ch := make(chan domain.ResponseMessage, 1)
	ch <- domain.ResponseMessage{}
	g.pending["req-2"] = ch

	done := make(chan struct{})
	go func() {
		g.Deliver(domain.ResponseMessage{Sink: domain.ResponseSink{Kind: domain.SinkIngress, IngressId: "req-2"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full pending channel")
	}
}

func TestPartitionForRoutesByKeyRange(t *testing.T) {
	mid := uint64(math.MaxUint64 / 2)
	low := &partition.Partition{ID: "p-low", Range: domain.PartitionKeyRange{Start: 0, End: mid}}
	high := &partition.Partition{ID: "p-high", Range: domain.PartitionKeyRange{Start: mid + 1, End: math.MaxUint64}}
	g := NewGateway([]*partition.Partition{low, high}, time.Second)

	if p, ok := g.partitionFor(domain.PartitionKey(10)); !ok || p.ID != "p-low" {
		t.Fatalf("expected key 10 to route to p-low, got %+v, %v", p, ok)
	}
	if p, ok := g.partitionFor(domain.PartitionKey(math.MaxUint64)); !ok || p.ID != "p-high" {
		t.Fatalf("expected max key to route to p-high, got %+v, %v", p, ok)
	}
}

func TestWriteResultEncodesSuccessAndFailure(t *testing.T) {
	w := httptest.NewRecorder()
	writeResult(w, domain.SuccessCompletion(json.RawMessage(`"ok"`)))
	var ok invokeResponseWire
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil {
		t.Fatalf("decode success body: %v", err)
	}
	if string(ok.Value) != `"ok"` {
		t.Fatalf("expected value ok, got %s", ok.Value)
	}

	w = httptest.NewRecorder()
	writeResult(w, domain.FailureCompletion(uint16(domain.ErrCodeBadArgument), "nope"))
	var failed invokeResponseWire
	if err := json.Unmarshal(w.Body.Bytes(), &failed); err != nil {
		t.Fatalf("decode failure body: %v", err)
	}
	if failed.FailureMessage != "nope" {
		t.Fatalf("expected failure message nope, got %q", failed.FailureMessage)
	}
}
