// Package ingress is the HTTP front door that turns an external request
// into an Invoke command carrying an IngressSink, and blocks the HTTP
// response on the matching SendIngressResponse effect. The teacher's gRPC
// server exposed the same shape of call (server.go's Invoke/InvokeAsync
// RPCs) behind a generated novapb service; since that generated package
// isn't part of this repo's reference material, the gateway here speaks
// plain HTTP/JSON -- the same transport the teacher's own ProxyHTTP RPC
// fell back to.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/observability"
	"github.com/oriys/partitiond/internal/partition"
)

// Gateway implements partition.IngressHook and serves the /invoke endpoint
// every attached partition's responses are routed back through.
type Gateway struct {
	mu         sync.Mutex
	pending    map[string]chan domain.ResponseMessage
	partitions []*partition.Partition
	timeout    time.Duration
}

// NewGateway builds a gateway routing over the given partition set by key
// range. Each partition must have this Gateway wired in via SetIngressHook
// for responses to ever reach a waiting request.
func NewGateway(partitions []*partition.Partition, timeout time.Duration) *Gateway {
	return &Gateway{
		pending:    make(map[string]chan domain.ResponseMessage),
		partitions: partitions,
		timeout:    timeout,
	}
}

// Deliver implements partition.IngressHook: it hands the response to the
// waiting HTTP request, if one is still waiting.
func (g *Gateway) Deliver(msg domain.ResponseMessage) {
	g.mu.Lock()
	ch, ok := g.pending[msg.Sink.IngressId]
	g.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (g *Gateway) partitionFor(key domain.PartitionKey) (*partition.Partition, bool) {
	for _, p := range g.partitions {
		if p.Range.Contains(key) {
			return p, true
		}
	}
	return nil, false
}

// Handler returns the traced HTTP handler serving /invoke.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", observability.TracingHandler("ingress.invoke", g.handleInvoke))
	return observability.HTTPMiddleware(mux)
}

type invokeRequestWire struct {
	Service  string          `json:"service"`
	Key      string          `json:"key"`
	Method   string          `json:"method"`
	Argument json.RawMessage `json:"argument"`
}

type invokeResponseWire struct {
	Value          json.RawMessage `json:"value,omitempty"`
	FailureCode    uint16          `json:"failure_code,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
}

func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req invokeRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decode request: "+err.Error(), http.StatusBadRequest)
		return
	}
	sid := domain.ServiceId{ServiceName: req.Service, Key: req.Key}
	p, ok := g.partitionFor(sid.PartitionKeyOf())
	if !ok {
		http.Error(w, "no partition owns this key", http.StatusServiceUnavailable)
		return
	}

	requestID := uuid.NewString()
	ch := make(chan domain.ResponseMessage, 1)
	g.mu.Lock()
	g.pending[requestID] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, requestID)
		g.mu.Unlock()
	}()

	sink := domain.IngressSink(requestID)
	fid := domain.NewFullInvocationId(req.Service, req.Key, uuid.NewString())
	inv := domain.ServiceInvocation{
		Fid:          fid,
		MethodName:   req.Method,
		Argument:     req.Argument,
		Source:       domain.IngressSource(),
		ResponseSink: &sink,
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	if _, err := p.Submit(ctx, domain.NewInvokeCommand(inv)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	select {
	case msg := <-ch:
		writeResult(w, msg.Result)
	case <-ctx.Done():
		http.Error(w, "invocation timed out", http.StatusGatewayTimeout)
	}
}

func writeResult(w http.ResponseWriter, result domain.CompletionResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Kind == domain.CompletionFailure {
		_ = json.NewEncoder(w).Encode(invokeResponseWire{
			FailureCode:    result.FailureCode,
			FailureMessage: result.FailureMessage,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(invokeResponseWire{Value: result.Value})
}
