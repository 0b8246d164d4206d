// Package invoker is the actuator that turns a committed InvokeService
// effect into a call against deployed service code and folds the result
// back into the partition as an InvokerEffect command. The teacher's
// equivalent (internal/executor) reached deployed code over a generated
// gRPC client (RemoteInvoker, talking to a novapb.NovaServiceClient); that
// generated package isn't part of this repo's reference material and
// regenerating it would mean hand-authoring .pb.go by hand, so deployments
// are called over plain HTTP/JSON instead -- the same fallback transport
// the teacher's own gRPC server exposed alongside its RPC surface
// (ProxyHTTP).
//
// This actuator drives simple request/response deployments end to end in
// one round trip: it does not yet support a deployed handler that itself
// issues further journal entries (GetState, Sleep, nested Invoke) mid-call
// and suspends. Wiring that requires a duplex protocol between partitiond
// and the deployment SDK, which is future work.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/interp"
	"github.com/oriys/partitiond/internal/logging"
	"github.com/oriys/partitiond/internal/observability"
	"github.com/oriys/partitiond/internal/partition"
)

// submitter is the partition capability run/fail/submit actually need;
// *partition.Partition satisfies it directly. Splitting it out from the
// *partition.Partition type Dispatch receives (to satisfy
// partition.InvokerHook) lets tests drive run()/submit() against a fake
// without a live partition.
type submitter interface {
	Submit(ctx context.Context, cmd domain.Command) (interp.Applied, error)
}

// Deployments resolves a service name to the HTTP endpoint hosting its
// deployed code, analogous to the teacher's deployment registry but keyed
// by service name rather than function name.
type Deployments struct {
	mu        sync.RWMutex
	endpoints map[string]string
}

// NewDeployments builds a registry seeded from static config; Register lets
// a control surface add more at runtime.
func NewDeployments(seed map[string]string) *Deployments {
	d := &Deployments{endpoints: make(map[string]string, len(seed))}
	for k, v := range seed {
		d.endpoints[k] = v
	}
	return d
}

func (d *Deployments) Register(serviceName, endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints[serviceName] = endpoint
}

func (d *Deployments) Lookup(serviceName string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ep, ok := d.endpoints[serviceName]
	return ep, ok
}

// Actuator implements partition.InvokerHook.
type Actuator struct {
	client      *http.Client
	deployments *Deployments
	log         *logging.Logger
}

// NewActuator builds an invoker actuator calling deployments over HTTP with
// the given timeout per call.
func NewActuator(deployments *Deployments, timeout time.Duration) *Actuator {
	return &Actuator{
		client:      &http.Client{Timeout: timeout},
		deployments: deployments,
		log:         logging.Default(),
	}
}

type invokeRequest struct {
	Service      string          `json:"service"`
	Key          string          `json:"key"`
	Method       string          `json:"method"`
	InvocationId string          `json:"invocation_id"`
	Argument     json.RawMessage `json:"argument"`
}

type invokeResponse struct {
	Value          json.RawMessage `json:"value,omitempty"`
	FailureCode    uint16          `json:"failure_code,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
}

// Dispatch fires off a goroutine that runs the invocation against its
// deployment and reports the outcome back through p.Submit. The interpreter
// never blocks on this: the InvokeService effect it produced has already
// committed by the time Dispatch is called.
func (a *Actuator) Dispatch(ctx context.Context, p *partition.Partition, inv domain.ServiceInvocation) {
	tc := observability.ExtractTraceContext(ctx)
	runCtx := observability.InjectTraceContext(context.Background(), tc)
	go a.run(runCtx, submitter(p), inv)
}

func (a *Actuator) run(ctx context.Context, p submitter, inv domain.ServiceInvocation) {
	fid := inv.Fid
	endpoint, ok := a.deployments.Lookup(fid.ServiceId.ServiceName)
	if !ok {
		a.fail(ctx, p, fid, domain.InvocationError{
			Code:    domain.ErrCodeNotFound,
			Message: fmt.Sprintf("no deployment registered for service %q", fid.ServiceId.ServiceName),
		})
		return
	}

	body, err := json.Marshal(invokeRequest{
		Service:      fid.ServiceId.ServiceName,
		Key:          fid.ServiceId.Key,
		Method:       inv.MethodName,
		InvocationId: fid.InvocationUuid,
		Argument:     inv.Argument,
	})
	if err != nil {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.ErrCodeInternal, Message: err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.ErrCodeInternal, Message: err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	tc := observability.ExtractTraceContext(ctx)
	if tc.TraceParent != "" {
		req.Header.Set("traceparent", tc.TraceParent)
		if tc.TraceState != "" {
			req.Header.Set("tracestate", tc.TraceState)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.ErrCodeInternal, Message: err.Error()})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.ErrCodeInternal, Message: err.Error()})
		return
	}
	if resp.StatusCode >= 400 {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.InvocationErrorCode(resp.StatusCode), Message: string(data)})
		return
	}

	var out invokeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.ErrCodeInternal, Message: err.Error()})
		return
	}
	if out.FailureMessage != "" {
		a.fail(ctx, p, fid, domain.InvocationError{Code: domain.InvocationErrorCode(out.FailureCode), Message: out.FailureMessage})
		return
	}

	a.submit(ctx, p, domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: fid, Kind: domain.EffectSelectedDeployment, DeploymentId: endpoint,
	}))

	outputPayload, _ := json.Marshal(struct {
		Value json.RawMessage `json:"value,omitempty"`
	}{Value: out.Value})
	a.submit(ctx, p, domain.NewInvokerEffectCommand(domain.InvokerEffect{
		Fid: fid, Kind: domain.EffectJournalEntry, EntryIndex: 0,
		Entry: domain.RawEntry{Header: domain.EntryHeader{Type: domain.EntryOutput}, Payload: outputPayload},
	}))
	a.submit(ctx, p, domain.NewInvokerEffectCommand(domain.InvokerEffect{Fid: fid, Kind: domain.EffectEnd}))
}

func (a *Actuator) fail(ctx context.Context, p submitter, fid domain.FullInvocationId, invErr domain.InvocationError) {
	a.submit(ctx, p, domain.NewInvokerEffectCommand(domain.InvokerEffect{Fid: fid, Kind: domain.EffectFailed, Error: invErr}))
}

func (a *Actuator) submit(ctx context.Context, p submitter, cmd domain.Command) {
	if _, err := p.Submit(ctx, cmd); err != nil {
		a.log.Log(&logging.CommandLog{
			Timestamp:   time.Now(),
			CommandKind: cmd.Kind.String(),
			Success:     false,
			Error:       err.Error(),
		})
	}
}
