package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/interp"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	cmds []domain.Command
}

func (f *fakeSubmitter) Submit(_ context.Context, cmd domain.Command) (interp.Applied, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return interp.Applied{}, nil
}

func (f *fakeSubmitter) kinds() []domain.InvokerEffectKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.InvokerEffectKind, 0, len(f.cmds))
	for _, cmd := range f.cmds {
		out = append(out, cmd.InvokerEffect.Kind)
	}
	return out
}

func TestDeploymentsRegisterAndLookup(t *testing.T) {
	d := NewDeployments(map[string]string{"svc.A": "http://a"})
	if ep, ok := d.Lookup("svc.A"); !ok || ep != "http://a" {
		t.Fatalf("expected seeded lookup to succeed, got %q, %v", ep, ok)
	}
	if _, ok := d.Lookup("svc.B"); ok {
		t.Fatal("expected unregistered service to miss")
	}
	d.Register("svc.B", "http://b")
	if ep, ok := d.Lookup("svc.B"); !ok || ep != "http://b" {
		t.Fatalf("expected registered lookup to succeed, got %q, %v", ep, ok)
	}
}

func TestActuatorRunSuccessSubmitsEffectSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Service != "com.example.Greeter" || req.Method != "greet" {
			t.Fatalf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(invokeResponse{Value: json.RawMessage(`"hello"`)})
	}))
	defer srv.Close()

	deployments := NewDeployments(map[string]string{"com.example.Greeter": srv.URL})
	a := NewActuator(deployments, 5*time.Second)
	sub := &fakeSubmitter{}

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "alice", "uuid-1"),
		MethodName: "greet",
		Argument:   json.RawMessage(`"world"`),
	}
	a.run(context.Background(), sub, inv)

	kinds := sub.kinds()
	want := []domain.InvokerEffectKind{domain.EffectSelectedDeployment, domain.EffectJournalEntry, domain.EffectEnd}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d effects, got %d (%v)", len(want), len(kinds), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("effect %d: expected %v, got %v", i, k, kinds[i])
		}
	}
}

func TestActuatorRunUnknownDeploymentFails(t *testing.T) {
	deployments := NewDeployments(nil)
	a := NewActuator(deployments, time.Second)
	sub := &fakeSubmitter{}

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Missing", "bob", "uuid-2"),
		MethodName: "greet",
	}
	a.run(context.Background(), sub, inv)

	kinds := sub.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EffectFailed {
		t.Fatalf("expected a single EffectFailed, got %v", kinds)
	}
}

func TestActuatorRunDeploymentFailureResponseFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(invokeResponse{FailureCode: uint16(domain.ErrCodeBadArgument), FailureMessage: "bad input"})
	}))
	defer srv.Close()

	deployments := NewDeployments(map[string]string{"com.example.Greeter": srv.URL})
	a := NewActuator(deployments, time.Second)
	sub := &fakeSubmitter{}

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "carol", "uuid-3"),
		MethodName: "greet",
	}
	a.run(context.Background(), sub, inv)

	kinds := sub.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EffectFailed {
		t.Fatalf("expected a single EffectFailed, got %v", kinds)
	}
}

func TestActuatorRunHTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	deployments := NewDeployments(map[string]string{"com.example.Greeter": srv.URL})
	a := NewActuator(deployments, time.Second)
	sub := &fakeSubmitter{}

	inv := domain.ServiceInvocation{
		Fid:        domain.NewFullInvocationId("com.example.Greeter", "dave", "uuid-4"),
		MethodName: "greet",
	}
	a.run(context.Background(), sub, inv)

	kinds := sub.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EffectFailed {
		t.Fatalf("expected a single EffectFailed, got %v", kinds)
	}
}
