package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleBuiltInInvokerEffect commits the effects a deterministic built-in
// service invocation produced. Built-ins never hold a virtual object lock
// and never append to a journal -- they are synchronous pure functions over
// their argument -- so their effect vocabulary is a narrow subset of what a
// normal invocation can produce.
func (ip *Interpreter) handleBuiltInInvokerEffect(_ context.Context, buf *effects.Buffer, _ state.Reader, batch domain.BuiltinInvokerEffects) (Applied, error) {
	for _, e := range batch.Effects {
		switch e.Kind {
		case domain.BuiltInSetState:
			buf.SetState(batch.Fid.ServiceId, e.Key, e.Value)
		case domain.BuiltInClearState:
			buf.ClearState(batch.Fid.ServiceId, e.Key)
		case domain.BuiltInOutboxMessage:
			buf.EnqueueIntoOutbox(ip.nextOutboxSeq(), e.Outbox)
		case domain.BuiltInEnd:
			trace := effects.InvocationResultTrace{Ok: e.EndError == nil}
			if e.EndError != nil {
				trace.ErrorCode = e.EndError.Code
				trace.ErrorMessage = e.EndError.Message
			}
			buf.TraceInvocationResult(batch.Fid, trace)
		case domain.BuiltInIngressResponse:
			buf.SendIngressResponse(e.IngressResponse)
		default:
			return Applied{}, invariantViolation("unknown built-in invoker effect kind %v", e.Kind)
		}
	}
	return Applied{RelatedInvocation: &batch.Fid}, nil
}
