package interp

import (
	"context"

	"github.com/oriys/partitiond/internal/builtin"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/state"
)

// handleInvoke applies the Invoke command: either schedule a delayed
// invocation as a timer, run a deterministic built-in inline, or go through
// the normal lock-or-enqueue path for a regular service invocation.
func (ip *Interpreter) handleInvoke(ctx context.Context, buf *effects.Buffer, reader state.Reader, invocation domain.ServiceInvocation) (Applied, error) {
	if invocation.IsDelayed() {
		buf.RegisterTimer(domain.NewInvokeTimer(domain.TimerKey{
			Timestamp:      *invocation.ExecutionTime,
			InvocationUuid: invocation.Fid.InvocationUuid,
		}, invocation))
		return Applied{RelatedInvocation: &invocation.Fid, Span: invocation.SpanContext.AsParent()}, nil
	}

	if builtin.IsBuiltIn(invocation.Fid.ServiceId.ServiceName) {
		return ip.invokeBuiltIn(ctx, buf, invocation)
	}

	if err := ip.createServiceInvocation(ctx, buf, reader, invocation); err != nil {
		return Applied{}, err
	}
	return Applied{RelatedInvocation: &invocation.Fid, Span: invocation.SpanContext.AsParent()}, nil
}

// createServiceInvocation dispatches a new invocation immediately if its
// target object is unlocked, or enqueues it into the object's inbox
// otherwise. This is the sole place an object's lock is acquired.
func (ip *Interpreter) createServiceInvocation(ctx context.Context, buf *effects.Buffer, reader state.Reader, invocation domain.ServiceInvocation) error {
	status, err := reader.GetVirtualObjectStatus(ctx, invocation.Fid.ServiceId)
	if err != nil {
		return err
	}

	switch status.Kind {
	case domain.Unlocked:
		buf.InvokeService(invocation)
		if invocation.ResponseSink == nil {
			buf.TraceBackgroundInvoke(invocation)
		}
	case domain.Locked:
		ip.enqueueIntoInbox(buf, invocation)
	default:
		return invariantViolation("unknown virtual object status kind %v", status.Kind)
	}
	return nil
}

func (ip *Interpreter) enqueueIntoInbox(buf *effects.Buffer, invocation domain.ServiceInvocation) {
	seq := ip.InboxSeqNumber
	ip.InboxSeqNumber++
	buf.EnqueueIntoInbox(invocation.Fid.ServiceId, seq, domain.InboxEntry{
		Kind:       domain.InboxInvocation,
		Invocation: invocation,
	})
}

// invokeBuiltIn runs a deterministic built-in service's method synchronously
// to compute the effects it produces, then commits them through the same
// path a BuiltInInvokerEffect command would: built-in execution is
// deterministic, so computing it inline costs nothing, but folding the
// result through handleBuiltInInvokerEffect keeps exactly one place that
// knows how to turn a built-in's outcome into effects.
func (ip *Interpreter) invokeBuiltIn(ctx context.Context, buf *effects.Buffer, invocation domain.ServiceInvocation) (Applied, error) {
	var batch domain.BuiltinInvokerEffects
	batch.Fid = invocation.Fid

	resolution, err := builtin.Invoke(invocation.MethodName, invocation.Argument)
	if err != nil {
		invErr := domain.InvocationError{Code: domain.ErrCodeBadArgument, Message: err.Error()}
		batch.Effects = append(batch.Effects, domain.BuiltinServiceEffect{Kind: domain.BuiltInEnd, EndError: &invErr})
		if invocation.ResponseSink != nil {
			batch.Effects = append(batch.Effects, domain.BuiltinServiceEffect{
				Kind: domain.BuiltInIngressResponse,
				IngressResponse: domain.ResponseMessage{
					Fid:    invocation.Fid,
					Sink:   *invocation.ResponseSink,
					Result: invErr.ToCompletionResult(),
				},
			})
		}
		return ip.handleBuiltInInvokerEffect(ctx, buf, nil, batch)
	}

	batch.Effects = append(batch.Effects, domain.BuiltinServiceEffect{
		Kind: domain.BuiltInOutboxMessage,
		Outbox: domain.NewOutboxAwakeableCompletion(domain.AwakeableCompletion{
			TargetInvocationId: resolution.Target,
			TargetEntryIndex:   resolution.Entry,
			Result:             resolution.Result,
		}),
	})
	batch.Effects = append(batch.Effects, domain.BuiltinServiceEffect{Kind: domain.BuiltInEnd})
	if invocation.ResponseSink != nil {
		batch.Effects = append(batch.Effects, domain.BuiltinServiceEffect{
			Kind: domain.BuiltInIngressResponse,
			IngressResponse: domain.ResponseMessage{
				Fid:    invocation.Fid,
				Sink:   *invocation.ResponseSink,
				Result: domain.EmptyCompletion(),
			},
		})
	}
	return ip.handleBuiltInInvokerEffect(ctx, buf, nil, batch)
}

func (ip *Interpreter) nextOutboxSeq() uint64 {
	seq := ip.OutboxSeqNumber
	ip.OutboxSeqNumber++
	return seq
}
