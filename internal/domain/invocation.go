package domain

import "time"

// ResponseSinkKind distinguishes where an invocation's eventual result
// should be delivered: back out through the ingress that accepted the
// original request, or to a journal entry of another invocation on this (or
// another) partition that is awaiting the result of an Invoke entry.
type ResponseSinkKind int

const (
	SinkIngress ResponseSinkKind = iota
	SinkPartitionProcessor
)

type ResponseSink struct {
	Kind ResponseSinkKind

	IngressId string // SinkIngress

	Caller     FullInvocationId // SinkPartitionProcessor
	EntryIndex EntryIndex       // SinkPartitionProcessor
}

func IngressSink(ingressId string) ResponseSink {
	return ResponseSink{Kind: SinkIngress, IngressId: ingressId}
}

func PartitionProcessorSink(caller FullInvocationId, entryIndex EntryIndex) ResponseSink {
	return ResponseSink{Kind: SinkPartitionProcessor, Caller: caller, EntryIndex: entryIndex}
}

// Source identifies who created a ServiceInvocation: an external ingress, or
// another invocation invoking it as a callee.
type Source struct {
	IsIngress bool
	Service   FullInvocationId // valid when !IsIngress
}

func IngressSource() Source { return Source{IsIngress: true} }

func ServiceSource(caller FullInvocationId) Source { return Source{IsIngress: false, Service: caller} }

// ServiceInvocation is a request to invoke one method of one service,
// complete enough to either dispatch immediately or park in an inbox/timer.
type ServiceInvocation struct {
	Fid          FullInvocationId
	MethodName   string
	Argument     []byte
	Source       Source
	ResponseSink *ResponseSink
	SpanContext  SpanContext

	// ExecutionTime, when set, is the delayed-invoke wake time; the command
	// interpreter schedules a TimerInvoke rather than dispatching directly.
	ExecutionTime *time.Time
}

func (s ServiceInvocation) IsDelayed() bool { return s.ExecutionTime != nil }

// ExternalStateMutation is an out-of-band state write issued against a
// service instance, independent of any invocation's own journal (the
// PatchState command). ClearAll wins over Mutations when set.
type ExternalStateMutation struct {
	ServiceId ServiceId
	Mutations map[string][]byte
	ClearAll  bool
}

// InboxEntryKind distinguishes the two things that can sit in a virtual
// object's inbox waiting for the lock: a queued invocation, or a queued
// external state mutation.
type InboxEntryKind int

const (
	InboxInvocation InboxEntryKind = iota
	InboxStateMutation
)

type InboxEntry struct {
	Kind       InboxEntryKind
	Invocation ServiceInvocation
	Mutation   ExternalStateMutation
}

// SequenceNumberInvocation pairs an inboxed invocation with the monotonic
// sequence number it was enqueued under, the unit the inbox is keyed and
// iterated by.
type SequenceNumberInvocation struct {
	InboxSequenceNumber uint64
	Invocation          ServiceInvocation
}
