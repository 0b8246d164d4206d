// Package effects defines the append-only effects buffer the command
// interpreter writes to while applying a single command. The buffer is
// never read back by the interpreter itself; it is handed to storage and
// the actuators (invoker, timer service, shuffler) once a command finishes
// applying, and cleared before the next command starts.
package effects

import (
	"time"

	"github.com/oriys/partitiond/internal/domain"
)

// Kind enumerates every effect the interpreter can emit. Every observable
// state change or
// outgoing message the interpreter decides on is recorded here rather than
// applied directly, so that application (storage commit, actuator dispatch)
// happens after a command has fully, successfully run.
type Kind int

const (
	InvokeService Kind = iota
	ResumeService
	SuspendService
	StoreChosenDeployment
	AbortInvocation
	DropJournalAndPopInbox
	AppendJournalEntry
	StoreCompletion
	ForwardCompletion
	SetState
	ClearState
	ClearAllState
	ApplyStateMutation
	EnqueueIntoInbox
	DeleteInboxEntry
	EnqueueIntoOutbox
	TruncateOutbox
	RegisterTimer
	DeleteTimer
	SendIngressResponse
	TraceBackgroundInvoke
	TraceInvocationResult
)

// InvocationResultTrace records the outcome reported for a finished
// invocation, for the tracing effect that closes out its span.
type InvocationResultTrace struct {
	Ok           bool
	ErrorCode    domain.InvocationErrorCode
	ErrorMessage string
}

// Effect is a tagged union over every effect kind. Only the fields relevant
// to Kind carry meaningful values; this mirrors domain.Command's shape
// deliberately, since effects are the interpreter's half of the same
// vocabulary the commands describe.
type Effect struct {
	Kind Kind

	Fid               domain.FullInvocationId
	InvocationId      domain.InvocationId
	ServiceId         domain.ServiceId
	ServiceInvocation domain.ServiceInvocation
	Metadata          domain.InvocationMetadata
	WaitingFor        map[domain.EntryIndex]struct{}
	DeploymentId      string
	JournalLength     domain.EntryIndex
	EntryIndex        domain.EntryIndex
	Entry             domain.RawEntry
	Completion        domain.Completion
	SpanContext       domain.SpanContext
	Key               string
	Value             []byte
	Mutation          domain.ExternalStateMutation
	InboxSeq          uint64
	InboxEntry        domain.InboxEntry
	OutboxSeq         uint64
	OutboxMessage     domain.OutboxMessage
	TruncateUpTo      uint64
	Timer             domain.TimerValue
	TimerKey          domain.TimerKey
	IngressResponse   domain.ResponseMessage
	Method            string
	CreationTime      time.Time
	InvocationResult  InvocationResultTrace
}

// Buffer is the per-command effects list (append-only; cleared between
// commands by the partition run loop, never by the interpreter).
type Buffer struct {
	Effects []Effect
}

func (b *Buffer) Clear() { b.Effects = b.Effects[:0] }

func (b *Buffer) Len() int { return len(b.Effects) }

func (b *Buffer) append(e Effect) { b.Effects = append(b.Effects, e) }

func (b *Buffer) InvokeService(inv domain.ServiceInvocation) {
	b.append(Effect{Kind: InvokeService, Fid: inv.Fid, ServiceInvocation: inv})
}

func (b *Buffer) ResumeService(fid domain.FullInvocationId, meta domain.InvocationMetadata) {
	b.append(Effect{Kind: ResumeService, Fid: fid, Metadata: meta})
}

func (b *Buffer) SuspendService(fid domain.FullInvocationId, meta domain.InvocationMetadata, waitingFor map[domain.EntryIndex]struct{}) {
	b.append(Effect{Kind: SuspendService, Fid: fid, Metadata: meta, WaitingFor: waitingFor})
}

func (b *Buffer) StoreChosenDeployment(fid domain.FullInvocationId, deploymentId string) {
	b.append(Effect{Kind: StoreChosenDeployment, Fid: fid, DeploymentId: deploymentId})
}

func (b *Buffer) AbortInvocation(fid domain.FullInvocationId) {
	b.append(Effect{Kind: AbortInvocation, Fid: fid})
}

func (b *Buffer) DropJournalAndPopInbox(sid domain.ServiceId, iid domain.InvocationId, journalLength domain.EntryIndex) {
	b.append(Effect{Kind: DropJournalAndPopInbox, ServiceId: sid, InvocationId: iid, JournalLength: journalLength})
}

func (b *Buffer) AppendJournalEntry(fid domain.FullInvocationId, entryIndex domain.EntryIndex, entry domain.RawEntry) {
	b.append(Effect{Kind: AppendJournalEntry, Fid: fid, EntryIndex: entryIndex, Entry: entry})
}

func (b *Buffer) StoreCompletion(iid domain.InvocationId, completion domain.Completion) {
	b.append(Effect{Kind: StoreCompletion, InvocationId: iid, Completion: completion})
}

func (b *Buffer) ForwardCompletion(fid domain.FullInvocationId, completion domain.Completion) {
	b.append(Effect{Kind: ForwardCompletion, Fid: fid, Completion: completion})
}

func (b *Buffer) SetState(sid domain.ServiceId, key string, value []byte) {
	b.append(Effect{Kind: SetState, ServiceId: sid, Key: key, Value: value})
}

func (b *Buffer) ClearState(sid domain.ServiceId, key string) {
	b.append(Effect{Kind: ClearState, ServiceId: sid, Key: key})
}

func (b *Buffer) ClearAllState(sid domain.ServiceId) {
	b.append(Effect{Kind: ClearAllState, ServiceId: sid})
}

func (b *Buffer) ApplyStateMutation(mutation domain.ExternalStateMutation) {
	b.append(Effect{Kind: ApplyStateMutation, ServiceId: mutation.ServiceId, Mutation: mutation})
}

func (b *Buffer) EnqueueIntoInbox(sid domain.ServiceId, seq uint64, entry domain.InboxEntry) {
	b.append(Effect{Kind: EnqueueIntoInbox, ServiceId: sid, InboxSeq: seq, InboxEntry: entry})
}

func (b *Buffer) DeleteInboxEntry(sid domain.ServiceId, seq uint64) {
	b.append(Effect{Kind: DeleteInboxEntry, ServiceId: sid, InboxSeq: seq})
}

func (b *Buffer) EnqueueIntoOutbox(seq uint64, message domain.OutboxMessage) {
	b.append(Effect{Kind: EnqueueIntoOutbox, OutboxSeq: seq, OutboxMessage: message})
}

func (b *Buffer) TruncateOutbox(upTo uint64) {
	b.append(Effect{Kind: TruncateOutbox, TruncateUpTo: upTo})
}

func (b *Buffer) RegisterTimer(timer domain.TimerValue) {
	b.append(Effect{Kind: RegisterTimer, Timer: timer, TimerKey: timer.Key})
}

func (b *Buffer) DeleteTimer(key domain.TimerKey) {
	b.append(Effect{Kind: DeleteTimer, TimerKey: key})
}

func (b *Buffer) SendIngressResponse(response domain.ResponseMessage) {
	b.append(Effect{Kind: SendIngressResponse, IngressResponse: response})
}

func (b *Buffer) TraceBackgroundInvoke(inv domain.ServiceInvocation) {
	b.append(Effect{Kind: TraceBackgroundInvoke, Fid: inv.Fid, ServiceInvocation: inv})
}

func (b *Buffer) TraceInvocationResult(fid domain.FullInvocationId, result InvocationResultTrace) {
	b.append(Effect{Kind: TraceInvocationResult, Fid: fid, InvocationResult: result})
}
