package domain

import "time"

// VirtualObjectStatusKind is Unlocked or Locked; a virtual object holds at
// most one invocation's exclusive lock at a time.
type VirtualObjectStatusKind int

const (
	Unlocked VirtualObjectStatusKind = iota
	Locked
)

type VirtualObjectStatus struct {
	Kind       VirtualObjectStatusKind
	LockHolder FullInvocationId // valid iff Kind == Locked
}

func UnlockedStatus() VirtualObjectStatus { return VirtualObjectStatus{Kind: Unlocked} }

func LockedStatus(holder FullInvocationId) VirtualObjectStatus {
	return VirtualObjectStatus{Kind: Locked, LockHolder: holder}
}

// JournalMetadata tracks everything about an invocation's journal the
// interpreter needs without reading every entry: its current length and the
// span it was created under.
type JournalMetadata struct {
	SpanContext SpanContext
	Length      EntryIndex
}

// InvocationMetadata describes an invocation currently in the Invoked or
// Suspended state.
type InvocationMetadata struct {
	ServiceId    ServiceId
	Method       string
	ResponseSink *ResponseSink
	CreationTime time.Time
	Journal      JournalMetadata
}

// InvocationStatusKind is the four-state invocation lifecycle: an
// invocation is Free (never existed, or fully finished and retired), waiting
// in an object's Inbox for the lock, actively Invoked, or Suspended pending
// completions.
type InvocationStatusKind int

const (
	StatusFree InvocationStatusKind = iota
	StatusInboxed
	StatusInvoked
	StatusSuspended
)

// InvocationStatus is a tagged union over the four lifecycle states. Only
// the fields relevant to Kind are meaningful; treat the others as unset.
type InvocationStatus struct {
	Kind InvocationStatusKind

	// StatusInboxed
	InboxSequenceNumber uint64
	InboxedInvocation   *ServiceInvocation

	// StatusInvoked / StatusSuspended
	Metadata InvocationMetadata

	// StatusSuspended: the set of journal entry indices this invocation is
	// blocked on. Must never be empty while Kind == StatusSuspended -- a
	// suspension with nothing to wait for can never resume and is a bug in
	// whatever produced it.
	WaitingFor map[EntryIndex]struct{}
}

func FreeStatus() InvocationStatus { return InvocationStatus{Kind: StatusFree} }

func InboxedStatus(seq uint64, inv ServiceInvocation) InvocationStatus {
	return InvocationStatus{Kind: StatusInboxed, InboxSequenceNumber: seq, InboxedInvocation: &inv}
}

func InvokedStatus(meta InvocationMetadata) InvocationStatus {
	return InvocationStatus{Kind: StatusInvoked, Metadata: meta}
}

func SuspendedStatus(meta InvocationMetadata, waitingFor map[EntryIndex]struct{}) InvocationStatus {
	return InvocationStatus{Kind: StatusSuspended, Metadata: meta, WaitingFor: waitingFor}
}

func (s InvocationStatus) IsFree() bool { return s.Kind == StatusFree }
