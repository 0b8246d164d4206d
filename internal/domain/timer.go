package domain

import "time"

// TimerKey is the storage key timers are ordered and looked up by: due time
// first so that a range scan from zero yields timers in fire order, then the
// owning invocation and journal position to disambiguate same-timestamp
// timers and to let a specific timer be deleted by key alone.
type TimerKey struct {
	Timestamp      time.Time
	InvocationUuid string
	JournalIndex   EntryIndex
}

// TimerKind distinguishes a Sleep entry's wake timer from a delayed
// (BackgroundInvoke-with-delay) invocation timer.
type TimerKind int

const (
	TimerCompleteSleepEntry TimerKind = iota
	TimerInvoke
)

// Timer is a tagged union over what fires: a sleep completion targeting a
// specific service/journal entry, or a deferred invocation to dispatch.
type Timer struct {
	Kind TimerKind

	ServiceId  ServiceId         // TimerCompleteSleepEntry
	Invocation ServiceInvocation // TimerInvoke
}

type TimerValue struct {
	Key   TimerKey
	Value Timer
}

func NewSleepTimer(key TimerKey, sid ServiceId) TimerValue {
	return TimerValue{Key: key, Value: Timer{Kind: TimerCompleteSleepEntry, ServiceId: sid}}
}

func NewInvokeTimer(key TimerKey, inv ServiceInvocation) TimerValue {
	return TimerValue{Key: key, Value: Timer{Kind: TimerInvoke, Invocation: inv}}
}
