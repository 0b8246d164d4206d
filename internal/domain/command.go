package domain

// CommandKind enumerates every command the interpreter's OnApply dispatches
// on. This is the full input vocabulary of the state machine.
type CommandKind int

const (
	CmdInvoke CommandKind = iota
	CmdInvocationResponse
	CmdInvokerEffect
	CmdTruncateOutbox
	CmdTimer
	CmdTerminateInvocation
	CmdBuiltInInvokerEffect
	CmdPatchState
	CmdAnnounceLeader
)

func (k CommandKind) String() string {
	switch k {
	case CmdInvoke:
		return "Invoke"
	case CmdInvocationResponse:
		return "InvocationResponse"
	case CmdInvokerEffect:
		return "InvokerEffect"
	case CmdTruncateOutbox:
		return "TruncateOutbox"
	case CmdTimer:
		return "Timer"
	case CmdTerminateInvocation:
		return "TerminateInvocation"
	case CmdBuiltInInvokerEffect:
		return "BuiltInInvokerEffect"
	case CmdPatchState:
		return "PatchState"
	case CmdAnnounceLeader:
		return "AnnounceLeader"
	default:
		return "Unknown"
	}
}

// InvocationResponseCommand delivers a completion to whichever invocation's
// journal entry requested it -- the partition-local half of a cross-service
// call completing.
type InvocationResponseCommand struct {
	Id         MaybeFullInvocationId
	EntryIndex EntryIndex
	Result     CompletionResult
}

// InvokerEffectKind enumerates the progress reports the invoker emits while
// running an invocation: it picked a deployment, it produced a new journal
// entry, it suspended waiting on completions, it ran to completion, or it
// failed outright.
type InvokerEffectKind int

const (
	EffectSelectedDeployment InvokerEffectKind = iota
	EffectJournalEntry
	EffectSuspended
	EffectEnd
	EffectFailed
)

// InvokerEffect is a tagged union over the invoker's progress reports for
// one invocation.
type InvokerEffect struct {
	Fid  FullInvocationId
	Kind InvokerEffectKind

	DeploymentId string // EffectSelectedDeployment

	EntryIndex EntryIndex // EffectJournalEntry
	Entry      RawEntry   // EffectJournalEntry

	WaitingFor map[EntryIndex]struct{} // EffectSuspended

	Error InvocationError // EffectFailed
}

// BuiltInInvokerEffectKind enumerates the effects a deterministic built-in
// service invocation can produce. Built-ins run inline inside the
// interpreter rather than through the invoker, so their effects are applied
// synchronously within the same command.
type BuiltInInvokerEffectKind int

const (
	BuiltInSetState BuiltInInvokerEffectKind = iota
	BuiltInClearState
	BuiltInOutboxMessage
	BuiltInEnd
	BuiltInIngressResponse
)

type BuiltinServiceEffect struct {
	Kind BuiltInInvokerEffectKind

	Key   string // BuiltInSetState / BuiltInClearState
	Value []byte // BuiltInSetState

	Outbox OutboxMessage // BuiltInOutboxMessage

	EndError *InvocationError // BuiltInEnd; nil means the built-in succeeded

	IngressResponse ResponseMessage // BuiltInIngressResponse
}

// BuiltinInvokerEffects batches the effects one deterministic built-in
// invocation produced.
type BuiltinInvokerEffects struct {
	Fid     FullInvocationId
	Effects []BuiltinServiceEffect
}

// Command is a tagged union over every input the interpreter accepts.
// Exactly the field(s) matching Kind are meaningful.
type Command struct {
	Kind CommandKind

	Invoke             *ServiceInvocation
	InvocationResponse *InvocationResponseCommand
	InvokerEffect      *InvokerEffect
	TruncateOutboxUpTo uint64
	Timer              *TimerValue
	Termination        *InvocationTermination
	BuiltInEffects     *BuiltinInvokerEffects
	PatchState         *ExternalStateMutation
	LeaderEpoch        uint64
}

func NewInvokeCommand(inv ServiceInvocation) Command {
	return Command{Kind: CmdInvoke, Invoke: &inv}
}

func NewInvocationResponseCommand(c InvocationResponseCommand) Command {
	return Command{Kind: CmdInvocationResponse, InvocationResponse: &c}
}

func NewInvokerEffectCommand(e InvokerEffect) Command {
	return Command{Kind: CmdInvokerEffect, InvokerEffect: &e}
}

func NewTruncateOutboxCommand(upTo uint64) Command {
	return Command{Kind: CmdTruncateOutbox, TruncateOutboxUpTo: upTo}
}

func NewTimerCommand(t TimerValue) Command {
	return Command{Kind: CmdTimer, Timer: &t}
}

func NewTerminateInvocationCommand(t InvocationTermination) Command {
	return Command{Kind: CmdTerminateInvocation, Termination: &t}
}

func NewBuiltInInvokerEffectCommand(e BuiltinInvokerEffects) Command {
	return Command{Kind: CmdBuiltInInvokerEffect, BuiltInEffects: &e}
}

func NewPatchStateCommand(m ExternalStateMutation) Command {
	return Command{Kind: CmdPatchState, PatchState: &m}
}

func NewAnnounceLeaderCommand(epoch uint64) Command {
	return Command{Kind: CmdAnnounceLeader, LeaderEpoch: epoch}
}
