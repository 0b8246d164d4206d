package domain

// EntryIndex is the zero-based position of an entry within an invocation's
// journal.
type EntryIndex = uint32

// EntryType classifies a journal entry without requiring its payload to be
// decoded. The interpreter only ever needs the type and completion flag to
// decide how to apply a Command; it leaves payload interpretation to the
// entry codec.
type EntryType int

const (
	EntryInput EntryType = iota
	EntryOutput
	EntryGetState
	EntryGetStateKeys
	EntrySetState
	EntryClearState
	EntryClearAllState
	EntrySleep
	EntryInvoke
	EntryBackgroundInvoke
	EntryAwakeable
	EntryCompleteAwakeable
	EntryCustom
)

func (t EntryType) String() string {
	switch t {
	case EntryInput:
		return "Input"
	case EntryOutput:
		return "Output"
	case EntryGetState:
		return "GetState"
	case EntryGetStateKeys:
		return "GetStateKeys"
	case EntrySetState:
		return "SetState"
	case EntryClearState:
		return "ClearState"
	case EntryClearAllState:
		return "ClearAllState"
	case EntrySleep:
		return "Sleep"
	case EntryInvoke:
		return "Invoke"
	case EntryBackgroundInvoke:
		return "BackgroundInvoke"
	case EntryAwakeable:
		return "Awakeable"
	case EntryCompleteAwakeable:
		return "CompleteAwakeable"
	default:
		return "Custom"
	}
}

// CompletableEntry reports whether entries of this type ever carry an
// IsCompleted flag the interpreter must track (GetState, GetStateKeys,
// Sleep, Awakeable, Invoke). Output/SetState/ClearState/etc. resolve
// synchronously and are never suspended on.
func (t EntryType) CompletableEntry() bool {
	switch t {
	case EntryGetState, EntryGetStateKeys, EntrySleep, EntryAwakeable, EntryInvoke:
		return true
	default:
		return false
	}
}

// InvokeEnrichment resolves an Invoke/BackgroundInvoke entry's target
// service and the invocation uuid assigned to the callee, computed once by
// the service-protocol layer before the entry ever reaches the interpreter.
type InvokeEnrichment struct {
	ServiceName    string
	Key            string
	InvocationUuid string
	SpanContext    SpanContext
}

// AwakeableEnrichment resolves a CompleteAwakeable entry to the invocation
// and entry index it will complete.
type AwakeableEnrichment struct {
	InvocationId InvocationId
	EntryIndex   EntryIndex
}

// EntryHeader is the decoded-enough view of a journal entry the interpreter
// acts on. Payload bytes stay opaque to the interpreter; only the codec
// decodes them, and only when a handler specifically needs the contents
// (e.g. to build a ServiceInvocation for an Invoke entry).
type EntryHeader struct {
	Type        EntryType
	IsCompleted bool

	InvokeEnrichment    *InvokeEnrichment
	AwakeableEnrichment *AwakeableEnrichment
}

// RawEntry is a codec-opaque journal entry as it is stored and replayed.
type RawEntry struct {
	Header  EntryHeader
	Payload []byte
}

// CompletionResultKind distinguishes the three shapes a completion can take:
// acknowledged-with-no-value (Empty, e.g. SetState ack), a successful value,
// or a terminal failure.
type CompletionResultKind int

const (
	CompletionEmpty CompletionResultKind = iota
	CompletionSuccess
	CompletionFailure
)

type CompletionResult struct {
	Kind           CompletionResultKind
	Value          []byte
	FailureCode    uint16
	FailureMessage string
}

func EmptyCompletion() CompletionResult { return CompletionResult{Kind: CompletionEmpty} }

func SuccessCompletion(value []byte) CompletionResult {
	return CompletionResult{Kind: CompletionSuccess, Value: value}
}

func FailureCompletion(code uint16, message string) CompletionResult {
	return CompletionResult{Kind: CompletionFailure, FailureCode: code, FailureMessage: message}
}

func (r CompletionResult) IsFailure() bool { return r.Kind == CompletionFailure }

// Completion pairs a result with the journal position it resolves.
type Completion struct {
	EntryIndex EntryIndex
	Result     CompletionResult
}

// JournalEntryKind distinguishes a stored raw entry from a stored completion
// record; both are addressed by EntryIndex within a journal.
type JournalEntryKind int

const (
	JournalEntryRaw JournalEntryKind = iota
	JournalEntryCompletion
)

// JournalEntry is what storage actually keeps at a given journal position:
// either the entry itself, or (once resolved) its completion.
type JournalEntry struct {
	Kind       JournalEntryKind
	Entry      RawEntry
	Completion CompletionResult
}
