package domain

import "fmt"

// InvocationErrorCode mirrors the status codes carried by a failed
// invocation result; it rides inside CompletionResult and InvocationStatus
// failure paths alike.
type InvocationErrorCode uint16

const (
	ErrCodeInternal    InvocationErrorCode = 500
	ErrCodeKilled      InvocationErrorCode = 409
	ErrCodeCanceled    InvocationErrorCode = 410
	ErrCodeBadArgument InvocationErrorCode = 400
	ErrCodeNotFound    InvocationErrorCode = 404
)

// InvocationError is the terminal failure value of an invocation. It is not
// a Go error used for interpreter-internal control flow; it is data that
// gets written into journals and outbox responses.
type InvocationError struct {
	Code    InvocationErrorCode
	Message string
}

func (e InvocationError) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// ToCompletionResult lifts a terminal error into the wire shape completions
// and responses carry.
func (e InvocationError) ToCompletionResult() CompletionResult {
	return FailureCompletion(uint16(e.Code), e.Message)
}

// KilledInvocationError and CanceledInvocationError are the two well-known
// terminal errors produced by Kill and Cancel termination respectively; both
// the built-in handling and any caller inspecting a finished invocation rely
// on these exact codes to distinguish the two flavors after the fact.
var (
	KilledInvocationError   = InvocationError{Code: ErrCodeKilled, Message: "invocation was killed"}
	CanceledInvocationError = InvocationError{Code: ErrCodeCanceled, Message: "invocation was canceled"}
)
