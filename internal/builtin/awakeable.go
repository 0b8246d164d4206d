// Package builtin implements the deterministic built-in services the
// command interpreter can invoke inline, without going through the invoker
// actuator. The only one Invoke/BackgroundInvoke entries route to today is
// the awakeable completer, which resolves an awakeable id into the
// partition-local invocation and journal entry it completes.
package builtin

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/oriys/partitiond/internal/domain"
)

// AwakeableCompleterServiceName is the reserved service name that routes an
// Invoke/BackgroundInvoke entry to the built-in completer instead of the
// invoker.
const AwakeableCompleterServiceName = "builtin.AwakeableCompleter"

// EncodeAwakeableId packs an invocation id and entry index into the opaque
// token callers pass back to resolve() / reject(). Round-trips through
// DecodeAwakeableId.
func EncodeAwakeableId(iid domain.InvocationId, entryIndex domain.EntryIndex) string {
	raw := fmt.Sprintf("%d:%s:%d", iid.PartitionKey, iid.InvocationUuid, entryIndex)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeAwakeableId is the inverse of EncodeAwakeableId.
func DecodeAwakeableId(id string) (domain.InvocationId, domain.EntryIndex, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return domain.InvocationId{}, 0, fmt.Errorf("malformed awakeable id: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return domain.InvocationId{}, 0, fmt.Errorf("malformed awakeable id: wrong number of parts")
	}
	partitionKey, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return domain.InvocationId{}, 0, fmt.Errorf("malformed awakeable id: %w", err)
	}
	entryIndex, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return domain.InvocationId{}, 0, fmt.Errorf("malformed awakeable id: %w", err)
	}
	return domain.InvocationId{PartitionKey: partitionKey, InvocationUuid: parts[1]}, domain.EntryIndex(entryIndex), nil
}

// completerRequest is the JSON argument shape the awakeable completer
// methods accept.
type completerRequest struct {
	AwakeableId string          `json:"awakeable_id"`
	Value       json.RawMessage `json:"value,omitempty"`
	FailureCode uint16          `json:"failure_code,omitempty"`
	FailureMsg  string          `json:"failure_message,omitempty"`
}

// IsBuiltIn reports whether serviceName routes to a deterministic built-in
// rather than the invoker.
func IsBuiltIn(serviceName string) bool {
	return serviceName == AwakeableCompleterServiceName
}

// Resolution is the outcome of invoking a built-in: either a resolved
// awakeable target to complete via the outbox, or an error to surface to
// whoever invoked the built-in directly.
type Resolution struct {
	Target domain.InvocationId
	Entry  domain.EntryIndex
	Result domain.CompletionResult
}

// Invoke runs one method of the awakeable completer against its argument
// bytes. method must be "resolve" or "reject"; anything else is a caller
// bug, not a data error, and is reported as such.
func Invoke(method string, argument []byte) (Resolution, error) {
	var req completerRequest
	if err := json.Unmarshal(argument, &req); err != nil {
		return Resolution{}, fmt.Errorf("decode awakeable completer argument: %w", err)
	}

	target, entry, err := DecodeAwakeableId(req.AwakeableId)
	if err != nil {
		return Resolution{}, err
	}

	switch method {
	case "resolve":
		return Resolution{Target: target, Entry: entry, Result: domain.SuccessCompletion(req.Value)}, nil
	case "reject":
		return Resolution{Target: target, Entry: entry, Result: domain.FailureCompletion(req.FailureCode, req.FailureMsg)}, nil
	default:
		return Resolution{}, fmt.Errorf("unknown awakeable completer method %q", method)
	}
}
