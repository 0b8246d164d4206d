package interp

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks a condition the interpreter's contract treats
// as fatal rather than recoverable: replayed state that should be
// impossible given how commands are produced upstream. The partition run
// loop is expected to stop applying commands for the partition rather than
// paper over it, since continuing risks diverging from every replica that
// already rejected the same command.
var ErrInvariantViolation = errors.New("interpreter invariant violation")

func invariantViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
