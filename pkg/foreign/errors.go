package foreign

import (
	"errors"
	"fmt"
)

// ErrCallFailed marks a failure of the foreign call itself: an invalid
// reference, a trapped method, a type mismatch at the boundary.
var ErrCallFailed = errors.New("foreign call failed")

// CallError describes a boundary failure with the operation that caused it.
type CallError struct {
	// Op is the Env operation, e.g. "CallObjectMethod".
	Op string

	// Target names the class or member involved, if known.
	Target string

	// Err is the runtime's own error.
	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Is makes every CallError match ErrCallFailed.
func (e *CallError) Is(target error) bool {
	return target == ErrCallFailed
}

// IsCallFailure reports whether err is a boundary failure.
func IsCallFailure(err error) bool {
	return errors.Is(err, ErrCallFailed)
}
