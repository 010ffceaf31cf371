package errors

import (
	stderrors "errors"
	"fmt"
)

// Math and Invariant errors (spec §7) indicate a defect in the state
// machine or its caller, never a legitimate user-facing rejection. They are
// never silently recoverable: the state machine must abort the in-flight
// operation without committing any partial mutation.
var (
	ErrOverflow  = stderrors.New("math: overflow")
	ErrDivByZero = stderrors.New("math: division by zero")
)

// InvariantError reports a failed post-condition check (§8). Diagnostic
// carries enough detail for an operator to reconstruct which invariant
// failed and on what values, since the state machine refuses to commit
// once one of these fires.
type InvariantError struct {
	Invariant  string
	Diagnostic string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Invariant, e.Diagnostic)
}

// Is allows errors.Is(err, ErrInvariantViolation) to match any InvariantError.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// ErrInvariantViolation is the sentinel matched by errors.Is against any
// *InvariantError; use NewInvariantError to build one carrying detail.
var ErrInvariantViolation = stderrors.New("core: invariant violation")

func NewInvariantError(invariant, diagnostic string) error {
	return &InvariantError{Invariant: invariant, Diagnostic: diagnostic}
}
