package transfer

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the orchestrator. Every mutating operation either
// fully commits or fails with one of these kinds.
var (
	// ErrValidation indicates malformed input (empty line list, non-positive
	// quantity, identical source and target).
	ErrValidation = errors.New("transfer: invalid input")
	// ErrInvalidTransition indicates the action is not legal for the current status.
	ErrInvalidTransition = errors.New("transfer: invalid state transition")
	// ErrConservation indicates a quantity conservation invariant would break.
	ErrConservation = errors.New("transfer: quantity conservation violated")
	// ErrConcurrentModification indicates a stale snapshot under a concurrent write.
	ErrConcurrentModification = errors.New("transfer: concurrent modification")
	// ErrUnauthenticated indicates a mutating call without an actor identity.
	ErrUnauthenticated = errors.New("transfer: actor identity required")
	// ErrNotFound indicates an unknown transfer or item id.
	ErrNotFound = errors.New("transfer: not found")
	// ErrEmptyTransfer indicates a dispatch attempt on a transfer without lines.
	ErrEmptyTransfer = errors.New("transfer: transfer has no items")
)

// ConservationError names the violated inequality so callers can build a
// precise message. errors.Is(err, ErrConservation) matches it.
type ConservationError struct {
	Violation Violation
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("transfer: quantity conservation violated: %s (%d > %d)",
		e.Violation.Inequality, e.Violation.Attempted, e.Violation.Limit)
}

func (e *ConservationError) Unwrap() error {
	return ErrConservation
}

func invalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
