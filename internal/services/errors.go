package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. All of them leave state unchanged:
// validation and state errors are checked before any write, and
// persistence failures roll the enclosing transaction back.
var (
	// ErrNotFound indicates a missing market, prediction, reward or user.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState indicates an operation attempted against an entity in
	// the wrong lifecycle state (settle on a non-CLOSED market, predict on a
	// non-ACTIVE market). Callers may retry after the state changes.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrInsufficientBalance indicates the user cannot cover the requested
	// amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrForbidden indicates the caller lacks the role an operation requires.
	ErrForbidden = errors.New("operation requires admin role")
)

// ValidationError reports a rejected input: bad amount, bad outcome or a
// timing constraint violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
