/*
errors.go - Centralized error types for the points ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Calling layers match with errors.Is / errors.As and decide how to
  render failures; nothing here is retried automatically.

ERROR CATEGORIES:
  1. Input errors - Negative amounts, malformed transactions
  2. Business-rule errors - Insufficient points on the guarded path
  3. Store errors - Constraint violations, persistence failures

NOT AN ERROR:
  A duplicate social share is a boolean no-op at the engine level, not a
  failure. ErrDuplicateSocialShare exists only as the store-level
  constraint signal that the engine converts into that boolean.

SEE ALSO:
  - store.go: RecordShare uses ErrDuplicateSocialShare
  - points/engine.go: Produces InsufficientPointsError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a negative amount is passed to an
	// earn or spend primitive. Zero is valid.
	ErrInvalidAmount = errors.New("invalid amount: must be non-negative")

	// ErrInvalidDirection is returned for a transaction whose direction
	// is neither earned nor spent.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrInsufficientPoints is returned only by the reward-redemption
	// path when the balance is below the required amount. The generic
	// deduction path never returns it.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrDuplicateSocialShare is returned by the store when a share
	// marker for the same (user, report, platform) already exists.
	ErrDuplicateSocialShare = errors.New("duplicate social share")

	// ErrPersistence wraps storage-level failures. The whole logical
	// operation is aborted; no partial ledger/balance state remains.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError provides details about a redemption shortfall.
type InsufficientPointsError struct {
	UserID    UserID
	Available int
	Required  int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, required %d, short %d",
		e.Available, e.Required, e.Required-e.Available)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return ErrPersistence
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// business-rule violation, as opposed to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInsufficientPoints)
}
