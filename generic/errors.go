/*
errors.go - Centralized error types for every engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with context; the api package maps them to
  HTTP status codes.

ERROR CATEGORIES:
  1. Validation  - malformed input, surfaced to the caller immediately
  2. State       - wrong state or lost conditional-update race. Transitions
                   report these as Result{Applied: false}, not as errors.
                   ErrStateConflict exists for the few call sites that must
                   return an error (e.g. status advancement over HTTP).
  3. Not found   - getters return (nil, nil); ErrNotFound is for commands
                   that cannot proceed without the record
  4. Unavailable - the persistence layer failed. Financial writes always
                   return it; read paths may degrade to empty results.

USAGE:
  if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
      // already processed, safe to ignore
  }

SEE ALSO:
  - api/handlers.go: statusFor maps these to HTTP codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a command references a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned when a transition cannot be applied from the current state.
	ErrStateConflict = errors.New("state conflict")

	// ErrUnavailable wraps persistence failures.
	ErrUnavailable = errors.New("store unavailable")

	// ErrDuplicateIdempotencyKey is returned when a write with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned when a debit exceeds the available points.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPromotionOverlap means two promotions for one product share an instant.
	ErrPromotionOverlap = errors.New("overlapping promotions for product")

	// ErrForbidden is returned when the actor lacks the role an operation needs.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for &ValidationError{Field: field, Message: msg}.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// InsufficientBalanceError provides details about a points shortage.
type InsufficientBalanceError struct {
	TrainerID string
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d",
		e.TrainerID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// PromotionOverlapError lists the promotions that matched one instant.
type PromotionOverlapError struct {
	ProductID    string
	PromotionIDs []string
	BonusRates   []decimal.Decimal
}

func (e *PromotionOverlapError) Error() string {
	return fmt.Sprintf("product %s has %d active promotions: %v",
		e.ProductID, len(e.PromotionIDs), e.PromotionIDs)
}

func (e *PromotionOverlapError) Unwrap() error { return ErrPromotionOverlap }

// Unavailable wraps a store error so callers can test for ErrUnavailable
// while keeping the original cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrPromotionOverlap)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
