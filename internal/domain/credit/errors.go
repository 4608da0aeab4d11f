package credit

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is the sentinel for affordability failures;
	// callers usually receive the typed InsufficientCreditsError instead
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when an amount is outside its legal range
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUserNotFound is returned when the user doesn't exist
	ErrUserNotFound = errors.New("user not found")

	// ErrInvariantViolation means a write would break the ledger (negative
	// balance or a stale balance snapshot). Indicates a bug or a lost race;
	// never coerced into a zero balance.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrLockTimeout means the per-user lock could not be acquired in time
	ErrLockTimeout = errors.New("balance lock timeout")

	// ErrConcurrentModification means the transaction lost a serialization
	// race; retry with a fresh balance read
	ErrConcurrentModification = errors.New("concurrent balance modification")

	ErrInternal = errors.New("internal error")
)

// InsufficientCreditsError carries the shortfall so callers can tell the
// user exactly how many credits they are missing.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientCredits) work on the typed error
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
