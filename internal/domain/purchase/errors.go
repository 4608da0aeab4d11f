package purchase

import "errors"

var (
	// ErrPurchaseNotFound is returned when no purchase matches the id or
	// transaction reference
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrPurchaseResolved means a success confirmation arrived for a purchase
	// that already reached a terminal failure state; needs manual triage
	ErrPurchaseResolved = errors.New("purchase already resolved")

	// ErrNotPending is returned when a state change requires a pending purchase
	ErrNotPending = errors.New("purchase is not pending")

	// ErrTierUnavailable is returned when the requested tier is missing or
	// inactive
	ErrTierUnavailable = errors.New("pricing tier unavailable")

	ErrInternal = errors.New("internal error")
)
