package pricing

import "errors"

var (
	// ErrTierNotFound is returned when a pricing tier doesn't exist
	ErrTierNotFound = errors.New("pricing tier not found")

	ErrInternal = errors.New("internal error")
)
