package listing

import "errors"

var (
	// ErrListingNotFound is returned when no active listing matches the id
	ErrListingNotFound = errors.New("listing not found")

	// ErrUnknownPlacement is returned for a placement outside the price list
	ErrUnknownPlacement = errors.New("unknown placement")

	ErrInternal = errors.New("internal error")
)
