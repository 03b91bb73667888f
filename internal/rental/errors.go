package rental

import "errors"

// Failure taxonomy of the booking surface. All of these are recoverable at
// the caller: re-quote, re-submit or pick a different interval.
var (
	// ErrConflict: the requested interval is not jointly free for the
	// item set.
	ErrConflict = errors.New("requested interval is not available")

	// ErrPriceChanged: the client-supplied price no longer matches the
	// recomputed one. A stale-quote guard, not a validation error.
	ErrPriceChanged = errors.New("price has changed since the quote")

	// ErrInvalidCategory: the item set does not match the category's
	// declared composition.
	ErrInvalidCategory = errors.New("items do not match category composition")

	// ErrInvalidTransition: the operation is not legal from the
	// reservation's current state, or the grace window has passed.
	ErrInvalidTransition = errors.New("invalid reservation state transition")

	// ErrMissingReparationWindow: an item returned broken or permanently
	// unavailable needs a maintenance window.
	ErrMissingReparationWindow = errors.New("broken item requires a reparation window")

	// ErrItemMismatch: terminate was called with returned conditions that
	// do not cover the reservation's items.
	ErrItemMismatch = errors.New("returned items do not match the reservation")

	// ErrInvalidInterval: start after end, or an unparseable range.
	ErrInvalidInterval = errors.New("start date must not be after end date")

	ErrNotFound = errors.New("not found")

	// ErrNoStaff: round-robin assignment found no staff to assign.
	ErrNoStaff = errors.New("no staff available for assignment")
)
