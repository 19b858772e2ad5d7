package split

import "errors"

// Error kinds returned by the engine. Callers match them with errors.Is; the
// wrapped message carries the offending id or value.
var (
	ErrInvalidLineItem     = errors.New("invalid line item")
	ErrInvalidRoster       = errors.New("invalid roster")
	ErrEmptyReceipt        = errors.New("empty receipt")
	ErrUnknownItem         = errors.New("unknown item")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrNoRemainingQuantity = errors.New("no remaining quantity")
	ErrInvalidAssignment   = errors.New("invalid assignment")

	// ErrInvariantViolation is never returned. It is the panic value when
	// ledger and item state disagree, which only happens when a caller
	// bypasses the Store API.
	ErrInvariantViolation = errors.New("invariant violation")
)
