package dispatch

import "errors"

// Error taxonomy for intake and lifecycle operations. Callers match with
// errors.Is; every failure leaves request state untouched.
var (
	// ErrInvalidInput reports malformed coordinates or out-of-range
	// fields. A submission from a provider outside the broadcast
	// candidate set also maps here rather than to ErrDuplicateResponse:
	// such a provider has no response on record to duplicate.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRequestClosed reports an operation against a terminal request.
	ErrRequestClosed = errors.New("request closed")
	// ErrDuplicateResponse reports a second reply from the same provider.
	ErrDuplicateResponse = errors.New("duplicate response")
	// ErrPriceTooLow reports an offer below the request's price floor.
	ErrPriceTooLow = errors.New("price below floor")
	// ErrUnknownRequest reports an operation against an id the coordinator
	// does not track.
	ErrUnknownRequest = errors.New("unknown request")
)
