package domain

import "errors"

var (
	ErrTickerRequired      = errors.New("ticker required")
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrInvalidPrice        = errors.New("price must be a positive decimal")
	ErrInvalidSide         = errors.New("side must be BUY or SELL")
	ErrInvalidUserID       = errors.New("user id required")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different submission")

	// ErrAnnouncementFailed marks the one-sided failure mode of the
	// pipeline: the order row is durably persisted but the placed event
	// never reached the broker.
	ErrAnnouncementFailed = errors.New("order persisted but announcement failed")
)
