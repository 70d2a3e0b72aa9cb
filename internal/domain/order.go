package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide validates the wire representation of an order side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	default:
		return "", ErrInvalidSide
	}
}

type OrderStatus string

// OrderStatusSubmitted is the only status this pipeline writes; later
// lifecycle states belong to downstream consumers.
const OrderStatusSubmitted OrderStatus = "SUBMITTED"

// Order represents a user's request to buy or sell a quantity of a ticker
// at a price. ID and CreatedAt are assigned by the order store at insert
// time and never mutated afterwards.
type Order struct {
	ID       int64
	UserID   int64
	Ticker   string
	Quantity int
	Price    decimal.Decimal
	Side     Side
	Status   OrderStatus
	// IdempotencyKey is set only when the client supplied one; repeat
	// submissions with the same key resolve to the original order.
	IdempotencyKey string
	CreatedAt      time.Time
}

// SameSubmission reports whether two orders carry identical
// client-supplied fields. Used to detect idempotency-key reuse with a
// different payload.
func (o Order) SameSubmission(other Order) bool {
	return o.UserID == other.UserID &&
		o.Ticker == other.Ticker &&
		o.Quantity == other.Quantity &&
		o.Side == other.Side &&
		o.Price.Equal(other.Price)
}
