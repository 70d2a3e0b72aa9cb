package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rbrcloud/apex-order-srvc/internal/domain"
)

// Topic for order acceptance announcements.
const OrderPlacedTopic = "order.placed.event"

// OrderPlaced is the outbound announcement published after an order is
// durably accepted. The schema is append-only: consumers must tolerate
// new fields. Price serializes as a decimal string.
type OrderPlaced struct {
	OrderID  int64           `json:"orderId"`
	UserID   int64           `json:"userId"`
	Ticker   string          `json:"ticker"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Side     string          `json:"side"`
	PlacedAt time.Time       `json:"placedAt"`
}

// NewOrderPlaced projects a persisted order into its announcement.
// OrderID and PlacedAt are copied verbatim from the store-assigned values.
func NewOrderPlaced(order domain.Order) OrderPlaced {
	return OrderPlaced{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Ticker:   order.Ticker,
		Quantity: order.Quantity,
		Price:    order.Price,
		Side:     string(order.Side),
		PlacedAt: order.CreatedAt,
	}
}
