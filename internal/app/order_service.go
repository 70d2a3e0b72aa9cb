package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rbrcloud/apex-order-srvc/internal/domain"
	"github.com/rbrcloud/apex-order-srvc/internal/event"
)

// OrderStore persists orders. CreateOrder assigns the order's identity
// and creation timestamp; the write is durable before it returns, and a
// failure means no row exists.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}

// OrderPublisher announces accepted orders. It has no retry policy of its
// own; a returned error means the announcement was lost.
type OrderPublisher interface {
	PublishOrderPlaced(ctx context.Context, ev event.OrderPlaced) error
}

// OrderService runs the submission pipeline: validate, persist, announce.
// There is intentionally no compensation between the last two steps — a
// failed publish leaves the persisted order in place and surfaces
// domain.ErrAnnouncementFailed.
type OrderService struct {
	store     OrderStore
	publisher OrderPublisher
}

func NewOrderService(store OrderStore, publisher OrderPublisher) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
	}
}

type SubmitOrderInput struct {
	Ticker   string
	Quantity int
	Price    decimal.Decimal
	Side     string
	UserID   int64
	// IdempotencyKey is optional; when empty every submission creates a
	// new order.
	IdempotencyKey string
}

func (in SubmitOrderInput) validate() error {
	if in.Ticker == "" {
		return domain.ErrTickerRequired
	}
	if in.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if !in.Price.IsPositive() {
		return domain.ErrInvalidPrice
	}
	if _, err := domain.ParseSide(in.Side); err != nil {
		return err
	}
	if in.UserID <= 0 {
		return domain.ErrInvalidUserID
	}
	return nil
}

type SubmitOrderResult struct {
	Order domain.Order
	// Created is false when an idempotent replay resolved to an existing
	// order; no new row was written and no announcement was published.
	Created bool
}

func (s *OrderService) SubmitOrder(ctx context.Context, in SubmitOrderInput) (SubmitOrderResult, error) {
	if err := in.validate(); err != nil {
		return SubmitOrderResult{}, err
	}

	side, _ := domain.ParseSide(in.Side)
	order := domain.Order{
		UserID:         in.UserID,
		Ticker:         in.Ticker,
		Quantity:       in.Quantity,
		Price:          in.Price,
		Side:           side,
		Status:         domain.OrderStatusSubmitted,
		IdempotencyKey: in.IdempotencyKey,
	}

	result, err := s.persist(ctx, order)
	if err != nil {
		return SubmitOrderResult{}, err
	}
	if !result.Created {
		return result, nil
	}

	ev := event.NewOrderPlaced(result.Order)
	if err := s.publisher.PublishOrderPlaced(ctx, ev); err != nil {
		slog.Error("order persisted but publish failed",
			"orderId", result.Order.ID,
			"ticker", result.Order.Ticker,
			"error", err,
		)
		return result, domain.ErrAnnouncementFailed
	}

	slog.Info("order placed",
		"orderId", result.Order.ID,
		"ticker", result.Order.Ticker,
		"side", result.Order.Side,
	)
	return result, nil
}

func (s *OrderService) persist(ctx context.Context, order domain.Order) (SubmitOrderResult, error) {
	if order.IdempotencyKey == "" {
		created, err := s.store.CreateOrder(ctx, order)
		if err != nil {
			return SubmitOrderResult{}, err
		}
		return SubmitOrderResult{Order: created, Created: true}, nil
	}

	var result SubmitOrderResult
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.store.FindOrderByIdempotencyKey(txCtx, order.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.SameSubmission(order) {
				return domain.ErrIdempotencyConflict
			}
			result = SubmitOrderResult{Order: *existing, Created: false}
			return nil
		}

		created, err := s.store.CreateOrder(txCtx, order)
		if err != nil {
			return err
		}
		result = SubmitOrderResult{Order: created, Created: true}
		return nil
	})
	if errors.Is(err, domain.ErrIdempotencyConflict) {
		// A unique violation aborts the losing transaction, so the winner's
		// committed row has to be read on a fresh connection after rollback.
		existing, findErr := s.store.FindOrderByIdempotencyKey(ctx, order.IdempotencyKey)
		if findErr != nil {
			return SubmitOrderResult{}, findErr
		}
		if existing != nil && existing.SameSubmission(order) {
			return SubmitOrderResult{Order: *existing, Created: false}, nil
		}
		return SubmitOrderResult{}, domain.ErrIdempotencyConflict
	}
	if err != nil {
		return SubmitOrderResult{}, err
	}
	return result, nil
}
