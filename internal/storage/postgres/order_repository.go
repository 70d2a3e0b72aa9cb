package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rbrcloud/apex-order-srvc/internal/clock"
	"github.com/rbrcloud/apex-order-srvc/internal/domain"
)

// OrderRepository is the durable order store. Identity comes from the
// orders table's generated column; the creation timestamp comes from the
// repository's clock at insert time. Both are returned on the created
// order and never rewritten.
type OrderRepository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewOrderRepository(pool *pgxpool.Pool, clk clock.Clock) *OrderRepository {
	return &OrderRepository{
		pool:  pool,
		clock: clk,
	}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	const stmt = `
INSERT INTO orders (user_id, ticker, side, quantity, price, status, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
RETURNING id`

	order.CreatedAt = r.clock.Now()
	err := r.queryRow(ctx, stmt,
		order.UserID,
		order.Ticker,
		order.Side,
		order.Quantity,
		order.Price,
		order.Status,
		order.IdempotencyKey,
		order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrIdempotencyConflict
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	const query = `
SELECT id, user_id, ticker, side, quantity, price, status, idempotency_key, created_at
FROM orders
WHERE idempotency_key = $1`

	var o domain.Order
	var side, status string
	err := r.queryRow(ctx, query, key).
		Scan(&o.ID, &o.UserID, &o.Ticker, &side, &o.Quantity, &o.Price, &status, &o.IdempotencyKey, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by idempotency key: %w", err)
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
