package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rbrcloud/apex-order-srvc/internal/domain"
	"github.com/rbrcloud/apex-order-srvc/internal/event"
)

var testCreatedAt = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func validInput() SubmitOrderInput {
	return SubmitOrderInput{
		Ticker:   "ACME",
		Quantity: 10,
		Price:    decimal.RequireFromString("99.5"),
		Side:     "BUY",
		UserID:   42,
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	res, err := svc.SubmitOrder(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Errorf("expected Created=true")
	}
	if res.Order.ID != 1 {
		t.Errorf("expected store-assigned id 1, got %d", res.Order.ID)
	}
	if res.Order.Status != domain.OrderStatusSubmitted {
		t.Errorf("expected status SUBMITTED, got %q", res.Order.Status)
	}
	if !res.Order.CreatedAt.Equal(testCreatedAt) {
		t.Errorf("expected store-assigned timestamp %v, got %v", testCreatedAt, res.Order.CreatedAt)
	}
	if store.rowCount() != 1 {
		t.Fatalf("expected 1 persisted order, got %d", store.rowCount())
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.published))
	}

	ev := pub.published[0]
	if ev.OrderID != res.Order.ID {
		t.Errorf("event orderId %d does not match persisted id %d", ev.OrderID, res.Order.ID)
	}
	if !ev.PlacedAt.Equal(res.Order.CreatedAt) {
		t.Errorf("event placedAt %v does not match persisted created_at %v", ev.PlacedAt, res.Order.CreatedAt)
	}
	if ev.Ticker != "ACME" || ev.UserID != 42 || ev.Quantity != 10 || ev.Side != "BUY" {
		t.Errorf("event fields do not match submission: %+v", ev)
	}
	if !ev.Price.Equal(decimal.RequireFromString("99.5")) {
		t.Errorf("event price %s does not match submission", ev.Price)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SubmitOrderInput)
		wantErr error
	}{
		{
			name:    "missing ticker",
			mutate:  func(in *SubmitOrderInput) { in.Ticker = "" },
			wantErr: domain.ErrTickerRequired,
		},
		{
			name:    "zero quantity",
			mutate:  func(in *SubmitOrderInput) { in.Quantity = 0 },
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			mutate:  func(in *SubmitOrderInput) { in.Quantity = -3 },
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "zero price",
			mutate:  func(in *SubmitOrderInput) { in.Price = decimal.Zero },
			wantErr: domain.ErrInvalidPrice,
		},
		{
			name:    "negative price",
			mutate:  func(in *SubmitOrderInput) { in.Price = decimal.RequireFromString("-1") },
			wantErr: domain.ErrInvalidPrice,
		},
		{
			name:    "unknown side",
			mutate:  func(in *SubmitOrderInput) { in.Side = "HOLD" },
			wantErr: domain.ErrInvalidSide,
		},
		{
			name:    "lowercase side",
			mutate:  func(in *SubmitOrderInput) { in.Side = "buy" },
			wantErr: domain.ErrInvalidSide,
		},
		{
			name:    "missing user id",
			mutate:  func(in *SubmitOrderInput) { in.UserID = 0 },
			wantErr: domain.ErrInvalidUserID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			pub := &fakePublisher{}
			svc := NewOrderService(store, pub)

			in := validInput()
			tc.mutate(&in)

			_, err := svc.SubmitOrder(context.Background(), in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if store.rowCount() != 0 {
				t.Errorf("rejected submission must not persist, found %d rows", store.rowCount())
			}
			if len(pub.published) != 0 {
				t.Errorf("rejected submission must not publish, found %d events", len(pub.published))
			}
		})
	}
}

func TestSubmitOrderStoreFailure(t *testing.T) {
	storeErr := errors.New("db down")
	store := newFakeStore()
	store.createErr = storeErr
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	_, err := svc.SubmitOrder(context.Background(), validInput())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(pub.published) != 0 {
		t.Errorf("nothing may be published when persistence fails, found %d events", len(pub.published))
	}
}

func TestSubmitOrderPublishFailure(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	svc := NewOrderService(store, pub)

	res, err := svc.SubmitOrder(context.Background(), validInput())
	if !errors.Is(err, domain.ErrAnnouncementFailed) {
		t.Fatalf("expected ErrAnnouncementFailed, got %v", err)
	}
	// The row stays; there is no compensation for a lost announcement.
	if store.rowCount() != 1 {
		t.Errorf("expected the persisted order to remain, got %d rows", store.rowCount())
	}
	if res.Order.ID != 1 {
		t.Errorf("result should carry the persisted order, got id %d", res.Order.ID)
	}
}

func TestSubmitOrderIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	in := validInput()
	in.IdempotencyKey = "req-7"

	first, err := svc.SubmitOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if !first.Created {
		t.Fatalf("first submission must create")
	}

	second, err := svc.SubmitOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Created {
		t.Errorf("replay must not create a new order")
	}
	if second.Order.ID != first.Order.ID {
		t.Errorf("replay resolved to id %d, want %d", second.Order.ID, first.Order.ID)
	}
	if store.rowCount() != 1 {
		t.Errorf("expected exactly one row after replay, got %d", store.rowCount())
	}
	if len(pub.published) != 1 {
		t.Errorf("replay must not publish again, got %d events", len(pub.published))
	}
}

func TestSubmitOrderIdempotencyConflict(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	in := validInput()
	in.IdempotencyKey = "req-7"
	if _, err := svc.SubmitOrder(context.Background(), in); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	in.Quantity = 999
	_, err := svc.SubmitOrder(context.Background(), in)
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	if store.rowCount() != 1 {
		t.Errorf("conflicting submission must not persist, got %d rows", store.rowCount())
	}
	if len(pub.published) != 1 {
		t.Errorf("conflicting submission must not publish, got %d events", len(pub.published))
	}
}

func TestSubmitOrderInsertRaceResolvesToWinner(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	in := validInput()
	in.IdempotencyKey = "req-7"

	// Simulate a concurrent submission winning the insert between our
	// find and our create.
	winner := domain.Order{
		ID:             5,
		UserID:         in.UserID,
		Ticker:         in.Ticker,
		Quantity:       in.Quantity,
		Price:          in.Price,
		Side:           domain.SideBuy,
		Status:         domain.OrderStatusSubmitted,
		IdempotencyKey: "req-7",
		CreatedAt:      testCreatedAt,
	}
	store.createHook = func() {
		store.orders["req-7"] = winner
	}

	res, err := svc.SubmitOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created {
		t.Errorf("losing the race must not count as a create")
	}
	if res.Order.ID != winner.ID {
		t.Errorf("expected winner's id %d, got %d", winner.ID, res.Order.ID)
	}
	if len(pub.published) != 0 {
		t.Errorf("race loser must not publish, got %d events", len(pub.published))
	}
}

type fakeStore struct {
	orders     map[string]domain.Order
	keyless    []domain.Order
	nextID     int64
	createErr  error
	createHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[string]domain.Order),
		nextID: 1,
	}
}

func (f *fakeStore) rowCount() int {
	return len(f.orders) + len(f.keyless)
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) CreateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	if f.createHook != nil {
		f.createHook()
		f.createHook = nil
	}
	if order.IdempotencyKey != "" {
		if _, exists := f.orders[order.IdempotencyKey]; exists {
			return domain.Order{}, domain.ErrIdempotencyConflict
		}
	}
	order.ID = f.nextID
	f.nextID++
	order.CreatedAt = testCreatedAt
	if order.IdempotencyKey != "" {
		f.orders[order.IdempotencyKey] = order
	} else {
		f.keyless = append(f.keyless, order)
	}
	return order, nil
}

func (f *fakeStore) FindOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	order, ok := f.orders[key]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

type fakePublisher struct {
	err       error
	published []event.OrderPlaced
}

func (f *fakePublisher) PublishOrderPlaced(_ context.Context, ev event.OrderPlaced) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}
