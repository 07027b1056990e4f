package service

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"testing"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/google/uuid"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

type publishCall struct {
	topic string
	key   string
	value any
}

func (s *stubPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, publishCall{topic: topic, key: key, value: value})
	s.mu.Unlock()
	return 0, 0, nil
}

func (s *stubPublisher) Close() error { return nil }

type fakeRegistry struct {
	owners map[engine.ID]uuid.UUID
}

func (r *fakeRegistry) OwnershipOf(_ context.Context, asset engine.ID) (uuid.UUID, error) {
	owner, ok := r.owners[asset]
	if !ok {
		return uuid.Nil, engine.ErrNotFound
	}
	return owner, nil
}

func (r *fakeRegistry) AssetExists(_ context.Context, asset engine.ID) (bool, error) {
	_, ok := r.owners[asset]
	return ok, nil
}

type fakeHeights struct {
	h uint64
}

func (f *fakeHeights) Height() uint64 { return f.h }

type serviceFixture struct {
	svc       *ExchangeService
	producer  *stubPublisher
	authority uuid.UUID
	seller    uuid.UUID
	buyer     uuid.UUID
	asset     engine.ID
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	authority := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()
	asset := engine.ID(sha256.Sum256([]byte("asset-1")))

	registry := &fakeRegistry{owners: map[engine.ID]uuid.UUID{asset: seller}}
	eng, err := engine.NewExchange(authority, 250, registry, &fakeHeights{h: 100}, slog.Default())
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}

	producer := &stubPublisher{}
	svc := NewExchangeService(eng, producer, slog.Default(), nil, Topics{
		OrdersCreated:   "orders.created",
		OrdersCancelled: "orders.cancelled",
		TradesSettled:   "trades.settled",
	})

	return &serviceFixture{
		svc:       svc,
		producer:  producer,
		authority: authority,
		seller:    seller,
		buyer:     buyer,
		asset:     asset,
	}
}

func TestCreateSellOrderPublishesEvent(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateSellOrder(context.Background(), CreateOrderInput{
		Initiator: f.seller,
		Asset:     f.asset,
		Price:     1000,
	})
	if err != nil {
		t.Fatalf("create sell order: %v", err)
	}

	if len(f.producer.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(f.producer.calls))
	}
	call := f.producer.calls[0]
	if call.topic != "orders.created" {
		t.Fatalf("expected orders.created topic, got %s", call.topic)
	}
	if call.key != f.asset.String() {
		t.Fatalf("expected asset key, got %s", call.key)
	}
	event, ok := call.value.(OrderCreatedEvent)
	if !ok {
		t.Fatalf("expected OrderCreatedEvent, got %T", call.value)
	}
	if event.OrderID != order.ID.String() {
		t.Fatalf("event order id mismatch")
	}
	if event.Kind != "sell" {
		t.Fatalf("expected sell kind, got %s", event.Kind)
	}
	if event.Price != "1000" {
		t.Fatalf("expected price 1000, got %s", event.Price)
	}
}

func TestCreateSellOrderRejectedPublishesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSellOrder(context.Background(), CreateOrderInput{
		Initiator: f.buyer,
		Asset:     f.asset,
		Price:     1000,
	})
	if err == nil {
		t.Fatalf("expected rejection for non-owner")
	}
	if len(f.producer.calls) != 0 {
		t.Fatalf("expected no publish on rejection, got %d", len(f.producer.calls))
	}
}

func TestExecuteSellOrderPublishesTradeSettled(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Deposit(f.buyer, 5000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	order, err := f.svc.CreateSellOrder(context.Background(), CreateOrderInput{
		Initiator: f.seller,
		Asset:     f.asset,
		Price:     1000,
	})
	if err != nil {
		t.Fatalf("create sell order: %v", err)
	}

	trade, err := f.svc.ExecuteSellOrder(context.Background(), f.buyer, order.ID, "corr-1")
	if err != nil {
		t.Fatalf("execute sell order: %v", err)
	}

	if len(f.producer.calls) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(f.producer.calls))
	}
	call := f.producer.calls[1]
	if call.topic != "trades.settled" {
		t.Fatalf("expected trades.settled topic, got %s", call.topic)
	}
	event, ok := call.value.(TradeSettledEvent)
	if !ok {
		t.Fatalf("expected TradeSettledEvent, got %T", call.value)
	}
	if event.TradeID != trade.ID.String() {
		t.Fatalf("event trade id mismatch")
	}
	if event.Fee != "25" {
		t.Fatalf("expected fee 25, got %s", event.Fee)
	}
	if event.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id to propagate, got %q", event.CorrelationID)
	}
}

func TestCancelOrderPublishesEvent(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateSellOrder(context.Background(), CreateOrderInput{
		Initiator: f.seller,
		Asset:     f.asset,
		Price:     1000,
	})
	if err != nil {
		t.Fatalf("create sell order: %v", err)
	}

	cancelled, err := f.svc.CancelOrder(context.Background(), f.seller, order.ID, "")
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != engine.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	if len(f.producer.calls) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(f.producer.calls))
	}
	call := f.producer.calls[1]
	if call.topic != "orders.cancelled" {
		t.Fatalf("expected orders.cancelled topic, got %s", call.topic)
	}
	event, ok := call.value.(OrderCancelledEvent)
	if !ok {
		t.Fatalf("expected OrderCancelledEvent, got %T", call.value)
	}
	if event.Status != "cancelled" {
		t.Fatalf("expected cancelled status in event, got %s", event.Status)
	}
}

func TestDeterministicEventIDsMatchAcrossRetries(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreateSellOrder(context.Background(), CreateOrderInput{
		Initiator: f.seller,
		Asset:     f.asset,
		Price:     1000,
	})
	if err != nil {
		t.Fatalf("create sell order: %v", err)
	}

	event := f.producer.calls[0].value.(OrderCreatedEvent)
	if event.EventID == "" {
		t.Fatalf("expected deterministic event id")
	}
	_ = order
}
