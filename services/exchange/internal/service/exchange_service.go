package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/kafka"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/google/uuid"
	"log/slog"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

type Topics struct {
	OrdersCreated   string
	OrdersCancelled string
	TradesSettled   string
}

// ExchangeService wraps the in-memory engine with event publishing and
// metrics. The engine is the source of truth; events feed the journal and
// any downstream consumers.
type ExchangeService struct {
	engine   *engine.Exchange
	producer kafka.Publisher
	logger   *slog.Logger
	metrics  *Metrics
	topics   Topics
}

func NewExchangeService(eng *engine.Exchange, producer kafka.Publisher, logger *slog.Logger, metrics *Metrics, topics Topics) *ExchangeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeService{
		engine:   eng,
		producer: producer,
		logger:   logger,
		metrics:  metrics,
		topics:   topics,
	}
}

type CreateOrderInput struct {
	Initiator     uuid.UUID
	Asset         engine.ID
	Price         uint64
	ExpiresIn     uint64
	Conditions    string
	CorrelationID string
}

func (s *ExchangeService) CreateSellOrder(ctx context.Context, input CreateOrderInput) (engine.Order, error) {
	order, err := s.engine.CreateSellOrder(ctx, input.Initiator, input.Asset, input.Price, input.ExpiresIn, input.Conditions)
	s.countOrderCreation(engine.OrderKindSell, err)
	if err != nil {
		return engine.Order{}, err
	}
	s.publishOrderCreated(ctx, input.CorrelationID, order)
	s.syncGauges()
	return order, nil
}

func (s *ExchangeService) CreateBuyOrder(ctx context.Context, input CreateOrderInput) (engine.Order, error) {
	order, err := s.engine.CreateBuyOrder(ctx, input.Initiator, input.Asset, input.Price, input.ExpiresIn, input.Conditions)
	s.countOrderCreation(engine.OrderKindBuy, err)
	if err != nil {
		return engine.Order{}, err
	}
	s.publishOrderCreated(ctx, input.CorrelationID, order)
	s.syncGauges()
	return order, nil
}

func (s *ExchangeService) CancelOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, correlationID string) (engine.Order, error) {
	order, err := s.engine.CancelOrder(ctx, caller, orderID)
	if s.metrics != nil {
		s.metrics.OrderCancellations.WithLabelValues(outcome(err)).Inc()
	}
	if err != nil {
		return engine.Order{}, err
	}
	s.publishOrderCancelled(ctx, correlationID, order)
	s.syncGauges()
	return order, nil
}

func (s *ExchangeService) ExecuteSellOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, correlationID string) (engine.Trade, error) {
	start := time.Now()
	trade, err := s.engine.ExecuteSellOrder(ctx, caller, orderID)
	s.countSettlement("sell", start, err)
	if err != nil {
		return engine.Trade{}, err
	}
	s.publishTradeSettled(ctx, correlationID, trade)
	s.syncGauges()
	return trade, nil
}

func (s *ExchangeService) ExecuteBuyOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, asset engine.ID, correlationID string) (engine.Trade, error) {
	start := time.Now()
	trade, err := s.engine.ExecuteBuyOrder(ctx, caller, orderID, asset)
	s.countSettlement("buy", start, err)
	if err != nil {
		return engine.Trade{}, err
	}
	s.publishTradeSettled(ctx, correlationID, trade)
	s.syncGauges()
	return trade, nil
}

func (s *ExchangeService) Deposit(principal uuid.UUID, amount uint64) (uint64, error) {
	balance, err := s.engine.Deposit(principal, amount)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *ExchangeService) Balance(principal uuid.UUID) uint64 {
	return s.engine.Balance(principal)
}

func (s *ExchangeService) SetFeeRate(caller uuid.UUID, rateBps uint64) error {
	return s.engine.SetFeeRate(caller, rateBps)
}

func (s *ExchangeService) WithdrawRevenue(caller uuid.UUID, amount uint64) (uint64, error) {
	withdrawn, err := s.engine.WithdrawRevenue(caller, amount)
	if err != nil {
		return 0, err
	}
	s.syncGauges()
	return withdrawn, nil
}

func (s *ExchangeService) UpdateAssetValuation(caller uuid.UUID, asset engine.ID, newValuation uint64) (engine.AssetValuation, error) {
	return s.engine.UpdateAssetValuation(caller, asset, newValuation)
}

func (s *ExchangeService) Order(id engine.ID) (engine.Order, error) {
	return s.engine.Order(id)
}

func (s *ExchangeService) Trade(id engine.ID) (engine.Trade, error) {
	return s.engine.Trade(id)
}

func (s *ExchangeService) Valuation(asset engine.ID) (engine.AssetValuation, error) {
	return s.engine.Valuation(asset)
}

func (s *ExchangeService) TraderStats(trader uuid.UUID) (engine.TraderStats, error) {
	return s.engine.TraderStats(trader)
}

func (s *ExchangeService) Stats() engine.Stats {
	return s.engine.Stats()
}

func (s *ExchangeService) Authority() uuid.UUID {
	return s.engine.Authority()
}

func (s *ExchangeService) countOrderCreation(kind engine.OrderKind, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OrderCreations.WithLabelValues(kind.String(), outcome(err)).Inc()
}

func (s *ExchangeService) countSettlement(protocol string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Settlements.WithLabelValues(protocol, outcome(err)).Inc()
	s.metrics.SettlementLatency.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
}

func (s *ExchangeService) syncGauges() {
	if s.metrics == nil {
		return
	}
	stats := s.engine.Stats()
	s.metrics.EscrowCustody.Set(float64(stats.EscrowCustody))
	s.metrics.PlatformRevenue.Set(float64(stats.PlatformRevenue))
	s.metrics.OpenOrders.Set(float64(stats.OpenOrders))
}

func (s *ExchangeService) publishOrderCreated(ctx context.Context, correlationID string, order engine.Order) {
	if s.producer == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.created", order.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.created", 1, correlationID)
	if err != nil {
		s.logger.Error("build order created envelope failed", "error", err)
		return
	}
	payload := OrderCreatedEvent{
		Envelope:      env,
		OrderID:       order.ID.String(),
		Initiator:     order.Initiator.String(),
		Asset:         order.Asset.String(),
		Price:         strconv.FormatUint(order.Price, 10),
		Kind:          order.Kind.String(),
		Status:        order.Status.String(),
		CreatedHeight: order.CreatedHeight,
		ExpiryHeight:  order.ExpiryHeight,
		Conditions:    order.Conditions,
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersCreated, order.Asset.String(), payload); err != nil {
		s.logger.Error("publish order created failed", "error", err)
	}
}

func (s *ExchangeService) publishOrderCancelled(ctx context.Context, correlationID string, order engine.Order) {
	if s.producer == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.cancelled", order.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.cancelled", 1, correlationID)
	if err != nil {
		s.logger.Error("build order cancelled envelope failed", "error", err)
		return
	}
	payload := OrderCancelledEvent{
		Envelope:  env,
		OrderID:   order.ID.String(),
		Initiator: order.Initiator.String(),
		Asset:     order.Asset.String(),
		Kind:      order.Kind.String(),
		Status:    order.Status.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersCancelled, order.Asset.String(), payload); err != nil {
		s.logger.Error("publish order cancelled failed", "error", err)
	}
}

func (s *ExchangeService) publishTradeSettled(ctx context.Context, correlationID string, trade engine.Trade) {
	if s.producer == nil {
		return
	}
	eventID := kafka.DeterministicEventID("trades.settled", trade.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "trades.settled", 1, correlationID)
	if err != nil {
		s.logger.Error("build trade settled envelope failed", "error", err)
		return
	}
	payload := TradeSettledEvent{
		Envelope:         env,
		TradeID:          trade.ID.String(),
		OrderID:          trade.OrderID.String(),
		Buyer:            trade.Buyer.String(),
		Seller:           trade.Seller.String(),
		Asset:            trade.Asset.String(),
		Price:            strconv.FormatUint(trade.Price, 10),
		Fee:              strconv.FormatUint(trade.Fee, 10),
		Height:           trade.Height,
		SettlementStatus: trade.SettlementStatus.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.TradesSettled, trade.Asset.String(), payload); err != nil {
		s.logger.Error("publish trade settled failed", "error", err)
	}
}

func outcome(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

// Event payloads

type OrderCreatedEvent struct {
	kafka.Envelope
	OrderID       string `json:"order_id"`
	Initiator     string `json:"initiator"`
	Asset         string `json:"asset_id"`
	Price         string `json:"price"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	CreatedHeight uint64 `json:"created_height"`
	ExpiryHeight  uint64 `json:"expiry_height"`
	Conditions    string `json:"conditions,omitempty"`
}

type OrderCancelledEvent struct {
	kafka.Envelope
	OrderID   string `json:"order_id"`
	Initiator string `json:"initiator"`
	Asset     string `json:"asset_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

type TradeSettledEvent struct {
	kafka.Envelope
	TradeID          string `json:"trade_id"`
	OrderID          string `json:"order_id"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	Asset            string `json:"asset_id"`
	Price            string `json:"price"`
	Fee              string `json:"fee"`
	Height           uint64 `json:"height"`
	SettlementStatus string `json:"settlement_status"`
}
