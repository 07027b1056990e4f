package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/kafka"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/service"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/storage"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"log/slog"
)

type Store interface {
	UpsertOrder(ctx context.Context, order storage.OrderRecord) error
	UpdateOrderStatus(ctx context.Context, id, status string) error
	InsertTrade(ctx context.Context, trade storage.TradeRecord) error
	RecordTradePrice(ctx context.Context, assetID string, lastTradePrice decimal.Decimal, height int64) error
}

type Topics struct {
	OrdersCreated   string
	OrdersCancelled string
	TradesSettled   string
}

// JournalConsumer projects exchange events into the postgres journal. The
// engine never reads these rows back; they serve listing and audit queries.
type JournalConsumer struct {
	store   Store
	topics  Topics
	logger  *slog.Logger
	metrics *service.Metrics
}

func NewJournalConsumer(store Store, topics Topics, logger *slog.Logger, metrics *service.Metrics) *JournalConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalConsumer{store: store, topics: topics, logger: logger, metrics: metrics}
}

func (c *JournalConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return kafka.DLQ(fmt.Errorf("empty kafka message"), "empty_message")
	}

	var err error
	switch msg.Topic {
	case c.topics.OrdersCreated:
		err = c.handleOrderCreated(ctx, msg)
	case c.topics.OrdersCancelled:
		err = c.handleOrderCancelled(ctx, msg)
	case c.topics.TradesSettled:
		err = c.handleTradeEvent(ctx, msg)
	default:
		err = kafka.DLQ(fmt.Errorf("unexpected topic %s", msg.Topic), "unknown_topic")
	}

	c.record(msg.Topic, err)
	return err
}

func (c *JournalConsumer) handleOrderCreated(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event service.OrderCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(fmt.Errorf("decode orders.created: %w", err), "decode")
	}
	if err := event.Envelope.Validate(); err != nil {
		return kafka.DLQ(err, "invalid_envelope")
	}

	initiator, err := parseUUID(event.Initiator, "initiator")
	if err != nil {
		return kafka.DLQ(err, "invalid_initiator")
	}
	price, err := parsePrice(event.Price)
	if err != nil {
		return kafka.DLQ(err, "invalid_price")
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return kafka.DLQ(fmt.Errorf("order_id is required"), "invalid_order_id")
	}
	if strings.TrimSpace(event.Asset) == "" {
		return kafka.DLQ(fmt.Errorf("asset_id is required"), "invalid_asset_id")
	}

	record := storage.OrderRecord{
		ID:            event.OrderID,
		Initiator:     initiator,
		AssetID:       event.Asset,
		Price:         price,
		Kind:          event.Kind,
		Status:        event.Status,
		CreatedHeight: int64(event.CreatedHeight),
		ExpiryHeight:  int64(event.ExpiryHeight),
		Conditions:    event.Conditions,
	}
	if err := c.store.UpsertOrder(ctx, record); err != nil {
		return fmt.Errorf("journal order %s: %w", event.OrderID, err)
	}
	return nil
}

func (c *JournalConsumer) handleOrderCancelled(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event service.OrderCancelledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(fmt.Errorf("decode orders.cancelled: %w", err), "decode")
	}
	if err := event.Envelope.Validate(); err != nil {
		return kafka.DLQ(err, "invalid_envelope")
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return kafka.DLQ(fmt.Errorf("order_id is required"), "invalid_order_id")
	}

	err := c.store.UpdateOrderStatus(ctx, event.OrderID, "cancelled")
	if errors.Is(err, storage.ErrNotFound) {
		// The created event may still be in flight; redeliver until it lands.
		return fmt.Errorf("journal cancel %s: order row missing", event.OrderID)
	}
	if err != nil {
		return fmt.Errorf("journal cancel %s: %w", event.OrderID, err)
	}
	return nil
}

func (c *JournalConsumer) handleTradeEvent(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event service.TradeSettledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(fmt.Errorf("decode trades.settled: %w", err), "decode")
	}
	if err := event.Envelope.Validate(); err != nil {
		return kafka.DLQ(err, "invalid_envelope")
	}

	buyer, err := parseUUID(event.Buyer, "buyer")
	if err != nil {
		return kafka.DLQ(err, "invalid_buyer")
	}
	seller, err := parseUUID(event.Seller, "seller")
	if err != nil {
		return kafka.DLQ(err, "invalid_seller")
	}
	price, err := parsePrice(event.Price)
	if err != nil {
		return kafka.DLQ(err, "invalid_price")
	}
	fee, err := parsePrice(event.Fee)
	if err != nil {
		return kafka.DLQ(err, "invalid_fee")
	}
	if strings.TrimSpace(event.TradeID) == "" {
		return kafka.DLQ(fmt.Errorf("trade_id is required"), "invalid_trade_id")
	}

	trade := storage.TradeRecord{
		ID:               event.TradeID,
		OrderID:          event.OrderID,
		Buyer:            buyer,
		Seller:           seller,
		AssetID:          event.Asset,
		Price:            price,
		Fee:              fee,
		Height:           int64(event.Height),
		SettlementStatus: event.SettlementStatus,
	}
	if err := c.store.InsertTrade(ctx, trade); err != nil {
		return fmt.Errorf("journal trade %s: %w", event.TradeID, err)
	}

	// Filled orders never revert, so projecting the status change here keeps
	// the journal consistent without a dedicated event.
	if err := c.store.UpdateOrderStatus(ctx, event.OrderID, "filled"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.Error("journal order fill failed", "order_id", event.OrderID, "error", err)
	}

	if err := c.store.RecordTradePrice(ctx, event.Asset, price, int64(event.Height)); err != nil {
		c.logger.Error("journal trade price failed", "asset_id", event.Asset, "error", err)
	}
	return nil
}

func (c *JournalConsumer) record(topic string, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.JournalEvents.WithLabelValues(topic, status).Inc()
}

func parseUUID(value, field string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", field)
	}
	return parsed, nil
}

func parsePrice(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("price is required")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price must be decimal")
	}
	if parsed.IsNegative() {
		return decimal.Zero, fmt.Errorf("price must be non-negative")
	}
	return parsed, nil
}
