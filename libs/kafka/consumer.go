package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"log/slog"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group        sarama.ConsumerGroup
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	maxAttempts  int
	retryTTL     time.Duration
}

func NewConsumer(brokers []string, groupID string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &Consumer{
		group:       group,
		logger:      logger,
		maxAttempts: 3,
		retryTTL:    10 * time.Minute,
	}, nil
}

// WithDLQ routes messages that keep failing with a DLQError to the given
// dead-letter topic after maxAttempts deliveries.
func (c *Consumer) WithDLQ(publisher Publisher, topic string, maxAttempts int) *Consumer {
	c.dlqPublisher = publisher
	c.dlqTopic = topic
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
	return c
}

// Consume runs the consumer group loop until ctx is cancelled. A handler error
// stops the claim with the failed message unmarked, so the partition is
// redelivered from the last committed offset, unless the error is a DLQError
// that has exhausted its attempts.
func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}

	cgHandler := &consumerGroupHandler{
		handler:      handler,
		logger:       c.logger,
		dlqPublisher: c.dlqPublisher,
		dlqTopic:     c.dlqTopic,
		retryTracker: newRetryTracker(c.maxAttempts, c.retryTTL),
	}

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			c.logger.Error("kafka consume error", "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(2 * time.Second)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler      MessageHandler
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	retryTracker *retryTracker
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		err := h.handler.HandleMessage(session.Context(), msg)
		if err == nil {
			session.MarkMessage(msg, "")
			continue
		}

		h.logger.Error("kafka message handler error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)

		var dlqErr *DLQError
		if errors.As(err, &dlqErr) && h.dlqPublisher != nil && h.dlqTopic != "" {
			attempts := h.retryTracker.attempt(msg)
			if attempts >= h.retryTracker.maxAttempts {
				payload := BuildDLQPayload(msg, dlqErr, attempts)
				if _, _, pubErr := h.dlqPublisher.PublishJSON(session.Context(), h.dlqTopic, string(msg.Key), payload); pubErr != nil {
					h.logger.Error("kafka dlq publish failed", "topic", h.dlqTopic, "error", pubErr)
					return fmt.Errorf("publish dead letter for %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, pubErr)
				}
				h.retryTracker.forget(msg)
				session.MarkMessage(msg, "")
				continue
			}
		}

		// Stop the claim here. Marking any later offset would commit past the
		// failed message and the group would never redeliver it.
		return fmt.Errorf("handle %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}

type retryTracker struct {
	mu          sync.Mutex
	maxAttempts int
	ttl         time.Duration
	entries     map[string]retryEntry
}

type retryEntry struct {
	attempts int
	seen     time.Time
}

func newRetryTracker(maxAttempts int, ttl time.Duration) *retryTracker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &retryTracker{
		maxAttempts: maxAttempts,
		ttl:         ttl,
		entries:     make(map[string]retryEntry),
	}
}

func (t *retryTracker) attempt(msg *sarama.ConsumerMessage) int {
	key := retryKey(msg)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, e := range t.entries {
		if t.ttl > 0 && now.Sub(e.seen) > t.ttl {
			delete(t.entries, k)
		}
	}

	entry := t.entries[key]
	entry.attempts++
	entry.seen = now
	t.entries[key] = entry
	return entry.attempts
}

func (t *retryTracker) forget(msg *sarama.ConsumerMessage) {
	t.mu.Lock()
	delete(t.entries, retryKey(msg))
	t.mu.Unlock()
}

func retryKey(msg *sarama.ConsumerMessage) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
