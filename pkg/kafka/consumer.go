// Package kafka provides the Kafka producer and consumer used to ship
// analytics events, backed by segmentio/kafka-go. Producers serialise events
// as JSON; consumers hand raw messages to a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads analytics events from a Kafka topic and dispatches them to
// a MessageHandler. Offsets are committed only after the handler succeeds.
// Delivered events are counted per message key ("search", "index",
// "session").
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler

	mu        sync.Mutex
	delivered map[string]int64
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r *kafka.Reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:    r,
		logger:    slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler:   handler,
		delivered: make(map[string]int64),
	}
}

// Start enters the consume loop until ctx is cancelled, then closes the
// reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err(), "delivered", c.Delivered())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if !c.handle(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle runs the handler for one message and reports whether its offset may
// be committed. Empty payloads are skipped and committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	key := string(msg.Key)
	if len(msg.Value) == 0 {
		c.logger.Debug("skipping empty event", "key", key, "offset", msg.Offset)
		return true
	}
	c.logger.Debug("event received",
		"key", key,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"value_size", len(msg.Value),
	)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.logger.Error("failed to process event",
			"key", key,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return false
	}
	c.mu.Lock()
	c.delivered[key]++
	c.mu.Unlock()
	return true
}

// Delivered returns how many events per key reached the handler successfully.
func (c *Consumer) Delivered() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.delivered))
	for k, v := range c.delivered {
		out[k] = v
	}
	return out
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
