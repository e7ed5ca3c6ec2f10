// Package consumer feeds wire events read from a Kafka topic into the engine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gyaneshwarpardhi/probewire/internal/engine"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
	"github.com/gyaneshwarpardhi/probewire/internal/queue"
)

const (
	readTimeout = 1 * time.Second
	// Fetch errors back off exponentially from minBackoff up to maxBackoff.
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor runs one wire event through the pipeline.
type Processor interface {
	Process(ctx context.Context, wire map[string]any) *engine.EventResult
}

// Consumer reads wire events from Kafka. Offsets are committed once an event
// has been processed, so delivery is at-least-once.
type Consumer struct {
	reader    messageReader
	processor Processor
	topic     string
	logger    *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// New creates a consumer group reader for topic.
func New(brokers, topic, groupID string, p Processor, logger *slog.Logger) (*Consumer, error) {
	brokerList := queue.ParseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}

	// StartOffset only applies when the group has no committed offset yet.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     readTimeout,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, topic, p, logger), nil
}

func newConsumer(r messageReader, topic string, p Processor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:     r,
		processor:  p,
		topic:      topic,
		logger:     logger.With("component", "consumer", "topic", topic),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are committed
// and skipped. Fetch errors are retried with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting event consumer")
	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("event consumer stopped")
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to read message", "retry_in", backoff, "err", err)
			select {
			case <-ctx.Done():
				c.logger.Info("event consumer stopped")
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var wire map[string]any
	if err := json.Unmarshal(msg.Value, &wire); err != nil || wire == nil {
		metrics.EventsRejected.WithLabelValues("decode").Inc()
		c.logger.Warn("skipping undecodable message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"err", err,
		)
		return
	}
	res := c.processor.Process(ctx, wire)
	if res.Error != "" {
		c.logger.Warn("event rejected",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"err", res.Error,
		)
		return
	}
	c.logger.Debug("event consumed",
		"event_id", res.EventID,
		"event_type", res.EventType,
		"probes_matched", len(res.ProbesMatched),
	)
}

// Close releases the reader.
func (c *Consumer) Close() error {
	c.logger.Info("closing event consumer")
	return c.reader.Close()
}
