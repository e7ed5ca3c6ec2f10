package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second
	// Synchronous writes wait for the batch to fill or this timeout to pass.
	batchTimeout = 5 * time.Millisecond
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPoster publishes events to a Kafka topic, keyed by machine serial
// number so that events of one machine stay ordered.
type KafkaPoster struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPoster creates a synchronous, leader-acknowledged Kafka writer.
func NewKafkaPoster(brokers, topic string, logger *slog.Logger) (*KafkaPoster, error) {
	brokerList := ParseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	return newKafkaPoster(newKafkaWriter(brokerList, topic), topic, logger), nil
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

func newKafkaPoster(w messageWriter, topic string, logger *slog.Logger) *KafkaPoster {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka_poster", "topic", topic)
	logger.Info("kafka poster configured")
	return &KafkaPoster{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPoster) Post(ctx context.Context, e event.Event) error {
	value, err := Encode(e)
	if err != nil {
		metrics.EventsPosted.WithLabelValues("kafka", "error").Inc()
		return err
	}
	md := e.Metadata()
	msg := kafka.Message{
		Key:   []byte(md.MachineSerialNumber),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType())},
			{Key: "event_id", Value: []byte(md.UUID.String())},
		},
		Time: md.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPosted.WithLabelValues("kafka", "error").Inc()
		p.logger.Error("failed to write event", "event_id", md.UUID, "err", err)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	metrics.EventsPosted.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (p *KafkaPoster) Close() error {
	p.logger.Info("closing kafka poster")
	return p.writer.Close()
}
