package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

// DefaultStream is the Redis stream used when none is configured.
const DefaultStream = "probewire_events"

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamPoster appends events to a capped Redis stream.
type StreamPoster struct {
	client streamAdder
	closer func() error
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewStreamPoster creates a StreamPoster. maxLen <= 0 leaves the stream
// uncapped.
func NewStreamPoster(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *StreamPoster {
	p := newStreamPoster(client, stream, maxLen, logger)
	p.closer = client.Close
	return p
}

func newStreamPoster(client streamAdder, stream string, maxLen int64, logger *slog.Logger) *StreamPoster {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPoster{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "stream_poster", "stream", stream),
	}
}

func (p *StreamPoster) Post(ctx context.Context, e event.Event) error {
	data, err := Encode(e)
	if err != nil {
		metrics.EventsPosted.WithLabelValues("redis", "error").Inc()
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_type": e.EventType(),
			"event_id":   e.Metadata().UUID.String(),
			"data":       data,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		metrics.EventsPosted.WithLabelValues("redis", "error").Inc()
		p.logger.Error("failed to add event to stream", "event_id", e.Metadata().UUID, "err", err)
		return fmt.Errorf("failed to add event to stream %s: %w", p.stream, err)
	}
	metrics.EventsPosted.WithLabelValues("redis", "ok").Inc()
	return nil
}

func (p *StreamPoster) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
