// Package queue hands processed events to the outbound transport. Delivery
// guarantees belong to the backend.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

// DefaultRingSize bounds the memory backend when no max_len is configured.
const DefaultRingSize = 1000

// Poster is the fire-and-forget hand-off to the outbound queue.
type Poster interface {
	Post(ctx context.Context, e event.Event) error
	Close() error
}

// Encode returns the JSON wire form of e.
func Encode(e event.Event) ([]byte, error) {
	data, err := json.Marshal(event.Serialize(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.Metadata().UUID, err)
	}
	return data, nil
}

// Ring keeps the most recent posted events in memory, dropping the oldest
// once full. It backs the default "memory" queue.
type Ring struct {
	mu     sync.Mutex
	buf    []event.Event
	next   int
	full   bool
	logger *slog.Logger
}

// NewRing creates a Ring holding up to size events. size <= 0 selects
// DefaultRingSize.
func NewRing(size int, logger *slog.Logger) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{
		buf:    make([]event.Event, size),
		logger: logger.With("component", "ring_poster", "size", size),
	}
}

func (r *Ring) Post(_ context.Context, e event.Event) error {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	metrics.EventsPosted.WithLabelValues("memory", "ok").Inc()
	r.logger.Debug("event kept", "event_id", e.Metadata().UUID, "event_type", e.EventType())
	return nil
}

// Len returns the number of events held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Events returns the held events, oldest first.
func (r *Ring) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]event.Event(nil), r.buf[:r.next]...)
	}
	out := make([]event.Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

func (r *Ring) Close() error { return nil }

// Memory keeps every posted event in memory without bound. Tests use it to
// inspect what the engine posted.
type Memory struct {
	mu     sync.Mutex
	events []event.Event
}

// NewMemory creates an empty Memory poster.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Post(_ context.Context, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns the posted events, oldest first.
func (m *Memory) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

func (m *Memory) Close() error { return nil }

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
