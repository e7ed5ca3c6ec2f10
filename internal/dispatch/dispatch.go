// Package dispatch is the single ingestion entrypoint: wire object in, typed
// and processed event out.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

// Applier runs the middleware chain on an event.
type Applier interface {
	Apply(ctx context.Context, e event.Event) error
}

// Dispatcher turns decoded wire events into typed events.
type Dispatcher struct {
	registry    *event.Registry
	middlewares Applier
	logger      *slog.Logger
}

// New creates a Dispatcher. middlewares may be nil.
func New(reg *event.Registry, middlewares Applier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    reg,
		middlewares: middlewares,
		logger:      logger.With("component", "dispatcher"),
	}
}

// EventFromWire resolves the variant named in the wire metadata section,
// rebuilds the event and runs it through the middlewares. Unknown types
// yield a generic event. Malformed metadata and middleware initialisation
// failures are returned to the caller.
func (d *Dispatcher) EventFromWire(ctx context.Context, wire map[string]any) (event.Event, error) {
	eventType, err := event.WireType(wire)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return nil, err
	}
	if !d.registry.Has(eventType) {
		metrics.UnknownEventTypes.WithLabelValues(eventType).Inc()
	}
	e, err := d.registry.Resolve(eventType).Deserialize(wire)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("metadata").Inc()
		return nil, fmt.Errorf("deserialize %s: %w", eventType, err)
	}
	if d.middlewares != nil {
		if err := d.middlewares.Apply(ctx, e); err != nil {
			metrics.EventsRejected.WithLabelValues("middleware").Inc()
			return nil, err
		}
	}
	d.logger.Debug("event dispatched",
		"event_type", e.EventType(),
		"event_id", e.Metadata().UUID,
		"machine_serial_number", e.Metadata().MachineSerialNumber,
	)
	return e, nil
}
