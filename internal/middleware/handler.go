package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

type namedMiddleware struct {
	name string
	mw   Middleware
}

// Handler applies the configured middlewares to events. The chain is built
// once, on first use; a failed build is returned by every later call.
type Handler struct {
	registry *Registry
	refs     []string
	logger   *slog.Logger

	once    sync.Once
	chain   []namedMiddleware
	initErr error
}

// NewHandler creates a Handler for the ordered middleware references refs.
// Nothing is resolved until the first event.
func NewHandler(reg *Registry, refs []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: reg,
		refs:     append([]string(nil), refs...),
		logger:   logger.With("component", "middleware"),
	}
}

// Init builds the chain if that has not happened yet.
func (h *Handler) Init() error {
	h.once.Do(h.build)
	return h.initErr
}

func (h *Handler) build() {
	chain := make([]namedMiddleware, 0, len(h.refs))
	for _, ref := range h.refs {
		f, err := h.registry.Resolve(ref)
		if err != nil {
			h.initErr = err
			return
		}
		mw, err := f()
		if err != nil {
			h.initErr = fmt.Errorf("middleware %q: %w", ref, err)
			return
		}
		chain = append(chain, namedMiddleware{name: ref, mw: mw})
	}
	h.chain = chain
	h.logger.Info("middlewares initialised", "middlewares", h.refs)
}

// Apply runs every middleware on e, in order. A failing middleware is logged
// and the next one still runs.
func (h *Handler) Apply(ctx context.Context, e event.Event) error {
	if err := h.Init(); err != nil {
		return err
	}
	for _, m := range h.chain {
		if err := m.mw.ProcessEvent(ctx, e); err != nil {
			metrics.MiddlewareErrors.WithLabelValues(m.name).Inc()
			h.logger.Warn("middleware failed",
				"middleware", m.name,
				"event_type", e.EventType(),
				"event_id", e.Metadata().UUID,
				"err", err,
			)
		}
	}
	return nil
}

// Names returns the configured references.
func (h *Handler) Names() []string {
	return append([]string(nil), h.refs...)
}
