package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
)

// Built-in middleware references.
const (
	NameMetrics     = "metrics"
	NameRedactor    = "redactor"
	NameMachineTags = "machine_tags"
)

// RedactedPlaceholder replaces redacted payload values.
const RedactedPlaceholder = "[REDACTED]"

// BuiltinOptions carries what the built-in middlewares need.
type BuiltinOptions struct {
	RedactFields []string
	Tags         TagStore
	Logger       *slog.Logger
}

// RegisterBuiltins registers the built-in middlewares on reg.
func RegisterBuiltins(reg *Registry, opts BuiltinOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builtins := map[string]Factory{
		NameMetrics: func() (Middleware, error) {
			return Func(countEvent), nil
		},
		NameRedactor: func() (Middleware, error) {
			return NewRedactor(opts.RedactFields, logger), nil
		},
		NameMachineTags: func() (Middleware, error) {
			if opts.Tags == nil {
				return nil, fmt.Errorf("no tag store configured")
			}
			return NewTagger(opts.Tags), nil
		},
	}
	for _, name := range []string{NameMetrics, NameRedactor, NameMachineTags} {
		if err := reg.Register(name, builtins[name]); err != nil {
			return err
		}
	}
	return nil
}

func countEvent(_ context.Context, e event.Event) error {
	metrics.EventsDispatched.WithLabelValues(e.EventType()).Inc()
	return nil
}

// Redactor replaces the values of sensitive top-level payload fields.
type Redactor struct {
	fields map[string]struct{}
	logger *slog.Logger
}

// NewRedactor creates a Redactor for fields.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &Redactor{fields: set, logger: logger}
}

func (r *Redactor) ProcessEvent(_ context.Context, e event.Event) error {
	payload := e.Payload()
	if len(r.fields) == 0 || len(payload) == 0 {
		return nil
	}
	redacted := 0
	for f := range r.fields {
		if _, ok := payload[f]; ok {
			payload[f] = RedactedPlaceholder
			redacted++
		}
	}
	if redacted > 0 {
		r.logger.Debug("payload fields redacted", "event_id", e.Metadata().UUID, "fields", redacted)
	}
	return nil
}
