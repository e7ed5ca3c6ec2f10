package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry maps event types to their variants.
// It is filled at startup and read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		variants: make(map[string]Variant),
		logger:   logger.With("component", "event_registry"),
	}
}

// Register adds a variant. Registering the same event type twice is a
// configuration error.
func (r *Registry) Register(v Variant) error {
	if v.Type == "" {
		return ErrMissingEventType
	}
	if v.New == nil {
		return fmt.Errorf("event type %q: nil constructor", v.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.variants[v.Type]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateEventType, v.Type)
	}
	r.variants[v.Type] = v
	r.logger.Debug("event type registered", "event_type", v.Type)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(v Variant) {
	if err := r.Register(v); err != nil {
		panic(fmt.Sprintf("event registry: %v", err))
	}
}

// Resolve returns the variant registered for eventType. Unknown types resolve
// to BaseVariant and are logged at error level.
func (r *Registry) Resolve(eventType string) Variant {
	r.mu.RLock()
	v, ok := r.variants[eventType]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("unknown event type", "event_type", eventType)
		return BaseVariant
	}
	return v
}

// Has reports whether eventType is registered.
func (r *Registry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.variants[eventType]
	return ok
}

// Types returns the registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.variants))
	for t := range r.variants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
