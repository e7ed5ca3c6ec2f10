// Package middleware runs side-effecting processors on every freshly
// deserialized event, in the configured order.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

// ErrUnknownMiddleware is returned when a configured reference has no factory.
var ErrUnknownMiddleware = errors.New("unknown middleware")

// Middleware processes an event in place. It may enrich the payload or the
// tags but must not change the event identity.
type Middleware interface {
	ProcessEvent(ctx context.Context, e event.Event) error
}

// Func adapts a function to Middleware.
type Func func(ctx context.Context, e event.Event) error

func (f Func) ProcessEvent(ctx context.Context, e event.Event) error { return f(ctx, e) }

// Factory instantiates a middleware.
type Factory func() (Middleware, error)

// Registry maps middleware references to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("middleware: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("middleware %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Resolve returns the factory registered under name.
func (r *Registry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMiddleware, name)
	}
	return f, nil
}

// Names returns the registered references, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
