package action

import (
	"context"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

// Notification is what an action receives for one matched probe.
type Notification struct {
	Probe   *probe.Probe
	Event   event.Event
	Subject string
	Body    string
}

// ActionResult holds the outcome of executing a single action.
type ActionResult struct {
	Probe   string `json:"probe"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Executor is the interface all action implementations must satisfy.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute runs the action for a matched probe and returns a result.
	Execute(ctx context.Context, params map[string]any, n *Notification) (*ActionResult, error)
	// Validate checks params when a probe set is loaded.
	Validate(params map[string]any) error
}
