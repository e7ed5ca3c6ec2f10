// Package santa provides the Santa binary authorization event variant.
package santa

import "github.com/gyaneshwarpardhi/probewire/internal/event"

const EventType = "santa_event"

// Event is an execution decision reported by a Santa agent.
type Event struct {
	*event.BaseEvent
}

func (e *Event) EventType() string { return EventType }

// Decision is the agent verdict, e.g. ALLOW_BINARY or BLOCK_UNKNOWN.
func (e *Event) Decision() string {
	d, _ := e.Payload()["decision"].(string)
	return d
}

func (e *Event) ExtraContext() map[string]any {
	payload := e.Payload()
	return map[string]any{
		"decision":    e.Decision(),
		"file_sha256": payload["file_sha256"],
		"file_name":   payload["file_name"],
		"file_path":   payload["file_path"],
	}
}

// Variants returns the santa variants.
func Variants() []event.Variant {
	return []event.Variant{{
		Type: EventType,
		New: func(md *event.Metadata, payload map[string]any) event.Event {
			return &Event{BaseEvent: event.NewBaseEvent(md, payload)}
		},
	}}
}
