// Package event defines the typed event envelope shared by every producer:
// metadata, the variant contract, the type registry, probe matching and the
// memoised notification rendering.
package event

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MetadataKey is the reserved top-level wire key holding the metadata section.
// Every other top-level key belongs to the payload.
const MetadataKey = "_zentral"

// BaseType is the event type of the generic variant used for unknown types.
const BaseType = "base"

// Event is implemented by every event variant. Variants embed *BaseEvent and
// override EventType; optional behaviour is exposed through the capability
// interfaces (MachineProvider, MachineURLProvider, ExtraContexter, ProbeChecker).
type Event interface {
	EventType() string
	Metadata() *Metadata
	Payload() map[string]any

	base() *BaseEvent
}

// BaseEvent holds the state common to all variants. It is also the generic
// variant itself.
type BaseEvent struct {
	metadata *Metadata
	payload  map[string]any

	// notification cache, filled once per instance
	mu                  sync.Mutex
	notificationContext map[string]any
	notificationSubject *string
	notificationBody    *string
}

// NewBaseEvent creates a generic event.
func NewBaseEvent(md *Metadata, payload map[string]any) *BaseEvent {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &BaseEvent{metadata: md, payload: payload}
}

func (e *BaseEvent) EventType() string       { return BaseType }
func (e *BaseEvent) Metadata() *Metadata     { return e.metadata }
func (e *BaseEvent) Payload() map[string]any { return e.payload }
func (e *BaseEvent) base() *BaseEvent        { return e }

// Key identifies an event. Payload content is not part of it.
type Key struct {
	EventType string
	UUID      uuid.UUID
	Index     int
}

// KeyOf returns the identity of e.
func KeyOf(e Event) Key {
	md := e.Metadata()
	return Key{EventType: e.EventType(), UUID: md.UUID, Index: md.Index}
}

// Equal reports whether a and b are the same event.
func Equal(a, b Event) bool {
	return KeyOf(a) == KeyOf(b)
}

// Constructor builds a variant instance from its parts.
type Constructor func(md *Metadata, payload map[string]any) Event

// Variant describes one event kind.
type Variant struct {
	Type string
	New  Constructor
}

// BaseVariant is the generic variant returned for unknown event types.
var BaseVariant = Variant{
	Type: BaseType,
	New: func(md *Metadata, payload map[string]any) Event {
		return NewBaseEvent(md, payload)
	},
}

// Deserialize rebuilds an event of this variant from its wire form.
func (v Variant) Deserialize(wire map[string]any) (Event, error) {
	section, ok := wire[MetadataKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s section", ErrMalformedEvent, MetadataKey)
	}
	md, err := DeserializeMetadata(section)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(wire))
	for k, val := range wire {
		if k != MetadataKey {
			payload[k] = val
		}
	}
	return v.New(md, payload), nil
}

// Serialize returns the wire form of e: the payload with the metadata
// section under MetadataKey.
func Serialize(e Event) map[string]any {
	payload := e.Payload()
	d := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		d[k] = v
	}
	d[MetadataKey] = e.Metadata().Serialize()
	return d
}

// WireType returns the event type declared in a wire event's metadata section.
func WireType(wire map[string]any) (string, error) {
	section, ok := wire[MetadataKey].(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: missing %s section", ErrMalformedEvent, MetadataKey)
	}
	t, ok := section["type"].(string)
	if !ok || t == "" {
		return "", fmt.Errorf("%w: missing %s.type", ErrMalformedEvent, MetadataKey)
	}
	return t, nil
}
