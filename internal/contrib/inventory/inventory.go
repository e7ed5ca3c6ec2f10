// Package inventory provides the machine inventory event variant.
package inventory

import (
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

const EventType = "inventory_machine_update"

// Snapshot is one source's inventory record of a machine.
type Snapshot map[string]any

// MachineString returns the computer name, the hostname or the serial
// number, whichever is set first.
func (s Snapshot) MachineString() string {
	for _, key := range []string{"computer_name", "hostname", "serial_number"} {
		if v, ok := s[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// MachineUpdateEvent reports a change to a machine's inventory.
type MachineUpdateEvent struct {
	*event.BaseEvent
	baseURL string
}

func (e *MachineUpdateEvent) EventType() string { return EventType }

// Machine returns the snapshots found under machine_snapshots, keyed by
// source name. Snapshots without a usable name fall back to the serial number.
func (e *MachineUpdateEvent) Machine() event.Machine {
	raw, _ := e.Payload()["machine_snapshots"].(map[string]any)
	m := make(event.Machine, len(raw))
	for src, v := range raw {
		snap, ok := v.(map[string]any)
		if !ok {
			continue
		}
		s := Snapshot(snap)
		if s.MachineString() == "" {
			s = Snapshot{"serial_number": e.Metadata().MachineSerialNumber}
		}
		m[src] = s
	}
	return m
}

func (e *MachineUpdateEvent) MachineURL() string {
	return strings.TrimRight(e.baseURL, "/") + "/inventory/machines/" + url.PathEscape(e.Metadata().MachineSerialNumber) + "/"
}

// Variant returns the inventory variant. Machine links are built on baseURL;
// an empty baseURL yields site-relative links.
func Variant(baseURL string) event.Variant {
	return event.Variant{
		Type: EventType,
		New: func(md *event.Metadata, payload map[string]any) event.Event {
			return &MachineUpdateEvent{BaseEvent: event.NewBaseEvent(md, payload), baseURL: baseURL}
		},
	}
}
