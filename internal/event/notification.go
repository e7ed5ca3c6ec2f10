package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

// Notification parts.
const (
	PartSubject = "subject"
	PartBody    = "body"
)

// MachineSnapshot is one data source's view of a machine.
type MachineSnapshot interface {
	MachineString() string
}

// Machine maps data source names to their snapshot of the event's machine.
type Machine map[string]MachineSnapshot

// Names groups source names by machine display name. Source names are sorted.
func (m Machine) Names() map[string][]string {
	sources := make([]string, 0, len(m))
	for src := range m {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	names := make(map[string][]string, len(m))
	for _, src := range sources {
		str := m[src].MachineString()
		names[str] = append(names[str], src)
	}
	return names
}

// MachineProvider is implemented by variants that know the originating machine.
type MachineProvider interface {
	Machine() Machine
}

// MachineURLProvider is implemented by variants that can link to the machine.
type MachineURLProvider interface {
	MachineURL() string
}

// ExtraContexter is implemented by variants adding notification context.
type ExtraContexter interface {
	ExtraContext() map[string]any
}

// Renderer renders one notification part. It returns ErrTemplateNotFound
// when no template exists for the event type and part.
type Renderer interface {
	Render(eventType, part string, ctx map[string]any) (string, error)
}

// Notifier builds notification contexts and renders subjects and bodies.
//
// Results are memoised on the event instance, not per probe: once an event
// has been rendered for one probe, later calls with another probe return the
// same context, subject and body.
type Notifier struct {
	renderer Renderer
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. A nil renderer behaves as if every
// template were missing.
func NewNotifier(r Renderer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{renderer: r, logger: logger.With("component", "notifier")}
}

// Context returns the notification context of e.
func (n *Notifier) Context(e Event, p *probe.Probe) map[string]any {
	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()
	return n.context(e, b, p)
}

// Subject returns the rendered notification subject of e.
func (n *Notifier) Subject(e Event, p *probe.Probe) string {
	return n.part(e, p, PartSubject)
}

// Body returns the rendered notification body of e.
func (n *Notifier) Body(e Event, p *probe.Probe) string {
	return n.part(e, p, PartBody)
}

func (n *Notifier) part(e Event, p *probe.Probe, part string) string {
	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := &b.notificationSubject
	if part == PartBody {
		slot = &b.notificationBody
	}
	if *slot == nil {
		s := n.render(e.EventType(), part, n.context(e, b, p))
		*slot = &s
	}
	return **slot
}

// context must be called with b.mu held.
func (n *Notifier) context(e Event, b *BaseEvent, p *probe.Probe) map[string]any {
	if b.notificationContext != nil {
		return b.notificationContext
	}
	md := e.Metadata()
	ctx := map[string]any{
		"event_id":              md.UUID,
		"payload":               e.Payload(),
		"probe":                 p,
		"machine_serial_number": md.MachineSerialNumber,
	}
	machine := Machine{}
	if mp, ok := e.(MachineProvider); ok {
		if m := mp.Machine(); m != nil {
			machine = m
		}
	}
	ctx["machine"] = machine
	ctx["machine_names"] = machine.Names()
	if up, ok := e.(MachineURLProvider); ok {
		ctx["machine_url"] = up.MachineURL()
	} else {
		ctx["machine_url"] = nil
	}
	if ec, ok := e.(ExtraContexter); ok {
		for k, v := range ec.ExtraContext() {
			ctx[k] = v
		}
	}
	b.notificationContext = ctx
	return ctx
}

func (n *Notifier) render(eventType, part string, ctx map[string]any) string {
	if n.renderer == nil {
		return n.missing(eventType, part)
	}
	s, err := n.renderer.Render(eventType, part, ctx)
	switch {
	case err == nil:
		return s
	case errors.Is(err, ErrTemplateNotFound):
		return n.missing(eventType, part)
	default:
		n.logger.Error("notification render failed", "event_type", eventType, "part", part, "err", err)
		return fmt.Sprintf("Could not render event_type: %s part: %s", eventType, part)
	}
}

func (n *Notifier) missing(eventType, part string) string {
	msg := fmt.Sprintf("Missing template event_type: %s part: %s", eventType, part)
	n.logger.Error(msg, "event_type", eventType, "part", part)
	return msg
}
