package event

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/probewire/internal/logtest"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

type snapshot string

func (s snapshot) MachineString() string { return string(s) }

// agentEvent exercises every optional capability.
type agentEvent struct {
	*BaseEvent
}

func (e *agentEvent) EventType() string { return "agent_event" }

func (e *agentEvent) Machine() Machine {
	return Machine{"munki": snapshot("laptop"), "osquery": snapshot("laptop"), "santa": snapshot("laptop-2")}
}

func (e *agentEvent) MachineURL() string {
	return "https://inventory/machines/" + e.Metadata().MachineSerialNumber
}

func (e *agentEvent) ExtraContext() map[string]any {
	return map[string]any{"agent": e.Payload()["agent"]}
}

func (e *agentEvent) ExtraProbeCheck(p *probe.Probe) bool {
	_, blocked := p.Extra["skip_agent_events"]
	return !blocked
}

var agentVariant = Variant{
	Type: "agent_event",
	New: func(md *Metadata, payload map[string]any) Event {
		return &agentEvent{BaseEvent: NewBaseEvent(md, payload)}
	},
}

func newEvent(t *testing.T, v Variant, payload map[string]any, opts ...MetadataOption) Event {
	t.Helper()
	md, err := NewMetadata(v.Type, "SN1", opts...)
	require.NoError(t, err)
	return v.New(md, payload)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(logtest.Discard())
	require.NoError(t, reg.Register(agentVariant))
	require.NoError(t, reg.Register(Variant{Type: "other", New: BaseVariant.New}))

	err := reg.Register(agentVariant)
	require.ErrorIs(t, err, ErrDuplicateEventType)
	assert.Contains(t, err.Error(), "agent_event")

	assert.Equal(t, "agent_event", reg.Resolve("agent_event").Type)
	assert.Equal(t, "other", reg.Resolve("other").Type)
	assert.True(t, reg.Has("other"))
	assert.Equal(t, []string{"agent_event", "other"}, reg.Types())

	assert.ErrorIs(t, reg.Register(Variant{New: BaseVariant.New}), ErrMissingEventType)
	assert.Error(t, reg.Register(Variant{Type: "nil_constructor"}))
	assert.Panics(t, func() { reg.MustRegister(agentVariant) })
}

func TestRegistryResolveUnknown(t *testing.T) {
	rec, logger := logtest.New()
	reg := NewRegistry(logger)

	v := reg.Resolve("nope")
	assert.Equal(t, BaseType, v.Type)
	assert.Equal(t, 1, rec.Count(slog.LevelError))
	assert.Equal(t, "nope", rec.Entries()[0].Attrs["event_type"])
}

func TestSerializeDeserialize(t *testing.T) {
	e := newEvent(t, agentVariant, map[string]any{"status": "ok"}, WithIndex(1))

	wire := Serialize(e)
	assert.Equal(t, "ok", wire["status"])
	require.Contains(t, wire, MetadataKey)

	typ, err := WireType(wire)
	require.NoError(t, err)
	assert.Equal(t, "agent_event", typ)

	back, err := agentVariant.Deserialize(wire)
	require.NoError(t, err)
	assert.IsType(t, &agentEvent{}, back)
	assert.Equal(t, map[string]any{"status": "ok"}, back.Payload())
	assert.True(t, Equal(e, back))
	assert.Equal(t, KeyOf(e), KeyOf(back))
}

func TestDeserializeMalformed(t *testing.T) {
	_, err := BaseVariant.Deserialize(map[string]any{"status": "ok"})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = WireType(map[string]any{MetadataKey: map[string]any{"id": "x"}})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = BaseVariant.Deserialize(map[string]any{MetadataKey: map[string]any{"type": "x"}})
	assert.ErrorIs(t, err, ErrMissingSerialNumber)
}

func TestEqualIgnoresPayload(t *testing.T) {
	id := uuid.New()
	a := newEvent(t, agentVariant, map[string]any{"status": "ok"}, WithUUID(id))
	b := newEvent(t, agentVariant, map[string]any{"status": "failed"}, WithUUID(id))
	c := newEvent(t, agentVariant, map[string]any{"status": "ok"}, WithUUID(id), WithIndex(1))
	d := newEvent(t, Variant{Type: "agent_event", New: BaseVariant.New}, nil, WithUUID(id))

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(a, d), "base variant reports its own type")
}

func TestMatchProbes(t *testing.T) {
	probes := []*probe.Probe{
		probe.MustCompile(probe.Definition{Name: "all"}),
		probe.MustCompile(probe.Definition{
			Name:           "failed",
			PayloadFilters: []map[string]any{{"status": "failed"}},
		}),
		probe.MustCompile(probe.Definition{
			Name:            "prod or agent",
			MetadataFilters: []map[string]any{{"tags": []any{"prod"}}, {"type": "agent_event"}},
			PayloadFilters:  []map[string]any{{"status": "ok"}, {"status": "failed"}},
		}),
		probe.MustCompile(probe.Definition{
			Name:  "skipped",
			Extra: map[string]any{"skip_agent_events": true},
		}),
		probe.MustCompile(probe.Definition{
			Name:            "serial",
			MetadataFilters: []map[string]any{{"machine_serial_number": "SN1", "tags": []any{"prod", "eu"}}},
		}),
	}

	e := newEvent(t, agentVariant, map[string]any{"status": "ok"}, WithTags("eu", "prod"))
	var names []string
	for _, p := range MatchProbes(e, probes) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"all", "prod or agent", "serial"}, names)

	generic := newEvent(t, BaseVariant, map[string]any{"status": "failed"})
	names = names[:0]
	for _, p := range MatchProbes(generic, probes) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"all", "failed", "skipped"}, names)
}

type countingRenderer struct {
	calls map[string]int
	err   error
}

func (r *countingRenderer) Render(eventType, part string, ctx map[string]any) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.calls[part]++
	p := ctx["probe"].(*probe.Probe)
	return fmt.Sprintf("%s %s for %s", eventType, part, p.Name), nil
}

func TestNotifierCachesPerInstance(t *testing.T) {
	r := &countingRenderer{calls: map[string]int{}}
	n := NewNotifier(r, logtest.Discard())
	first := probe.MustCompile(probe.Definition{Name: "first"})
	second := probe.MustCompile(probe.Definition{Name: "second"})

	e := newEvent(t, agentVariant, map[string]any{"agent": "osquery"})
	assert.Equal(t, "agent_event subject for first", n.Subject(e, first))
	assert.Equal(t, "agent_event body for first", n.Body(e, first))
	assert.Equal(t, "agent_event subject for first", n.Subject(e, first))
	assert.Equal(t, "agent_event body for first", n.Body(e, first))

	// a different probe still sees the first rendering
	assert.Equal(t, "agent_event subject for first", n.Subject(e, second))
	assert.Equal(t, "agent_event body for first", n.Body(e, second))
	assert.Same(t, first, n.Context(e, second)["probe"])
	assert.Equal(t, map[string]int{"subject": 1, "body": 1}, r.calls)

	other := newEvent(t, agentVariant, nil)
	assert.Equal(t, "agent_event subject for second", n.Subject(other, second))
	assert.Equal(t, 2, r.calls["subject"])
}

func TestNotifierContext(t *testing.T) {
	n := NewNotifier(nil, logtest.Discard())
	p := probe.MustCompile(probe.Definition{Name: "p"})

	e := newEvent(t, agentVariant, map[string]any{"agent": "santa"})
	ctx := n.Context(e, p)
	assert.Equal(t, e.Metadata().UUID, ctx["event_id"])
	assert.Equal(t, e.Payload(), ctx["payload"])
	assert.Same(t, p, ctx["probe"])
	assert.Equal(t, "SN1", ctx["machine_serial_number"])
	assert.Len(t, ctx["machine"], 3)
	assert.Equal(t, map[string][]string{"laptop": {"munki", "osquery"}, "laptop-2": {"santa"}}, ctx["machine_names"])
	assert.Equal(t, "https://inventory/machines/SN1", ctx["machine_url"])
	assert.Equal(t, "santa", ctx["agent"])

	generic := newEvent(t, BaseVariant, nil)
	ctx = n.Context(generic, p)
	assert.Equal(t, Machine{}, ctx["machine"])
	assert.Equal(t, map[string][]string{}, ctx["machine_names"])
	assert.Contains(t, ctx, "machine_url")
	assert.Nil(t, ctx["machine_url"])
	assert.NotContains(t, ctx, "agent")
}

func TestNotifierMissingTemplate(t *testing.T) {
	rec, logger := logtest.New()
	n := NewNotifier(&countingRenderer{err: fmt.Errorf("subject.txt: %w", ErrTemplateNotFound)}, logger)
	p := probe.MustCompile(probe.Definition{Name: "p"})

	e := newEvent(t, BaseVariant, nil)
	assert.Equal(t, "Missing template event_type: base part: subject", n.Subject(e, p))
	assert.Equal(t, "Missing template event_type: base part: body", n.Body(e, p))
	assert.Equal(t, 2, rec.Count(slog.LevelError))
}

func TestNotifierRenderError(t *testing.T) {
	rec, logger := logtest.New()
	n := NewNotifier(&countingRenderer{err: fmt.Errorf("boom")}, logger)
	p := probe.MustCompile(probe.Definition{Name: "p"})

	e := newEvent(t, BaseVariant, nil)
	assert.Equal(t, "Could not render event_type: base part: body", n.Body(e, p))
	assert.Equal(t, 1, rec.Count(slog.LevelError))
}
