package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
	"github.com/gyaneshwarpardhi/probewire/internal/config"
	"github.com/gyaneshwarpardhi/probewire/internal/dispatch"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/logtest"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
	"github.com/gyaneshwarpardhi/probewire/internal/queue"
)

type recordingExecutor struct {
	typ string
	err error

	mu    sync.Mutex
	calls []*action.Notification
}

func (r *recordingExecutor) Type() string                  { return r.typ }
func (r *recordingExecutor) Validate(map[string]any) error { return nil }

func (r *recordingExecutor) Execute(_ context.Context, _ map[string]any, n *action.Notification) (*action.ActionResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &action.ActionResult{Probe: n.Probe.Name, Type: r.typ, Success: true}, nil
}

type staticRenderer struct{}

func (staticRenderer) Render(eventType, part string, ctx map[string]any) (string, error) {
	return eventType + " " + part + " " + ctx["probe"].(*probe.Probe).Name, nil
}

func newTestEngine(t *testing.T, probes *probe.Set, execs ...action.Executor) (*Engine, *queue.Memory) {
	t.Helper()
	reg := action.NewRegistry()
	for _, x := range execs {
		reg.Register(x)
	}
	poster := queue.NewMemory()
	e := New(context.Background(), Deps{
		Dispatcher: dispatch.New(event.NewRegistry(logtest.Discard()), nil, logtest.Discard()),
		Probes:     probes,
		Notifier:   event.NewNotifier(staticRenderer{}, logtest.Discard()),
		Poster:     poster,
		Actions:    reg,
		Logger:     logtest.Discard(),
	}, config.EngineConf{EventWorkers: 2, ActionWorkers: 2, QueueDepth: 10, EventTimeoutMs: 2000})
	t.Cleanup(e.Shutdown)
	return e, poster
}

func wire(status string) map[string]any {
	return map[string]any{
		event.MetadataKey: map[string]any{"type": "santa_event", "machine_serial_number": "SN1"},
		"status":          status,
	}
}

func mustSet(t *testing.T, defs ...probe.Definition) *probe.Set {
	t.Helper()
	set, err := probe.CompileSet(defs)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestProcessSync(t *testing.T) {
	logExec := &recordingExecutor{typ: "log"}
	hookExec := &recordingExecutor{typ: "webhook", err: errors.New("endpoint down")}
	set := mustSet(t,
		probe.Definition{Name: "failures", PayloadFilters: []map[string]any{{"status": "failed"}}, Actions: []probe.ActionDef{{Type: "log"}, {Type: "webhook"}}},
		probe.Definition{Name: "everything", Actions: []probe.ActionDef{{Type: "log"}}},
		probe.Definition{Name: "silent"},
		probe.Definition{Name: "ok-only", PayloadFilters: []map[string]any{{"status": "ok"}}, Actions: []probe.ActionDef{{Type: "log"}}},
	)
	e, poster := newTestEngine(t, set, logExec, hookExec)

	res, err := e.ProcessSync(context.Background(), wire("failed"))
	if err != nil {
		t.Fatalf("ProcessSync: %v", err)
	}
	if res.Error != "" || res.EventType != event.BaseType || res.EventID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []string{"failures", "everything", "silent"}
	if len(res.ProbesMatched) != len(want) {
		t.Fatalf("probes matched = %v, want %v", res.ProbesMatched, want)
	}
	for i := range want {
		if res.ProbesMatched[i] != want[i] {
			t.Errorf("probes matched = %v, want %v", res.ProbesMatched, want)
		}
	}

	if len(res.ActionsExecuted) != 3 {
		t.Fatalf("expected 3 action results, got %d", len(res.ActionsExecuted))
	}
	if r := res.ActionsExecuted[1]; r.Type != "webhook" || r.Success || r.Message != "endpoint down" {
		t.Errorf("unexpected webhook result %+v", r)
	}
	if len(poster.Events()) != 1 {
		t.Errorf("expected the event to be posted once, got %d", len(poster.Events()))
	}

	// notifications are rendered once per event, for the first matching probe
	for _, n := range logExec.calls {
		if n.Subject != "base subject failures" {
			t.Errorf("subject = %q", n.Subject)
		}
	}
}

func TestProcessSyncMalformed(t *testing.T) {
	e, poster := newTestEngine(t, nil)
	res, err := e.ProcessSync(context.Background(), map[string]any{"status": "ok"})
	if err != nil {
		t.Fatalf("ProcessSync: %v", err)
	}
	if res.Error == "" {
		t.Error("expected error in result")
	}
	if len(poster.Events()) != 0 {
		t.Error("malformed events must not be posted")
	}
}

func TestUnknownActionType(t *testing.T) {
	set := mustSet(t, probe.Definition{Name: "p", Actions: []probe.ActionDef{{Type: "email"}}})
	e, _ := newTestEngine(t, set)

	res := e.Process(context.Background(), wire("ok"))
	if len(res.ActionsExecuted) != 1 || res.ActionsExecuted[0].Success {
		t.Fatalf("unexpected actions %+v", res.ActionsExecuted)
	}
}

func TestSwapProbes(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if res := e.Process(context.Background(), wire("ok")); len(res.ProbesMatched) != 0 {
		t.Fatalf("no probes loaded, matched %v", res.ProbesMatched)
	}
	e.SwapProbes(mustSet(t, probe.Definition{Name: "new"}))
	if res := e.Process(context.Background(), wire("ok")); len(res.ProbesMatched) != 1 {
		t.Fatalf("expected the swapped probe to match, got %v", res.ProbesMatched)
	}
	if e.Probes().Len() != 1 {
		t.Errorf("Probes().Len() = %d", e.Probes().Len())
	}
}

func TestProcessAsync(t *testing.T) {
	e, poster := newTestEngine(t, nil)
	for i := 0; i < 3; i++ {
		if !e.ProcessAsync(wire("ok")) {
			t.Fatal("queue unexpectedly full")
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(poster.Events()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d events processed", len(poster.Events()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if u := e.QueueUtilization(); u < 0 || u > 1 {
		t.Errorf("utilization out of range: %v", u)
	}
}

func TestWorkerPoolSubmitAfterDrain(t *testing.T) {
	p := newWorkerPool(context.Background(), "test", 1, 1, logtest.Discard(), func(context.Context, int) {})
	p.Drain()
	if p.Submit(1) {
		t.Error("Submit must fail on a drained pool")
	}
	p.Drain()
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	done := make(chan int, 2)
	p := newWorkerPool(context.Background(), "test", 1, 2, logtest.Discard(), func(_ context.Context, n int) {
		if n == 0 {
			panic("boom")
		}
		done <- n
	})
	defer p.Drain()
	p.Submit(0)
	p.Submit(1)
	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

type stalledDispatcher struct{ release chan struct{} }

func (d stalledDispatcher) EventFromWire(context.Context, map[string]any) (event.Event, error) {
	<-d.release
	return nil, errors.New("released")
}

func TestProcessSyncSentinelErrors(t *testing.T) {
	d := stalledDispatcher{release: make(chan struct{})}
	e := New(context.Background(), Deps{
		Dispatcher: d,
		Actions:    action.NewRegistry(),
		Logger:     logtest.Discard(),
	}, config.EngineConf{EventWorkers: 1, ActionWorkers: 1, QueueDepth: 1, EventTimeoutMs: 50})
	t.Cleanup(e.Shutdown)
	t.Cleanup(func() { close(d.release) })

	// the only worker is now stuck on this event
	if _, err := e.ProcessSync(context.Background(), wire("ok")); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// fill the single queue slot, then overflow it
	if !e.ProcessAsync(wire("ok")) {
		t.Fatal("expected the queue to accept one event")
	}
	if _, err := e.ProcessSync(context.Background(), wire("ok")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
