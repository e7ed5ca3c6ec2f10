package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
	"github.com/gyaneshwarpardhi/probewire/internal/config"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/metrics"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
	"github.com/gyaneshwarpardhi/probewire/internal/queue"
)

var tracer = otel.Tracer("probewire/engine")

var (
	// ErrQueueFull is returned when the event queue has no room left.
	ErrQueueFull = errors.New("event queue full")
	// ErrTimeout is returned when a synchronous event outlives EventTimeoutMs.
	ErrTimeout = errors.New("event processing timeout")
)

// Dispatcher turns wire events into typed events.
type Dispatcher interface {
	EventFromWire(ctx context.Context, wire map[string]any) (event.Event, error)
}

// EventResult is the outcome of processing a single wire event.
type EventResult struct {
	EventID         string                 `json:"event_id,omitempty"`
	EventType       string                 `json:"event_type,omitempty"`
	Index           int                    `json:"index"`
	DurationMs      int64                  `json:"duration_ms"`
	ProbesMatched   []string               `json:"probes_matched"`
	ActionsExecuted []*action.ActionResult `json:"actions_executed"`
	Error           string                 `json:"error,omitempty"`
}

// Deps are the collaborators of the Engine.
type Deps struct {
	Dispatcher Dispatcher
	Probes     *probe.Set
	Notifier   *event.Notifier
	Poster     queue.Poster
	Actions    *action.Registry
	Logger     *slog.Logger
}

// Engine processes wire events: dispatch, hand-off to the outbound queue,
// probe matching, notification rendering and probe actions.
type Engine struct {
	probes     atomic.Pointer[probe.Set]
	dispatcher Dispatcher
	notifier   *event.Notifier
	poster     queue.Poster
	registry   *action.Registry
	eventPool  *workerPool[*eventWork]
	actionPool *workerPool[*actionWork]
	conf       *config.EngineConf
	logger     *slog.Logger
}

type eventWork struct {
	ctx     context.Context
	wire    map[string]any
	resultC chan *EventResult
}

type actionWork struct {
	ctx     context.Context
	def     probe.ActionDef
	n       *action.Notification
	resultC chan *action.ActionResult
}

// New creates an Engine using conf and starts worker pools.
func New(ctx context.Context, deps Deps, conf config.EngineConf) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		poster:     deps.Poster,
		registry:   deps.Actions,
		conf:       &conf,
		logger:     logger.With("component", "engine"),
	}
	e.SwapProbes(deps.Probes)

	// Start action pool first so event workers can submit to it.
	e.actionPool = newWorkerPool(ctx, "actions", conf.ActionWorkers, conf.ActionWorkers*10, e.logger,
		func(ctx context.Context, w *actionWork) {
			w.resultC <- e.runAction(w.ctx, w.def, w.n)
		},
	)

	e.eventPool = newWorkerPool(ctx, "events", conf.EventWorkers, conf.QueueDepth, e.logger,
		func(ctx context.Context, w *eventWork) {
			wctx := ctx
			if w.ctx != nil {
				wctx = w.ctx
			}
			res := e.processEvent(wctx, w.wire)
			if w.resultC != nil {
				w.resultC <- res
			}
		},
	)

	return e
}

// SwapProbes atomically replaces the probe set (used on hot-reload).
func (e *Engine) SwapProbes(set *probe.Set) {
	if set == nil {
		set, _ = probe.NewSet()
	}
	e.probes.Store(set)
	metrics.ProbesLoaded.Set(float64(set.Len()))
}

// Probes returns the current probe set.
func (e *Engine) Probes() *probe.Set {
	return e.probes.Load()
}

// ProcessSync processes a wire event synchronously and returns the result.
// Returns ErrQueueFull or ErrTimeout when the event could not be handled in time.
func (e *Engine) ProcessSync(ctx context.Context, wire map[string]any) (*EventResult, error) {
	resultC := make(chan *EventResult, 1)
	// Processing must not be cut short when the caller gives up waiting.
	w := &eventWork{ctx: context.WithoutCancel(ctx), wire: wire, resultC: resultC}

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	if !e.eventPool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.EventsEnqueued.Inc()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues a wire event for background processing. Returns false if the queue is full.
func (e *Engine) ProcessAsync(wire map[string]any) bool {
	if !e.eventPool.Submit(&eventWork{wire: wire}) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.eventPool.QueueCap() == 0 {
		return 0
	}
	u := float64(e.eventPool.QueueLen()) / float64(e.eventPool.QueueCap())
	metrics.QueueUtilization.Set(u)
	return u
}

// Process runs the whole pipeline for one wire event on the calling goroutine.
func (e *Engine) Process(ctx context.Context, wire map[string]any) *EventResult {
	return e.processEvent(ctx, wire)
}

func (e *Engine) processEvent(ctx context.Context, wire map[string]any) *EventResult {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine.process_event", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result := &EventResult{
		ProbesMatched:   []string{},
		ActionsExecuted: []*action.ActionResult{},
	}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
		metrics.EventProcessingDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ev, err := e.dispatcher.EventFromWire(ctx, wire)
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("event rejected", "err", err)
		return result
	}
	md := ev.Metadata()
	result.EventID = md.UUID.String()
	result.EventType = ev.EventType()
	result.Index = md.Index
	span.SetAttributes(
		attribute.String("event.type", ev.EventType()),
		attribute.String("event.id", result.EventID),
		attribute.Int("event.index", md.Index),
	)

	if e.poster != nil {
		if err := e.poster.Post(ctx, ev); err != nil {
			span.AddEvent("post failed", trace.WithAttributes(attribute.String("error", err.Error())))
			e.logger.Error("failed to post event", "event_id", md.UUID, "err", err)
		}
	}

	matched := event.MatchProbes(ev, e.probes.Load().All())
	for _, p := range matched {
		result.ProbesMatched = append(result.ProbesMatched, p.Name)
		metrics.ProbesMatched.WithLabelValues(p.Name).Inc()
		if len(p.Actions) == 0 {
			continue
		}
		n := &action.Notification{
			Probe:   p,
			Event:   ev,
			Subject: e.notifier.Subject(ev, p),
			Body:    e.notifier.Body(ev, p),
		}
		result.ActionsExecuted = append(result.ActionsExecuted, e.runActions(ctx, p.Actions, n)...)
	}
	span.SetAttributes(attribute.Int("probes.matched", len(matched)))
	return result
}

// runActions fans the probe's actions out to the action pool and collects
// the results in declaration order. Actions that do not fit in the pool run
// inline.
func (e *Engine) runActions(ctx context.Context, defs []probe.ActionDef, n *action.Notification) []*action.ActionResult {
	pending := make([]chan *action.ActionResult, len(defs))
	for i, def := range defs {
		resultC := make(chan *action.ActionResult, 1)
		pending[i] = resultC
		if !e.actionPool.Submit(&actionWork{ctx: ctx, def: def, n: n, resultC: resultC}) {
			resultC <- e.runAction(ctx, def, n)
		}
	}
	results := make([]*action.ActionResult, 0, len(defs))
	for _, c := range pending {
		results = append(results, <-c)
	}
	return results
}

func (e *Engine) runAction(ctx context.Context, def probe.ActionDef, n *action.Notification) (res *action.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked", "action_type", def.Type, "probe", n.Probe.Name, "panic", r)
			metrics.ActionsExecuted.WithLabelValues(def.Type, "error").Inc()
			res = failed(def, n, fmt.Sprintf("panic: %v", r))
		}
	}()

	exec, err := e.registry.Resolve(def)
	if err != nil {
		metrics.ActionsExecuted.WithLabelValues(def.Type, "error").Inc()
		return failed(def, n, err.Error())
	}
	res, err = exec.Execute(ctx, def.Params, n)
	if err != nil {
		metrics.ActionsExecuted.WithLabelValues(def.Type, "error").Inc()
		e.logger.Warn("action failed", "action_type", def.Type, "probe", n.Probe.Name, "err", err)
		if res == nil {
			res = failed(def, n, err.Error())
		}
		return res
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	metrics.ActionsExecuted.WithLabelValues(def.Type, status).Inc()
	return res
}

func failed(def probe.ActionDef, n *action.Notification, msg string) *action.ActionResult {
	return &action.ActionResult{
		Probe:   n.Probe.Name,
		Type:    def.Type,
		Success: false,
		Message: msg,
	}
}

// Shutdown drains both pools gracefully.
func (e *Engine) Shutdown() {
	e.eventPool.Drain()
	e.actionPool.Drain()
}
