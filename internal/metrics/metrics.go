package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "probewire_events_enqueued_total",
		Help: "Total number of wire events placed on the processing queue.",
	})

	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_events_dispatched_total",
		Help: "Total number of events deserialized and run through the middlewares, labelled by event type.",
	}, []string{"event_type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_events_rejected_total",
		Help: "Total number of wire events that could not be processed, labelled by reason.",
	}, []string{"reason"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "probewire_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	UnknownEventTypes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_unknown_event_types_total",
		Help: "Total number of wire events whose type is not registered.",
	}, []string{"event_type"})

	EventsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_events_posted_total",
		Help: "Total number of events handed to the outbound queue, labelled by backend and status.",
	}, []string{"backend", "status"})

	ProbesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_probes_matched_total",
		Help: "Total number of probe matches, labelled by probe name.",
	}, []string{"probe"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	MiddlewareErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probewire_middleware_errors_total",
		Help: "Total number of middleware failures, labelled by middleware name.",
	}, []string{"middleware"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "probewire_event_processing_duration_ms",
		Help:    "End-to-end event processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "probewire_queue_utilization_ratio",
		Help: "Current event queue utilization (0–1).",
	})

	ProbesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "probewire_probes_loaded",
		Help: "Number of probes in the current probe set.",
	})
)
