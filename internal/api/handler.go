package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/probewire/internal/engine"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// Deps are the collaborators of the HTTP handler.
type Deps struct {
	Engine *engine.Engine
	Probes *probe.Store
	Events *event.Registry
	// Limiter guards ingestion; nil disables rate limiting.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/probes", h.listProbes)
	h.mux.HandleFunc("POST /v1/probes/reload", h.reloadProbes)
	h.mux.HandleFunc("GET /v1/event-types", h.listEventTypes)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(deps.Logger, h.mux)
}

func (h *Handler) allow(n int) bool {
	return h.deps.Limiter == nil || h.deps.Limiter.AllowN(time.Now(), n)
}

// POST /v1/events: synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	if !h.allow(1) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var wire map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if wire == nil {
		writeError(w, http.StatusBadRequest, "event must be a JSON object")
		return
	}
	attachRequest(wire, r)

	res, err := h.deps.Engine.ProcessSync(r.Context(), wire)
	if err != nil {
		writeError(w, syncErrorStatus(err), err.Error())
		return
	}
	if res.Error != "" {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// syncErrorStatus maps a ProcessSync failure to a response code. The event
// may still be processed after a timeout, so it is not reported as a client error.
func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// POST /v1/events/batch: async batch ingestion (up to 100 events).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchSize*maxBodyBytes)).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(batch) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(batch), maxBatchSize))
		return
	}
	if !h.allow(len(batch)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	jobID := uuid.New().String()
	queued := 0
	for _, wire := range batch {
		if wire == nil {
			continue
		}
		attachRequest(wire, r)
		if h.deps.Engine.ProcessAsync(wire) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   jobID,
		"total":    len(batch),
		"queued":   queued,
		"rejected": len(batch) - queued,
	})
}

// GET /v1/probes: list loaded probes.
func (h *Handler) listProbes(w http.ResponseWriter, r *http.Request) {
	set := h.deps.Engine.Probes()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  set.Len(),
		"probes": set.Definitions(),
	})
}

// POST /v1/probes/reload: reload probes from their source.
func (h *Handler) reloadProbes(w http.ResponseWriter, r *http.Request) {
	if h.deps.Probes == nil {
		writeError(w, http.StatusNotImplemented, "no probe source configured")
		return
	}
	set, err := h.deps.Probes.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":     true,
		"probes_count": set.Len(),
	})
}

// GET /v1/event-types: registered event types.
func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	types := []string{}
	if h.deps.Events != nil {
		types = h.deps.Events.Types()
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_types": types})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if event queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.deps.Engine.QueueUtilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// attachRequest records the submitting client in the metadata section
// unless the producer already did.
func attachRequest(wire map[string]any, r *http.Request) {
	section, ok := wire[event.MetadataKey].(map[string]any)
	if !ok {
		return
	}
	if _, present := section["request"]; present {
		return
	}
	section["request"] = event.NewRequest(r.UserAgent(), clientIP(r)).Serialize()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Real-IP"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
