// Package osquery provides the osquery event variants.
package osquery

import (
	"slices"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

const (
	ResultType     = "osquery_result"
	EnrollmentType = "osquery_enrollment"

	// QueryNamesKey is the probe attribute restricting a probe to results of
	// the listed queries.
	QueryNamesKey = "osquery_query_names"
)

// ResultEvent is a scheduled query result reported by an osquery agent.
type ResultEvent struct {
	*event.BaseEvent
}

func (e *ResultEvent) EventType() string { return ResultType }

// QueryName is the name of the query that produced the result.
func (e *ResultEvent) QueryName() string {
	name, _ := e.Payload()["name"].(string)
	return name
}

// ExtraProbeCheck rejects probes that list query names not including the
// result's query.
func (e *ResultEvent) ExtraProbeCheck(p *probe.Probe) bool {
	names, ok := p.ExtraStrings(QueryNamesKey)
	if !ok {
		return true
	}
	return slices.Contains(names, e.QueryName())
}

func (e *ResultEvent) ExtraContext() map[string]any {
	payload := e.Payload()
	return map[string]any{
		"query_name": e.QueryName(),
		"action":     payload["action"],
		"columns":    payload["columns"],
	}
}

// EnrollmentEvent records an osquery agent enrollment.
type EnrollmentEvent struct {
	*event.BaseEvent
}

func (e *EnrollmentEvent) EventType() string { return EnrollmentType }

func (e *EnrollmentEvent) ExtraContext() map[string]any {
	payload := e.Payload()
	return map[string]any{
		"action":          payload["action"],
		"host_identifier": payload["host_identifier"],
	}
}

// Variants returns the osquery variants.
func Variants() []event.Variant {
	return []event.Variant{
		{
			Type: ResultType,
			New: func(md *event.Metadata, payload map[string]any) event.Event {
				return &ResultEvent{BaseEvent: event.NewBaseEvent(md, payload)}
			},
		},
		{
			Type: EnrollmentType,
			New: func(md *event.Metadata, payload map[string]any) event.Event {
				return &EnrollmentEvent{BaseEvent: event.NewBaseEvent(md, payload)}
			},
		},
	}
}
