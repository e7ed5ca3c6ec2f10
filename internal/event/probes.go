package event

import "github.com/gyaneshwarpardhi/probewire/internal/probe"

// ProbeChecker is implemented by variants with eligibility rules beyond the
// declarative filters.
type ProbeChecker interface {
	ExtraProbeCheck(p *probe.Probe) bool
}

// MatchProbes returns the probes interested in e, in the order of probes.
// A probe matches when the variant's extra check passes, its metadata filters
// match the serialized metadata and its payload filters match the payload.
func MatchProbes(e Event, probes []*probe.Probe) []*probe.Probe {
	var matched []*probe.Probe
	metadata := e.Metadata().Serialize()
	checker, hasChecker := e.(ProbeChecker)
	for _, p := range probes {
		if hasChecker && !checker.ExtraProbeCheck(p) {
			continue
		}
		if !probe.CheckFilters(p.MetadataFilters, metadata) {
			continue
		}
		if probe.CheckFilters(p.PayloadFilters, e.Payload()) {
			matched = append(matched, p)
		}
	}
	return matched
}
