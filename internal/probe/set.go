package probe

import (
	"fmt"
	"strings"
)

// Set is an ordered, immutable collection of probes with unique names.
// Reloads build a new Set.
type Set struct {
	probes []*Probe
	byName map[string]*Probe
}

// NewSet creates a Set keeping the given order.
func NewSet(probes ...*Probe) (*Set, error) {
	s := &Set{
		probes: make([]*Probe, 0, len(probes)),
		byName: make(map[string]*Probe, len(probes)),
	}
	for _, p := range probes {
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate probe name %q", p.Name)
		}
		s.byName[p.Name] = p
		s.probes = append(s.probes, p)
	}
	return s, nil
}

// CompileSet compiles definitions into a Set, skipping disabled ones. All
// problems are reported together.
func CompileSet(defs []Definition) (*Set, error) {
	var errs []string
	probes := make([]*Probe, 0, len(defs))
	seen := make(map[string]int, len(defs))
	for i, def := range defs {
		if !def.IsEnabled() {
			continue
		}
		p, err := Compile(def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("probes[%d]: %s", i, err))
			continue
		}
		if prev, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate probe name %q (probes[%d] and probes[%d])", p.Name, prev, i))
			continue
		}
		seen[p.Name] = i
		probes = append(probes, p)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("probe validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return NewSet(probes...)
}

// All returns the probes in definition order. The slice must not be modified.
func (s *Set) All() []*Probe {
	if s == nil {
		return nil
	}
	return s.probes
}

// Get returns a probe by name.
func (s *Set) Get(name string) (*Probe, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.byName[name]
	return p, ok
}

// Len returns the number of probes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.probes)
}

// Definitions returns the definitions of all probes, in order.
func (s *Set) Definitions() []Definition {
	out := make([]Definition, 0, s.Len())
	for _, p := range s.All() {
		out = append(out, p.def)
	}
	return out
}
