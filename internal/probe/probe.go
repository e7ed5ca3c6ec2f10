// Package probe holds probe definitions, the filter matching engine and the
// sources probes are loaded from.
package probe

import (
	"fmt"
	"strings"
)

// ActionDef names an action to run when a probe matches.
type ActionDef struct {
	Type   string         `yaml:"type" json:"type"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Definition is the serialized form of a probe, as found in YAML files and
// database rows. Unknown keys are kept in Extra for variant-specific checks.
type Definition struct {
	Name            string           `yaml:"name" json:"name"`
	Description     string           `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled         *bool            `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	MetadataFilters []map[string]any `yaml:"metadata_filters,omitempty" json:"metadata_filters,omitempty"`
	PayloadFilters  []map[string]any `yaml:"payload_filters,omitempty" json:"payload_filters,omitempty"`
	Actions         []ActionDef      `yaml:"actions,omitempty" json:"actions,omitempty"`
	Extra           map[string]any   `yaml:",inline" json:"extra,omitempty"`
}

// IsEnabled reports whether the definition should be loaded. Probes are
// enabled unless stated otherwise.
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Probe is a compiled subscription rule.
type Probe struct {
	Name            string
	Description     string
	MetadataFilters []Rule
	PayloadFilters  []Rule
	Actions         []ActionDef
	Extra           map[string]any

	def Definition
}

// Compile validates a definition and compiles its filters.
func Compile(def Definition) (*Probe, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("probe: name is required")
	}
	p := &Probe{
		Name:        def.Name,
		Description: def.Description,
		Actions:     def.Actions,
		Extra:       def.Extra,
		def:         def,
	}
	var err error
	if p.MetadataFilters, err = compileRules(def.MetadataFilters); err != nil {
		return nil, fmt.Errorf("probe %s: metadata_filters: %w", def.Name, err)
	}
	if p.PayloadFilters, err = compileRules(def.PayloadFilters); err != nil {
		return nil, fmt.Errorf("probe %s: payload_filters: %w", def.Name, err)
	}
	for i, a := range def.Actions {
		if a.Type == "" {
			return nil, fmt.Errorf("probe %s: actions[%d]: type is required", def.Name, i)
		}
	}
	return p, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// static probe tables.
func MustCompile(def Definition) *Probe {
	p, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return p
}

func compileRules(raw []map[string]any) ([]Rule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	rules := make([]Rule, 0, len(raw))
	for i, r := range raw {
		rule, err := ParseRule(r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Definition returns the definition the probe was compiled from.
func (p *Probe) Definition() Definition {
	return p.def
}

// ExtraStrings returns a list of strings stored under key in the probe's
// extra attributes.
func (p *Probe) ExtraStrings(key string) ([]string, bool) {
	raw, ok := p.Extra[key]
	if !ok {
		return nil, false
	}
	items, ok := asList(raw)
	if !ok {
		if s, isString := raw.(string); isString {
			return []string{s}, true
		}
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out, true
}
