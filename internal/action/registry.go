package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

// ErrUnknownActionType is returned for probe actions without an executor.
var ErrUnknownActionType = errors.New("unknown action type")

// ActionError locates an invalid action within a probe set.
type ActionError struct {
	Probe string
	Index int
	Type  string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("probe %q actions[%d] (%s): %s", e.Probe, e.Index, e.Type, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ValidationError collects every invalid action of a probe set.
type ValidationError struct {
	Actions []*ActionError
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Actions))
	for i, a := range e.Actions {
		lines[i] = a.Error()
	}
	return fmt.Sprintf("%d invalid probe action(s):\n  - %s", len(e.Actions), strings.Join(lines, "\n  - "))
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Actions))
	for i, a := range e.Actions {
		errs[i] = a
	}
	return errs
}

// Registry maps action types to the executors probes reference.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor. Panics on duplicate type.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[e.Type()]; exists {
		panic(fmt.Sprintf("action registry: duplicate type %q", e.Type()))
	}
	r.executors[e.Type()] = e
}

// Get returns the executor for the given type.
func (r *Registry) Get(actionType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownActionType, actionType)
	}
	return e, nil
}

// Resolve returns the executor for a probe action after checking its params.
func (r *Registry) Resolve(def probe.ActionDef) (Executor, error) {
	e, err := r.Get(def.Type)
	if err != nil {
		return nil, err
	}
	if err := e.Validate(def.Params); err != nil {
		return nil, err
	}
	return e, nil
}

// Types returns the registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateProbes resolves every action of every probe in set. It returns a
// *ValidationError listing all failures, or nil.
func (r *Registry) ValidateProbes(set *probe.Set) error {
	var invalid []*ActionError
	for _, p := range set.All() {
		for i, def := range p.Actions {
			if _, err := r.Resolve(def); err != nil {
				invalid = append(invalid, &ActionError{Probe: p.Name, Index: i, Type: def.Type, Err: err})
			}
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Actions: invalid}
	}
	return nil
}
