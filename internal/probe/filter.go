package probe

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ValueKind discriminates expected filter values.
type ValueKind int

const (
	// KindScalar matches when the actual value is equal to the expected one.
	KindScalar ValueKind = iota
	// KindContainsAll matches when the actual value is a list holding every expected element.
	KindContainsAll
)

// Value is the expected side of a filter clause. The kind is fixed when the
// probe is loaded.
type Value struct {
	Kind   ValueKind
	Scalar any
	List   []any
}

// ScalarValue returns a Value matching by equality.
func ScalarValue(v any) Value {
	return Value{Kind: KindScalar, Scalar: v}
}

// ContainsAllValue returns a Value matching lists that hold all of vs.
func ContainsAllValue(vs ...any) Value {
	return Value{Kind: KindContainsAll, List: vs}
}

// Match reports whether actual satisfies v.
func (v Value) Match(actual any) bool {
	if v.Kind == KindContainsAll {
		items, ok := asList(actual)
		if !ok {
			return false
		}
		for _, want := range v.List {
			if !containsValue(items, want) {
				return false
			}
		}
		return true
	}
	return valuesEqual(v.Scalar, actual)
}

// Clause is one attribute test of a Rule.
type Clause struct {
	Attribute string
	Expected  Value
}

// Rule is a conjunction of clauses. An empty Rule matches everything.
type Rule []Clause

// ParseRule compiles a raw attribute → expected value mapping. Lists become
// KindContainsAll values, everything else KindScalar. Nested mappings and
// nested lists are rejected.
func ParseRule(raw map[string]any) (Rule, error) {
	attrs := make([]string, 0, len(raw))
	for attr := range raw {
		if attr == "" {
			return nil, fmt.Errorf("filter attribute must not be empty")
		}
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	rule := make(Rule, 0, len(attrs))
	for _, attr := range attrs {
		v, err := parseValue(raw[attr])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", attr, err)
		}
		rule = append(rule, Clause{Attribute: attr, Expected: v})
	}
	return rule, nil
}

func parseValue(raw any) (Value, error) {
	if items, ok := asList(raw); ok {
		for i, item := range items {
			if err := checkScalar(item); err != nil {
				return Value{}, fmt.Errorf("item %d: %w", i, err)
			}
		}
		return ContainsAllValue(items...), nil
	}
	if err := checkScalar(raw); err != nil {
		return Value{}, err
	}
	return ScalarValue(raw), nil
}

func checkScalar(v any) error {
	if v == nil {
		return nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Func, reflect.Chan:
		return fmt.Errorf("unsupported value of type %T", v)
	}
	return nil
}

// CheckFilter reports whether data satisfies every clause of rule.
// Missing attributes read as nil.
func CheckFilter(rule Rule, data map[string]any) bool {
	for _, c := range rule {
		if !c.Expected.Match(data[c.Attribute]) {
			return false
		}
	}
	return true
}

// CheckFilters reports whether data satisfies at least one rule. No rules at
// all means the layer is unfiltered and always passes.
func CheckFilters(rules []Rule, data map[string]any) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if CheckFilter(r, data) {
			return true
		}
	}
	return false
}

func containsValue(items []any, want any) bool {
	for _, item := range items {
		if valuesEqual(want, item) {
			return true
		}
	}
	return false
}

// valuesEqual compares numbers by value whatever their Go type, lists element
// by element and everything else with reflect.DeepEqual.
func valuesEqual(a, b any) bool {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	al, aList := asList(a)
	bl, bList := asList(b)
	if aList || bList {
		if !aList || !bList || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !valuesEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// toFloat64 coerces a numeric value to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case nil:
		return nil, false
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
