// Package state defines the plain-data snapshot type shared by modules,
// plugins and storage backends.
//
// A State is a JSON-compatible map: strings, numbers, booleans, nil,
// nested maps and slices. Snapshots published by a module are never
// mutated after publication; every transition produces a new top-level map.
package state

import (
	"sort"
	"strconv"
)

// State is a module's data snapshot.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new state with the top-level keys of partial written over s.
// Nested values are replaced by reference, not merged.
func (s State) Merge(partial State) State {
	out := make(State, len(s)+len(partial))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Keys returns the top-level keys in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Changed returns the sorted top-level keys whose values differ between s and next.
func (s State) Changed(next State) []string {
	var changed []string
	for k, v := range next {
		old, ok := s[k]
		if !ok || !Equal(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range s {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Get retrieves a top-level value.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// Lookup walks a path of map keys and slice indexes.
// It reports false as soon as a segment is missing, so callers never have to
// guard against partially populated state.
func (s State) Lookup(path ...string) (any, bool) {
	var cur any = s
	for _, seg := range path {
		if m, ok := AsMap(cur); ok {
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
			continue
		}
		if list, ok := cur.([]any); ok {
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(list) {
				return nil, false
			}
			cur = list[i]
			continue
		}
		return nil, false
	}
	return cur, true
}

// GetString retrieves a string value. Returns empty string if not found or wrong type.
func (s State) GetString(key string) string {
	if str, ok := s[key].(string); ok {
		return str
	}
	return ""
}

// GetInt retrieves an int value. Returns 0 if not found or wrong type.
// Handles float64 from JSON unmarshaling.
func (s State) GetInt(key string) int {
	if f, ok := toFloat(s[key]); ok {
		return int(f)
	}
	return 0
}

// GetFloat retrieves a numeric value as float64.
func (s State) GetFloat(key string) float64 {
	f, _ := toFloat(s[key])
	return f
}

// GetBool retrieves a bool value. Returns false if not found or wrong type.
func (s State) GetBool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// GetState retrieves a nested object.
func (s State) GetState(key string) (State, bool) {
	m, ok := AsMap(s[key])
	if !ok {
		return nil, false
	}
	return State(m), true
}

// AsMap reports whether v is an object, returning it as a plain map.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case State:
		return m, m != nil
	case map[string]any:
		return m, m != nil
	}
	return nil, false
}
