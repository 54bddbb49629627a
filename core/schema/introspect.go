package schema

import "sort"

// ModuleSchema describes a module definition for tooling output.
type ModuleSchema struct {
	Namespace   string         `json:"namespace" yaml:"namespace"`
	Persist     bool           `json:"persist" yaml:"persist"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Keys        []string       `json:"keys" yaml:"keys"`
	Actions     []ActionSchema `json:"actions" yaml:"actions"`
}

// ActionSchema describes one action.
type ActionSchema struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Arity       int      `json:"arity" yaml:"arity"`
	Reset       []string `json:"reset,omitempty" yaml:"reset,omitempty"`
	Assign      []string `json:"assign,omitempty" yaml:"assign,omitempty"`
	Set         []string `json:"set,omitempty" yaml:"set,omitempty"`
	Merge       bool     `json:"merge,omitempty" yaml:"merge,omitempty"`
	Dispatch    []string `json:"dispatch,omitempty" yaml:"dispatch,omitempty"`
}

// Describe summarizes a module definition.
func Describe(m Module) ModuleSchema {
	out := ModuleSchema{
		Namespace:   m.Namespace,
		Persist:     m.IsPersistent(),
		Description: m.Meta.Description,
		Version:     m.Meta.Version,
		Source:      m.Source,
		Keys:        sortedKeys(m.State),
		Actions:     make([]ActionSchema, 0, len(m.Actions)),
	}

	for _, name := range sortedKeys(m.Actions) {
		a := m.Actions[name]
		out.Actions = append(out.Actions, ActionSchema{
			Name:        name,
			Description: a.Description,
			Arity:       a.Arity(),
			Reset:       a.Reset,
			Assign:      sortedKeys(a.Assign),
			Set:         a.Set,
			Merge:       a.Merge,
			Dispatch:    a.Dispatch,
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
