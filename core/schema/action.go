package schema

import (
	"fmt"

	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/core/store"
)

// ResetAll in a reset list restores every declared key.
const ResetAll = "*"

// Action defines the operations an action performs.
type Action struct {
	// Reset lists keys restored to their declared values.
	Reset []string `yaml:"reset,omitempty" toml:"reset,omitempty"`

	// Assign sets constant values, e.g. logout: {assign: {loggedIn: false}}.
	Assign map[string]any `yaml:"assign,omitempty" toml:"assign,omitempty"`

	// Set assigns the action's positional arguments to these keys.
	Set []string `yaml:"set,omitempty" toml:"set,omitempty"`

	// Merge takes the argument after those consumed by Set, which must be
	// an object, and merges it over the state.
	Merge bool `yaml:"merge,omitempty" toml:"merge,omitempty"`

	// Dispatch lists sibling actions run afterwards with no arguments.
	Dispatch []string `yaml:"dispatch,omitempty" toml:"dispatch,omitempty"`

	// Description for documentation and help text.
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
}

// Arity returns the number of arguments the action expects.
func (a Action) Arity() int {
	n := len(a.Set)
	if a.Merge {
		n++
	}
	return n
}

func (a Action) isEmpty() bool {
	return len(a.Reset) == 0 && len(a.Assign) == 0 && len(a.Set) == 0 && !a.Merge && len(a.Dispatch) == 0
}

// Declaration compiles the module into a store declaration.
// The module is expected to be valid.
func (m Module) Declaration() store.Declaration {
	defaults := state.State(m.State)

	actions := make(map[string]store.Action, len(m.Actions))
	for name, a := range m.Actions {
		actions[name] = compile(name, a, defaults)
	}

	var persist *bool
	if m.Persist != nil {
		persist = store.Bool(*m.Persist)
	}

	return store.Declaration{
		Namespace: m.Namespace,
		Persist:   persist,
		State:     state.Copy(defaults),
		Actions:   actions,
	}
}

func compile(name string, a Action, defaults state.State) store.Action {
	return func(c *store.ActionContext, args ...any) (any, error) {
		if len(args) < a.Arity() {
			return nil, fmt.Errorf("action %q expects %d arguments, got %d", name, a.Arity(), len(args))
		}

		partial := state.State{}

		for _, key := range a.Reset {
			if key == ResetAll {
				for k, v := range defaults {
					partial[k] = state.DeepClone(v)
				}
				continue
			}
			partial[key] = state.DeepClone(defaults[key])
		}

		for k, v := range a.Assign {
			partial[k] = state.DeepClone(v)
		}

		for i, key := range a.Set {
			partial[key] = args[i]
		}

		if a.Merge {
			obj, ok := state.AsMap(args[len(a.Set)])
			if !ok {
				return nil, fmt.Errorf("action %q: argument %d must be an object", name, len(a.Set)+1)
			}
			for k, v := range obj {
				partial[k] = v
			}
		}

		if len(partial) > 0 {
			c.SetState(partial)
		}

		for _, next := range a.Dispatch {
			if _, err := c.Dispatch(next); err != nil {
				return nil, fmt.Errorf("action %q: %w", name, err)
			}
		}

		return nil, nil
	}
}
