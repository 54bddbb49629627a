package store

import (
	"fmt"
	"strings"

	"github.com/artpar/statekit/core/state"
)

// Declaration describes a module: its namespace, initial state and actions.
type Declaration struct {
	// Namespace uniquely identifies the module within a store.
	Namespace string

	// Persist controls whether persistence plugins store this module.
	// Nil means true.
	Persist *bool

	// State is the initial state. It is deep-copied at creation time.
	State state.State

	// Actions are the only way to change the module's state.
	Actions map[string]Action
}

// Bool returns a pointer to b, for Declaration.Persist.
func Bool(b bool) *bool {
	return &b
}

func (d Declaration) persist() bool {
	return d.Persist == nil || *d.Persist
}

func (d Declaration) validate() error {
	if strings.TrimSpace(d.Namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidDeclaration)
	}
	for name, fn := range d.Actions {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: module %q has an action with an empty name", ErrInvalidDeclaration, d.Namespace)
		}
		if fn == nil {
			return fmt.Errorf("%w: action %q of module %q is nil", ErrInvalidDeclaration, name, d.Namespace)
		}
	}
	return nil
}
