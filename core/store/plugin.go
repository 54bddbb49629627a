package store

import (
	"context"
	"reflect"

	"github.com/artpar/statekit/core/state"
)

// Plugin is the base interface for every store plugin.
// A plugin participates in the module lifecycle by also implementing
// Initializer, Creator, Observer or Flusher; a Plugin implementing none is
// inert.
type Plugin interface {
	// Name returns the plugin identifier (e.g., "persist", "logger").
	Name() string
}

// Initializer runs once per module, while the module is being created.
type Initializer interface {
	Plugin

	// InitStore may mutate s.State in place, e.g. to hydrate it from storage.
	// Initializers share the same Snapshot and run in registration order, so
	// each sees the previous ones' changes. An error aborts module creation.
	InitStore(ctx context.Context, s *Snapshot) error
}

// Observer is notified after every state transition, once all subscribers
// have already received the new state. It must not dispatch actions on the
// module synchronously.
type Observer interface {
	Plugin
	SetStore(ctx context.Context, t Transition)
}

// Creator is told about each module once it has been created and
// registered. It is not called for a module whose initializers failed.
type Creator interface {
	Plugin
	ModuleCreated(ctx context.Context, s Snapshot)
}

// Flusher releases pending work when the store shuts down.
type Flusher interface {
	Plugin
	Flush(ctx context.Context) error
}

// Snapshot is the module data handed to initializers.
type Snapshot struct {
	Namespace string
	Persist   bool
	State     state.State
}

// Transition describes one state change.
type Transition struct {
	Namespace string
	Persist   bool

	// Action is the name of the action whose SetState produced the change.
	Action string

	// Seq numbers the module's transitions from 1. A nested dispatch from a
	// subscriber can reach observers before the transition that triggered
	// it, so observers keeping only the latest state compare Seq.
	Seq uint64

	LastState state.State
	NextState state.State
}

// When returns p if cond holds and nil otherwise, so a plugin list can
// include a plugin conditionally:
//
//	store.New(cfg, persistPlugin, store.When(!production, loggerPlugin))
func When(cond bool, p Plugin) Plugin {
	if !cond {
		return nil
	}
	return p
}

// isNil reports whether p is nil or a typed nil pointer.
func isNil(p Plugin) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
