package store

import (
	"context"

	"github.com/artpar/statekit/core/state"
)

// Action is a module operation. It reads and changes the module through c and
// receives the caller's arguments unchanged.
type Action func(c *ActionContext, args ...any) (any, error)

// ActionContext is the receiver of a running action.
// Each dispatch gets its own context, so the action name attached to the
// resulting transitions stays correct even when actions call each other.
type ActionContext struct {
	ctx    context.Context
	module *Module
	action string
}

// Context returns the caller's context.
func (c *ActionContext) Context() context.Context {
	return c.ctx
}

// Namespace returns the module's namespace.
func (c *ActionContext) Namespace() string {
	return c.module.namespace
}

// Action returns the running action's name.
func (c *ActionContext) Action() string {
	return c.action
}

// State returns the module's current snapshot.
func (c *ActionContext) State() state.State {
	return c.module.State()
}

// SetState shallow-merges partial into the module state. Subscribers and
// observer plugins have seen the new state by the time it returns.
func (c *ActionContext) SetState(partial state.State) {
	c.module.setState(c.ctx, c.action, partial)
}

// Dispatch runs a sibling action of the same module.
func (c *ActionContext) Dispatch(action string, args ...any) (any, error) {
	return c.module.Dispatch(c.ctx, action, args...)
}
