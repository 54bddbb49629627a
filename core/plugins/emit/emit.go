// Package emit bridges module lifecycle onto an event bus.
package emit

import (
	"context"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/store"
	"github.com/artpar/statekit/ports"
)

// InitAction is the action part of the event published on module creation.
const InitAction = "init"

// Option configures a Plugin.
type Option func(*Plugin)

// WithClock sets the clock used to stamp events.
func WithClock(c ports.Clock) Option {
	return func(p *Plugin) {
		if c != nil {
			p.clock = c
		}
	}
}

// Async publishes from a separate goroutine so slow handlers do not
// delay the transition.
func Async() Option {
	return func(p *Plugin) {
		p.async = true
	}
}

// Plugin publishes "<namespace>.init" and "<namespace>.<action>" events.
type Plugin struct {
	bus   *events.Bus
	clock ports.Clock
	async bool
}

// New creates an emit plugin publishing to bus.
func New(bus *events.Bus, opts ...Option) *Plugin {
	p := &Plugin{bus: bus, clock: clock.Real{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements store.Plugin.
func (p *Plugin) Name() string {
	return "emit"
}

// ModuleCreated publishes the module's initial state.
func (p *Plugin) ModuleCreated(ctx context.Context, s store.Snapshot) {
	p.publish(ctx, events.Event{
		Name:      s.Namespace + "." + InitAction,
		Namespace: s.Namespace,
		Next:      s.State,
	})
}

// SetStore publishes the transition.
func (p *Plugin) SetStore(ctx context.Context, t store.Transition) {
	p.publish(ctx, events.Event{
		Name:      t.Namespace + "." + t.Action,
		Namespace: t.Namespace,
		Action:    t.Action,
		Prev:      t.LastState,
		Next:      t.NextState,
	})
}

func (p *Plugin) publish(ctx context.Context, e events.Event) {
	if !p.bus.HasSubscribers(e) {
		return
	}
	e.Time = p.clock.Now()
	if p.async {
		p.bus.PublishAsync(context.WithoutCancel(ctx), e)
		return
	}
	p.bus.Publish(ctx, e)
}

var (
	_ store.Creator     = (*Plugin)(nil)
	_ store.Observer    = (*Plugin)(nil)
)
