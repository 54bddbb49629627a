// Package events provides a publish/subscribe bus for module transitions.
// The emit plugin publishes "<namespace>.init" when a module is created and
// "<namespace>.<action>" after every transition.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/artpar/statekit/core/state"
	"github.com/rs/zerolog"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "user.SET_TOKEN", "cart.init").
	Name string `json:"name"`

	// Namespace is the module the event comes from.
	Namespace string `json:"namespace"`

	// Action is the action that produced the transition; empty for init events.
	Action string `json:"action,omitempty"`

	// Prev and Next are the states before and after the transition.
	// Init events carry only Next.
	Prev state.State `json:"prev,omitempty"`
	Next state.State `json:"next,omitempty"`

	// Time is when the event was published.
	Time time.Time `json:"time"`
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a pattern:
//   - "user.SET_TOKEN" - exact match
//   - "user.*" - all events of the user module
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish delivers an event to every matching handler, synchronously.
// Exact subscribers run first, then namespace wildcards, then "*"; within
// each group handlers run in registration order. Handler errors are logged
// and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event)

	b.logger.Debug().
		Str("event", event.Name).
		Str("module", event.Namespace).
		Int("handlers", len(matched)).
		Msg("event published")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// PublishAsync publishes the event from a new goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(ctx, event)
}

// HasSubscribers reports whether publishing event would reach any handler.
func (b *Bus) HasSubscribers(event Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, pattern := range patterns(event) {
		if len(b.handlers[pattern]) > 0 {
			return true
		}
	}
	return false
}

// match copies the matching handlers so they run without the lock held.
func (b *Bus) match(event Event) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	for _, pattern := range patterns(event) {
		matched = append(matched, b.handlers[pattern]...)
	}
	return matched
}

func patterns(event Event) []string {
	ns := event.Namespace
	if ns == "" {
		ns, _, _ = strings.Cut(event.Name, ".")
	}
	out := []string{event.Name}
	if wildcard := ns + ".*"; ns != "" && wildcard != event.Name {
		out = append(out, wildcard)
	}
	if event.Name != "*" {
		out = append(out, "*")
	}
	return out
}
