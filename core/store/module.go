package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/statekit/core/state"
)

// Subscriber receives every new state of a module.
type Subscriber func(next state.State)

// subscriber is the internal form, which also receives the transition's
// sequence number.
type subscriber func(seq uint64, next state.State)

// BoundAction is a module action callable directly.
type BoundAction func(ctx context.Context, args ...any) (any, error)

// Module is a live, namespaced state container.
//
// Its state changes only through its actions. Each change is computed and
// published atomically as a new immutable snapshot with the next sequence
// number, then handed to every subscriber and to every observer plugin, all
// before the action's SetState returns. Delivery holds no module lock, so a
// subscriber may dispatch on the same module; the nested transition is
// delivered in full before the outer delivery resumes. Raw subscribers can
// therefore see an older state after a newer one; bindings and the persist
// plugin discard such stale deliveries by sequence number.
type Module struct {
	store     *Store
	namespace string
	persist   bool
	actions   map[string]Action

	stateMu sync.RWMutex
	current state.State
	seq     uint64

	subMu       sync.RWMutex
	subscribers map[string]subscriber
}

func newModule(s *Store, snap *Snapshot, actions map[string]Action) *Module {
	table := make(map[string]Action, len(actions))
	for name, fn := range actions {
		table[name] = fn
	}
	return &Module{
		store:       s,
		namespace:   snap.Namespace,
		persist:     snap.Persist,
		actions:     table,
		current:     snap.State,
		subscribers: make(map[string]subscriber),
	}
}

// Namespace returns the module's namespace.
func (m *Module) Namespace() string {
	return m.namespace
}

// Persist reports whether persistence plugins store this module.
func (m *Module) Persist() bool {
	return m.persist
}

// State returns the current snapshot. Treat it as read-only.
func (m *Module) State() state.State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.current
}

// snapshot returns the current state with its sequence number.
func (m *Module) snapshot() (state.State, uint64) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.current, m.seq
}

// View returns the full view: current state plus action dispatch.
func (m *Module) View() View {
	return m.viewOf(m.State())
}

func (m *Module) viewOf(s state.State) View {
	return View{Namespace: m.namespace, State: s, module: m}
}

// Actions returns the declared action names in sorted order.
func (m *Module) Actions() []string {
	names := make([]string, 0, len(m.actions))
	for name := range m.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named action and returns its result.
func (m *Module) Dispatch(ctx context.Context, action string, args ...any) (any, error) {
	fn, ok := m.actions[action]
	if !ok {
		return nil, fmt.Errorf("module %q: action %q: %w", m.namespace, action, ErrUnknownAction)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(&ActionContext{ctx: ctx, module: m, action: action}, args...)
}

// Action returns the named action bound to this module.
func (m *Module) Action(name string) (BoundAction, bool) {
	if _, ok := m.actions[name]; !ok {
		return nil, false
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return m.Dispatch(ctx, name, args...)
	}, true
}

// Subscribe registers fn for every future state and returns its id.
func (m *Module) Subscribe(fn Subscriber) string {
	id := m.store.idgen.New()
	m.attach(id, func(_ uint64, next state.State) { fn(next) })
	return id
}

func (m *Module) attach(id string, fn subscriber) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers[id] = fn
}

// Unsubscribe removes a subscriber. It reports whether the id was registered.
func (m *Module) Unsubscribe(id string) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subscribers[id]; !ok {
		return false
	}
	delete(m.subscribers, id)
	return true
}

// Subscribers returns the number of attached subscribers.
func (m *Module) Subscribers() int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.subscribers)
}

// setState merges partial over the current state, then notifies subscribers
// and observers with the result.
func (m *Module) setState(ctx context.Context, action string, partial state.State) {
	m.stateMu.Lock()
	last := m.current
	next := last.Merge(partial)
	m.current = next
	m.seq++
	seq := m.seq
	m.stateMu.Unlock()

	m.subMu.RLock()
	subs := make(map[string]subscriber, len(m.subscribers))
	for id, fn := range m.subscribers {
		subs[id] = fn
	}
	m.subMu.RUnlock()

	for id, fn := range subs {
		m.notify(id, fn, seq, next)
	}

	t := Transition{
		Namespace: m.namespace,
		Persist:   m.persist,
		Action:    action,
		Seq:       seq,
		LastState: last,
		NextState: next,
	}
	for _, o := range m.store.observers {
		m.observe(ctx, o, t)
	}
}

func (m *Module) notify(id string, fn subscriber, seq uint64, next state.State) {
	defer func() {
		if r := recover(); r != nil {
			m.store.logger.Error().
				Str("module", m.namespace).
				Str("subscriber", id).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	fn(seq, next)
}

func (m *Module) observe(ctx context.Context, o Observer, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			m.store.logger.Error().
				Str("module", m.namespace).
				Str("action", t.Action).
				Str("plugin", o.Name()).
				Interface("panic", r).
				Msg("plugin SetStore panicked")
		}
	}()
	o.SetStore(ctx, t)
}

// View is a module's state together with its actions, as seen by selectors.
type View struct {
	Namespace string
	State     state.State

	module *Module
}

// Dispatch runs an action on the module the view belongs to.
func (v View) Dispatch(ctx context.Context, action string, args ...any) (any, error) {
	if v.module == nil {
		return nil, fmt.Errorf("action %q: %w", action, ErrUnknownAction)
	}
	return v.module.Dispatch(ctx, action, args...)
}

// Actions returns the declared action names.
func (v View) Actions() []string {
	if v.module == nil {
		return nil
	}
	return v.module.Actions()
}
