package store

import (
	"sync"

	"github.com/artpar/statekit/core/state"
)

// Binding is one observer's view of a module: a selected value that is
// pushed to onChange only when it actually changes.
type Binding[T any] struct {
	module   *Module
	id       string
	selector Selector[T]
	onChange func(T)

	mu     sync.Mutex
	value  T
	ready  bool
	closed bool
	seq    uint64 // newest transition applied
}

// Bind attaches a selector-gated observer to m.
//
// The selector's result on the current state is the initial value. After
// each transition the selector runs on the new view; the update is skipped
// when it panics, reports the value unavailable, or yields a value deeply
// equal to the last one emitted. Deliveries older than the newest one seen
// are ignored. onChange runs synchronously inside the transition and may
// dispatch on m.
func Bind[T any](m *Module, sel Selector[T], onChange func(T)) *Binding[T] {
	if sel == nil {
		panic("store: Bind requires a selector, use Watch for unfiltered views")
	}
	b := &Binding[T]{module: m, id: m.store.idgen.New(), selector: sel, onChange: onChange}
	m.attach(b.id, b.receive)

	snap, seq := m.snapshot()
	v, ok, _ := evaluate(sel, m.viewOf(snap))
	b.seed(v, ok, seq)
	return b
}

// Watch attaches an observer that receives the full view after every
// transition, without filtering.
func Watch(m *Module, onChange func(View)) *Binding[View] {
	b := &Binding[View]{module: m, id: m.store.idgen.New(), onChange: onChange}
	m.attach(b.id, b.receive)

	snap, seq := m.snapshot()
	b.seed(m.viewOf(snap), true, seq)
	return b
}

// seed sets the initial value unless a delivery for the same or a newer
// state already arrived between subscribing and reading the snapshot.
func (b *Binding[T]) seed(v T, ok bool, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq > seq || (b.seq == seq && seq != 0) {
		return
	}
	b.seq = seq
	if ok {
		b.value, b.ready = v, true
	}
}

// ID returns the subscriber id.
func (b *Binding[T]) ID() string {
	return b.id
}

// Value returns the last emitted value and whether one is available.
func (b *Binding[T]) Value() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.ready
}

// Close detaches the binding; later transitions never reach it.
// Closing twice is harmless.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.module.Unsubscribe(b.id)
}

func (b *Binding[T]) receive(seq uint64, next state.State) {
	view := b.module.viewOf(next)

	var v T
	ok := true
	if b.selector == nil {
		// Only Watch leaves the selector nil, and there T is View.
		v = any(view).(T)
	} else {
		var err error
		v, ok, err = evaluate(b.selector, view)
		if err != nil && !b.module.store.production {
			b.module.store.logger.Debug().
				Err(err).
				Str("module", b.module.namespace).
				Str("subscriber", b.id).
				Msg("selector failed, update skipped")
		}
	}

	b.mu.Lock()
	if b.closed || seq <= b.seq {
		b.mu.Unlock()
		return
	}
	b.seq = seq
	if !ok || (b.selector != nil && b.ready && state.Equal(b.value, v)) {
		b.mu.Unlock()
		return
	}
	b.value, b.ready = v, true
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(v)
	}
}
