package store

import (
	"context"
	"testing"
	"time"

	"github.com/artpar/statekit/core/state"
)

func TestBind_SelectorGatesUpdates(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	var updates []any
	b := Bind(m, Field("a"), func(v any) { updates = append(updates, v) })
	defer b.Close()

	if v, ok := b.Value(); !ok || v != 0 {
		t.Errorf("initial Value() = %v, %v; want 0, true", v, ok)
	}

	_, _ = m.Dispatch(context.Background(), "setB", 1)
	if len(updates) != 0 {
		t.Fatalf("change to an unselected key produced %d updates", len(updates))
	}

	_, _ = m.Dispatch(context.Background(), "setA", 2)
	if len(updates) != 1 || updates[0] != 2 {
		t.Fatalf("updates = %v, want [2]", updates)
	}

	_, _ = m.Dispatch(context.Background(), "setA", 2)
	if len(updates) != 1 {
		t.Errorf("setting an equal value produced an update: %v", updates)
	}
}

func TestBind_DeepEqualitySuppresses(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), Declaration{
		Namespace: "user",
		State:     state.State{"user": map[string]any{"name": "ann", "tags": []any{"a"}}},
		Actions:   map[string]Action{"SET_USER": setAction("user")},
	})

	calls := 0
	b := Bind(m, Field("user"), func(any) { calls++ })
	defer b.Close()

	// A fresh but structurally equal value.
	_, _ = m.Dispatch(context.Background(), "SET_USER", map[string]any{"name": "ann", "tags": []any{"a"}})
	if calls != 0 {
		t.Errorf("structurally equal value triggered %d updates", calls)
	}

	_, _ = m.Dispatch(context.Background(), "SET_USER", map[string]any{"name": "bob"})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBind_UnavailableSkips(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), Declaration{
		Namespace: "profile",
		State:     state.State{},
		Actions:   map[string]Action{"SET_USER": setAction("user")},
	})

	var got []string
	b := Bind(m, As[string](Field("user", "name")), func(v string) { got = append(got, v) })
	defer b.Close()

	if _, ok := b.Value(); ok {
		t.Error("Value() should be unavailable before user is set")
	}

	_, _ = m.Dispatch(context.Background(), "SET_USER", map[string]any{"name": "ann"})
	_, _ = m.Dispatch(context.Background(), "SET_USER", map[string]any{})
	_, _ = m.Dispatch(context.Background(), "SET_USER", map[string]any{"name": 42})

	if len(got) != 1 || got[0] != "ann" {
		t.Errorf("updates = %v, want [ann]", got)
	}
	if v, ok := b.Value(); !ok || v != "ann" {
		t.Errorf("Value() = %q, %v; want ann, true", v, ok)
	}
}

func TestBind_PanickingSelectorSkips(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	calls := 0
	sel := Selector[int](func(v View) (int, bool) {
		if v.State.GetInt("a") == 1 {
			var missing map[string]int
			missing["x"] = 1
		}
		return v.State.GetInt("a"), true
	})
	b := Bind(m, sel, func(int) { calls++ })
	defer b.Close()

	_, _ = m.Dispatch(context.Background(), "setA", 1)
	if calls != 0 {
		t.Errorf("panicking selector should skip the update, calls = %d", calls)
	}

	_, _ = m.Dispatch(context.Background(), "setA", 3)
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after the selector recovers", calls)
	}
}

func TestBind_Close(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	calls := 0
	b := Bind(m, Field("a"), func(any) { calls++ })
	b.Close()
	b.Close()

	_, _ = m.Dispatch(context.Background(), "setA", 5)
	if calls != 0 {
		t.Errorf("closed binding received %d updates", calls)
	}
	if m.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after Close", m.Subscribers())
	}
}

func TestBind_NilSelectorPanics(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	defer func() {
		if recover() == nil {
			t.Error("Bind(nil selector) should panic")
		}
	}()
	Bind[int](m, nil, nil)
}

func TestWatch_ReceivesEveryTransition(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	var views []View
	b := Watch(m, func(v View) { views = append(views, v) })
	defer b.Close()

	_, _ = m.Dispatch(context.Background(), "setA", 0)
	_, _ = m.Dispatch(context.Background(), "setB", 4)

	if len(views) != 2 {
		t.Fatalf("views = %d, want 2 (Watch does not filter)", len(views))
	}
	if views[1].Namespace != "counter" || views[1].State.GetInt("b") != 4 {
		t.Errorf("last view = %+v", views[1])
	}
	if got := views[1].Actions(); len(got) != 3 {
		t.Errorf("view actions = %v", got)
	}
}

func TestView_DispatchFromSelector(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	v := m.View()
	if _, err := v.Dispatch(context.Background(), "setA", 8); err != nil {
		t.Fatalf("View.Dispatch: %v", err)
	}
	if got, _ := Select(m, As[int](Field("a"))); got != 8 {
		t.Errorf("Select(a) = %v, want 8", got)
	}
}

func TestSelect_PanicYieldsUnavailable(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	_, ok := Select(m, Selector[any](func(View) (any, bool) { panic("nope") }))
	if ok {
		t.Error("panicking selector should report unavailable")
	}
}

func TestBind_CallbackMayDispatchOnSameModule(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	a := Bind(m, As[int](Field("a")), func(v int) {
		_, _ = m.Dispatch(context.Background(), "setB", v*10)
	})
	defer a.Close()

	var bs []int
	b := Bind(m, As[int](Field("b")), func(v int) { bs = append(bs, v) })
	defer b.Close()

	done := make(chan struct{})
	go func() {
		_, _ = m.Dispatch(context.Background(), "setA", 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch from a binding callback did not return")
	}

	if got := m.State(); got.GetInt("a") != 1 || got.GetInt("b") != 10 {
		t.Errorf("state = %v, want a=1 b=10", got)
	}
	// The outer delivery of {a:1, b:0} reaches b after the nested one and
	// must not roll it back.
	if v, _ := b.Value(); v != 10 {
		t.Errorf("b binding = %v, want 10", v)
	}
	if len(bs) != 1 || bs[0] != 10 {
		t.Errorf("b updates = %v, want [10]", bs)
	}
}

func TestBind_IgnoresStaleDelivery(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	var got []any
	b := Bind(m, Field("a"), func(v any) { got = append(got, v) })
	defer b.Close()

	b.receive(2, state.State{"a": 5})
	b.receive(1, state.State{"a": 3})

	if v, _ := b.Value(); v != 5 {
		t.Errorf("Value() = %v, want 5", v)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("updates = %v, want [5]", got)
	}
}

func TestBind_SeedDoesNotOverwriteNewerDelivery(t *testing.T) {
	m := New(testConfig()).MustCreateModule(context.Background(), counterDecl())

	// A snapshot read before a transition, seeded after that transition was
	// already delivered to the binding.
	snap, seq := m.snapshot()

	var got []any
	b := &Binding[any]{module: m, id: "late", selector: Field("a"), onChange: func(v any) { got = append(got, v) }}
	m.attach(b.id, b.receive)
	defer b.Close()

	_, _ = m.Dispatch(context.Background(), "setA", 7)
	v, ok, _ := evaluate(b.selector, m.viewOf(snap))
	b.seed(v, ok, seq)

	if v, _ := b.Value(); v != 7 {
		t.Errorf("Value() = %v, want 7", v)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("updates = %v, want [7]", got)
	}
}
