package store

import "fmt"

// Selector derives a value from a module view. The second result reports
// whether the value is available; returning false means "nothing to show
// yet" and suppresses the update.
type Selector[T any] func(v View) (T, bool)

// Select reads a module through a selector. A panicking selector yields
// the zero value and false.
func Select[T any](m *Module, sel Selector[T]) (T, bool) {
	v, ok, _ := evaluate(sel, m.View())
	return v, ok
}

// Field selects the value at a path of keys (and slice indexes) in the
// module state, reporting false while any segment is missing.
func Field(path ...string) Selector[any] {
	return func(v View) (any, bool) {
		return v.State.Lookup(path...)
	}
}

// As narrows a selector to a concrete type. Values of another type count
// as unavailable.
func As[T any](sel Selector[any]) Selector[T] {
	return func(v View) (T, bool) {
		raw, ok := sel(v)
		if !ok {
			var zero T
			return zero, false
		}
		t, ok := raw.(T)
		return t, ok
	}
}

func evaluate[T any](sel Selector[T], v View) (out T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, ok, err = zero, false, fmt.Errorf("selector panicked: %v", r)
		}
	}()
	out, ok = sel(v)
	return out, ok, nil
}
