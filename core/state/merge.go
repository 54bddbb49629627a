package state

import "reflect"

// MergeInto recursively merges src into dst, mutating dst.
//
// Values from src win. Objects merge key by key, slices merge index by index
// (dst elements past the end of src are kept) into a new []any, and
// everything else is replaced by a deep copy of the src value. Nested objects in dst are
// modified in place, so dst must not share them with published snapshots.
func MergeInto(dst State, src map[string]any) {
	for k, sv := range src {
		dst[k] = mergeValue(dst[k], sv)
	}
}

func mergeValue(dv, sv any) any {
	if sm, ok := AsMap(sv); ok {
		dm, ok := AsMap(dv)
		if !ok {
			dm = make(map[string]any, len(sm))
		}
		for k, v := range sm {
			dm[k] = mergeValue(dm[k], v)
		}
		if s, isState := dv.(State); isState && ok {
			return s
		}
		return dm
	}
	if sl, ok := asList(sv); ok {
		dl, _ := asList(dv)
		out := make([]any, max(len(sl), len(dl)))
		copy(out, dl)
		for i, v := range sl {
			out[i] = mergeValue(out[i], v)
		}
		return out
	}
	return sv
}

// asList returns any slice or array as []any. Byte slices are not lists.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// DeepClone copies objects and []any slices recursively. Scalars and
// slices of other element types are returned as-is.
func DeepClone(v any) any {
	switch t := v.(type) {
	case State:
		if t == nil {
			return t
		}
		out := make(State, len(t))
		for k, e := range t {
			out[k] = DeepClone(e)
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = DeepClone(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DeepClone(e)
		}
		return out
	}
	return v
}

// Copy deep-clones a state. A nil state yields an empty one.
func Copy(s State) State {
	if s == nil {
		return State{}
	}
	return DeepClone(s).(State)
}
