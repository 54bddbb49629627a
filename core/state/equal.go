package state

import (
	"encoding/json"
	"reflect"
)

// Equal reports deep structural equality between two plain-data values.
//
// Numbers compare by value regardless of Go type, so an int default equals
// the float64 decoded from JSON. Maps with string keys compare key by key and
// slices element by element, independent of their concrete Go types. A nil
// map or slice differs from an empty one.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if _, ok := toFloat(b); ok {
		return false
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() {
		return ra.IsValid() == rb.IsValid()
	}

	switch {
	case isList(ra) && isList(rb):
		if isNilSlice(ra) != isNilSlice(rb) || ra.Len() != rb.Len() {
			return false
		}
		for i := 0; i < ra.Len(); i++ {
			if !Equal(ra.Index(i).Interface(), rb.Index(i).Interface()) {
				return false
			}
		}
		return true

	case isObject(ra) && isObject(rb):
		if ra.IsNil() != rb.IsNil() || ra.Len() != rb.Len() {
			return false
		}
		iter := ra.MapRange()
		for iter.Next() {
			key := reflect.ValueOf(iter.Key().String()).Convert(rb.Type().Key())
			bv := rb.MapIndex(key)
			if !bv.IsValid() || !Equal(iter.Value().Interface(), bv.Interface()) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func isList(v reflect.Value) bool {
	k := v.Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isNilSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.IsNil()
}

func isObject(v reflect.Value) bool {
	return v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
