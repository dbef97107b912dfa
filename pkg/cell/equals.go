package cell

import "reflect"

// defaultEquals provides type-appropriate equality checking: == for basic
// comparable types, identity for pointer-like kinds, reflect.DeepEqual for
// the rest. This is the gate applied by Cell.Set and by non-deep watchers;
// the Deep watch option replaces it with full structural comparison, which
// only matters for values reached through pointers.
//
// The two-value assertions keep the switch safe for dynamically typed slots
// (Cell[any], multi-source watches) where the two sides can hold different
// types.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int8:
		bv, ok := any(b).(int8)
		return ok && av == bv
	case int16:
		bv, ok := any(b).(int16)
		return ok && av == bv
	case int32:
		bv, ok := any(b).(int32)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case uint:
		bv, ok := any(b).(uint)
		return ok && av == bv
	case uint8:
		bv, ok := any(b).(uint8)
		return ok && av == bv
	case uint16:
		bv, ok := any(b).(uint16)
		return ok && av == bv
	case uint32:
		bv, ok := any(b).(uint32)
		return ok && av == bv
	case uint64:
		bv, ok := any(b).(uint64)
		return ok && av == bv
	case float32:
		bv, ok := any(b).(float32)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	default:
		ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
		if !ra.IsValid() || !rb.IsValid() {
			// One or both are untyped nil
			return !ra.IsValid() && !rb.IsValid()
		}
		if ra.Type() != rb.Type() {
			return false
		}
		switch ra.Kind() {
		case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
			// Go equality on these kinds is identity; structural
			// comparison is what Deep selects.
			return ra.Pointer() == rb.Pointer()
		}
		// Slices, maps, structs, arrays, funcs
		return reflect.DeepEqual(a, b)
	}
}

// deepEquals is genuine structural equality: two values are equal iff every
// reachable leaf is equal. Unlike defaultEquals it follows pointers instead
// of comparing them, which is what the Deep watch option selects.
func deepEquals(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
