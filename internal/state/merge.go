// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package state

import (
	"reflect"
)

// ShallowMerge overlays partial's entries on prev when both are maps with
// string keys of the same type, returning a new map. For every other kind
// partial replaces prev.
func ShallowMerge[T any](prev, partial T) T {
	pv, qv := reflect.ValueOf(prev), reflect.ValueOf(partial)
	if !pv.IsValid() || !qv.IsValid() || pv.Type() != qv.Type() {
		return partial
	}
	if pv.Kind() != reflect.Map || pv.Type().Key().Kind() != reflect.String {
		return partial
	}

	out := reflect.MakeMapWithSize(pv.Type(), pv.Len()+qv.Len())
	for it := pv.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}
	for it := qv.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}

	merged, ok := out.Interface().(T)
	if !ok {
		return partial
	}
	return merged
}

// Same reports whether a and b are the same state value. Maps, pointers and
// channels compare by reference, slices by backing array and length, other
// comparable values with ==. Values that cannot be compared are never the same.
func Same[T any](a, b T) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if !av.IsValid() || !bv.IsValid() {
		return av.IsValid() == bv.IsValid()
	}
	if av.Type() != bv.Type() {
		return false
	}

	switch av.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return av.Pointer() == bv.Pointer()
	case reflect.Slice:
		return av.Pointer() == bv.Pointer() && av.Len() == bv.Len()
	case reflect.Func:
		return false
	}

	if av.Comparable() {
		return av.Equal(bv)
	}
	return false
}
