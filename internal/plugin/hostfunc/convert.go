// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostfunc

import (
	"encoding/json"
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// FromLua converts a Lua value to a Go value. Tables with array keys become
// []any; other non-empty tables and empty tables become map[string]any.
func FromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if val.MaxN() > 0 {
			return tableToSlice(val)
		}
		return tableToMap(val)
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

func tableToMap(tbl *lua.LTable) map[string]any {
	result := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		result[k.String()] = FromLua(v)
	})
	return result
}

func tableToSlice(tbl *lua.LTable) []any {
	n := tbl.MaxN()
	result := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		result = append(result, FromLua(tbl.RawGetInt(i)))
	}
	return result
}

// ToLua converts a Go value into a Lua value owned by L. Values that are not
// JSON-like are converted through their JSON form, then their string form.
func ToLua(L *lua.LState, v any) lua.LValue { //nolint:gocritic // L is the idiomatic lua.LState name
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case error:
		return lua.LString(val.Error())
	case fmt.Stringer:
		return lua.LString(val.String())
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, ToLua(L, val[k]))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(ToLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, item := range val {
			t.Append(lua.LString(item))
		}
		return t
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return lua.LString(fmt.Sprint(val))
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return lua.LString(string(b))
		}
		return ToLua(L, generic)
	}
}
