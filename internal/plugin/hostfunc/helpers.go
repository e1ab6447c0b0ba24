// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// pushError pushes nil followed by an error string to the Lua stack and returns 2.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes a value followed by nil (no error) to the Lua stack and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

// luaContext returns the context set on the Lua state, or Background.
func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
