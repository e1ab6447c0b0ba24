// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/holomush/extkit/internal/plugin/lua"
)

func newSandbox(t *testing.T, ctx context.Context) *lua.LState {
	t.Helper()
	L, err := pluginlua.NewStateFactory().NewState(ctx)
	require.NoError(t, err)
	t.Cleanup(L.Close)
	return L
}

func TestStateFactory_LoadsSafeLibraries(t *testing.T) {
	L := newSandbox(t, context.Background())

	for _, lib := range []string{"table", "string", "math"} {
		assert.NotEqual(t, lua.LTNil, L.GetGlobal(lib).Type(), "library %q not loaded", lib)
	}
}

func TestStateFactory_BlocksUnsafeGlobals(t *testing.T) {
	L := newSandbox(t, context.Background())

	for _, name := range []string{"os", "io", "debug", "package", "dofile", "loadfile", "loadstring", "load"} {
		assert.Equal(t, lua.LTNil, L.GetGlobal(name).Type(), "%q should be blocked", name)
	}
}

func TestStateFactory_RunsLua(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"arithmetic", `result = 1 + 1`, "2"},
		{"string library", `result = string.upper("hello")`, "HELLO"},
		{"table library", `t = {3, 1, 2}; table.sort(t); result = t[1]`, "1"},
		{"math library", `result = math.abs(-42)`, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandbox(t, context.Background())
			require.NoError(t, L.DoString(tt.code))
			assert.Equal(t, tt.want, L.GetGlobal("result").String())
		})
	}
}

func TestStateFactory_StatesAreIndependent(t *testing.T) {
	L1 := newSandbox(t, context.Background())
	L2 := newSandbox(t, context.Background())

	require.NoError(t, L1.DoString(`foo = "bar"`))
	assert.Equal(t, lua.LTNil, L2.GetGlobal("foo").Type())
}

func TestStateFactory_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	L := newSandbox(t, ctx)

	err := L.DoString(`while true do end`)
	assert.Error(t, err)
}
