// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package state_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/state"
)

type counterState = map[string]any

// mockMedium is a testify mock of kv.Medium.
type mockMedium struct {
	mock.Mock
}

func (m *mockMedium) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockMedium) Set(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockMedium) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	if buf == nil {
		buf = &bytes.Buffer{}
	}
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestStore_SetStateMergesAndNotifies(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, counterState{"count": 0, "name": "demo"})

	var gotNext, gotPrev counterState
	calls := 0
	s.Subscribe(func(next, prev counterState) {
		calls++
		gotNext, gotPrev = next, prev
	})

	s.SetState(ctx, counterState{"count": 5})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, s.GetState()["count"])
	assert.Equal(t, "demo", s.GetState()["name"], "merge keeps untouched keys")
	assert.Equal(t, 5, gotNext["count"])
	assert.Equal(t, 0, gotPrev["count"])
}

func TestStore_IdentityUpdateIsSilent(t *testing.T) {
	ctx := context.Background()
	medium := &mockMedium{}
	medium.On("Get", ctx, "k").Return("", false, nil)
	s := state.New(ctx, counterState{"count": 0},
		state.WithPersistence[counterState](medium, "k"))

	calls := 0
	s.Subscribe(func(counterState, counterState) { calls++ })

	s.Update(ctx, func(prev counterState) counterState { return prev })

	assert.Equal(t, 0, calls)
	medium.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_UpdateReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, counterState{"count": 0, "name": "demo"})

	s.Update(ctx, func(counterState) counterState { return counterState{"count": 9} })

	assert.Equal(t, counterState{"count": 9}, s.GetState())
}

func TestStore_ResetRestoresInitial(t *testing.T) {
	ctx := context.Background()
	initial := counterState{"count": 0}
	s := state.New(ctx, initial)

	s.SetState(ctx, counterState{"count": 5})
	require.Equal(t, 5, s.GetState()["count"])

	var gotNext, gotPrev counterState
	s.Subscribe(func(next, prev counterState) { gotNext, gotPrev = next, prev })
	s.Reset(ctx)

	assert.Equal(t, initial, s.GetState())
	assert.Equal(t, initial, gotNext)
	assert.Equal(t, 5, gotPrev["count"])
}

func TestStore_ValueTypesCompareByValue(t *testing.T) {
	type settings struct {
		Theme string
		Size  int
	}
	ctx := context.Background()
	s := state.New(ctx, settings{Theme: "dark", Size: 1})
	calls := 0
	s.Subscribe(func(settings, settings) { calls++ })

	s.SetState(ctx, settings{Theme: "dark", Size: 1})
	assert.Equal(t, 0, calls, "equal struct is unchanged")

	s.SetState(ctx, settings{Theme: "light", Size: 1})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "light", s.GetState().Theme)
}

func TestStore_SubscribeUnsubscribeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, counterState{})

	calls := 0
	unsubscribe := s.Subscribe(func(counterState, counterState) { calls++ })
	s.Subscribe(func(counterState, counterState) {})
	require.Equal(t, 2, s.ListenerCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, s.ListenerCount())

	s.SetState(ctx, counterState{"a": 1})
	assert.Equal(t, 0, calls)

	s.ClearListeners()
	assert.Equal(t, 0, s.ListenerCount())
}

func TestStore_NotificationUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, counterState{})

	lateCalls := 0
	var removeSecond func()
	s.Subscribe(func(counterState, counterState) {
		s.Subscribe(func(counterState, counterState) { lateCalls++ })
		removeSecond()
	})
	secondCalls := 0
	removeSecond = s.Subscribe(func(counterState, counterState) { secondCalls++ })

	s.SetState(ctx, counterState{"a": 1})

	assert.Equal(t, 0, lateCalls)
	assert.Equal(t, 1, secondCalls)
}

func TestStore_ListenerPanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	s := state.New(ctx, counterState{}, state.WithLogger[counterState](quietLogger(&buf)))

	s.Subscribe(func(counterState, counterState) { panic("listener broke") })
	calls := 0
	s.Subscribe(func(counterState, counterState) { calls++ })

	require.NotPanics(t, func() { s.SetState(ctx, counterState{"a": 1}) })
	assert.Equal(t, 1, calls)
	assert.Contains(t, buf.String(), "state listener panicked")
}

func TestStore_ListenerMayUpdateStore(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, counterState{"count": 0})

	s.Subscribe(func(next, _ counterState) {
		if next["count"] == 1 && next["seen"] == nil {
			s.SetState(ctx, counterState{"seen": true})
		}
	})

	s.SetState(ctx, counterState{"count": 1})

	assert.Equal(t, true, s.GetState()["seen"])
	assert.Equal(t, 1, s.GetState()["count"])
}

func TestStore_HydratesFromMedium(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium()
	require.NoError(t, medium.Set(ctx, "app", `{"count":7,"extra":"saved"}`))

	initial := counterState{"count": 0, "theme": "dark"}
	s := state.New(ctx, initial, state.WithPersistence[counterState](medium, "app"))

	got := s.GetState()
	assert.InDelta(t, 7, got["count"], 0.001, "persisted keys win")
	assert.Equal(t, "saved", got["extra"])
	assert.Equal(t, "dark", got["theme"], "initial keys survive")
	assert.Equal(t, 0, initial["count"], "initial value is not mutated")
}

func TestStore_PersistsChangesAndDeletesOnReset(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium()
	s := state.New(ctx, counterState{"count": 0}, state.WithPersistence[counterState](medium, "app"))

	s.SetState(ctx, counterState{"count": 3})
	raw, ok, err := medium.Get(ctx, "app")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"count":3}`, raw)

	s.Reset(ctx)
	_, ok, err = medium.Get(ctx, "app")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, counterState{"count": 0}, s.GetState(), "reset ignores hydration")
}

func TestStore_YAMLCodecRoundTrip(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium()
	s := state.New(ctx, counterState{"count": 0},
		state.WithPersistence[counterState](medium, "app"),
		state.WithCodec[counterState](state.YAMLCodec{}))

	s.SetState(ctx, counterState{"count": 2})
	raw, _, err := medium.Get(ctx, "app")
	require.NoError(t, err)
	assert.Contains(t, raw, "count: 2")

	reloaded := state.New(ctx, counterState{},
		state.WithPersistence[counterState](medium, "app"),
		state.WithCodec[counterState](state.CodecByName("yaml")))
	assert.Equal(t, 2, reloaded.GetState()["count"])
}

func TestStore_PersistenceFailuresAreAbsorbed(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	medium := &mockMedium{}
	medium.On("Get", ctx, "app").Return("", false, errors.New("medium offline"))
	medium.On("Set", ctx, "app", mock.Anything).Return(errors.New("disk full"))
	medium.On("Delete", ctx, "app").Return(errors.New("read only"))

	before := testutil.ToFloat64(state.PersistenceFailures.WithLabelValues(state.OpSave))

	s := state.New(ctx, counterState{"count": 0},
		state.WithPersistence[counterState](medium, "app"),
		state.WithLogger[counterState](quietLogger(&buf)))
	assert.Equal(t, counterState{"count": 0}, s.GetState(), "load failure keeps initial")

	s.SetState(ctx, counterState{"count": 1})
	assert.Equal(t, 1, s.GetState()["count"], "save failure does not roll back")

	s.Reset(ctx)

	medium.AssertExpectations(t)
	assert.Contains(t, buf.String(), "failed to load persisted state")
	assert.Contains(t, buf.String(), "failed to save state")
	assert.Contains(t, buf.String(), "failed to delete persisted state")
	assert.InDelta(t, before+1, testutil.ToFloat64(state.PersistenceFailures.WithLabelValues(state.OpSave)), 0.001)
}

func TestStore_CorruptPersistedValueIsIgnored(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium()
	require.NoError(t, medium.Set(ctx, "app", "{not json"))

	s := state.New(ctx, counterState{"count": 0},
		state.WithPersistence[counterState](medium, "app"),
		state.WithLogger[counterState](quietLogger(nil)))

	assert.Equal(t, counterState{"count": 0}, s.GetState())
}

func TestStore_CustomMergeAndEqual(t *testing.T) {
	ctx := context.Background()
	s := state.New(ctx, 10,
		state.WithMerge(func(prev, partial int) int { return prev + partial }),
		state.WithEqual(func(a, b int) bool { return a/10 == b/10 }))

	calls := 0
	s.Subscribe(func(int, int) { calls++ })

	s.SetState(ctx, 5)
	assert.Equal(t, 10, s.GetState(), "same decade counts as unchanged")
	assert.Equal(t, 0, calls)

	s.SetState(ctx, 15)
	assert.Equal(t, 25, s.GetState())
	assert.Equal(t, 1, calls)
}
