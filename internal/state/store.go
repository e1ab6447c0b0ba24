// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package state provides a reactive single-value store with optional persistence.
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/pkg/errutil"
)

// Listener receives the committed state and the state it replaced.
type Listener[T any] func(state, prev T)

type listener[T any] struct {
	id ulid.ULID
	fn Listener[T]
}

// Store holds one value of type T and notifies listeners when it changes.
//
// Store is safe for concurrent use. Listeners run without the store lock held
// and may read or update the store. Each notification pass works on a
// snapshot of the listeners present when the change was committed.
type Store[T any] struct {
	state     T
	initial   T
	version   uint64
	listeners []listener[T]

	medium kv.Medium
	key    string
	codec  Codec
	merge  func(prev, partial T) T
	same   func(a, b T) bool
	logger *slog.Logger

	mu sync.RWMutex
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithPersistence saves every change to medium under key and hydrates from it
// at construction.
func WithPersistence[T any](medium kv.Medium, key string) Option[T] {
	return func(s *Store[T]) {
		s.medium = medium
		s.key = key
	}
}

// WithCodec sets the codec used for persistence. Defaults to JSONCodec.
func WithCodec[T any](codec Codec) Option[T] {
	return func(s *Store[T]) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithMerge replaces ShallowMerge as the partial-update strategy.
func WithMerge[T any](merge func(prev, partial T) T) Option[T] {
	return func(s *Store[T]) {
		if merge != nil {
			s.merge = merge
		}
	}
}

// WithEqual replaces Same as the unchanged-value test.
func WithEqual[T any](same func(a, b T) bool) Option[T] {
	return func(s *Store[T]) {
		if same != nil {
			s.same = same
		}
	}
}

// WithLogger sets the logger for absorbed failures.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store holding initial. With persistence, a saved value is
// loaded and merged over initial; a load failure is logged and initial is
// used as is.
func New[T any](ctx context.Context, initial T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		state:   initial,
		initial: initial,
		codec:   JSONCodec{},
		merge:   ShallowMerge[T],
		same:    Same[T],
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.Persistent() {
		if saved, ok := s.load(ctx); ok {
			s.state = s.merge(initial, saved)
		}
	}
	return s
}

// Persistent reports whether the store saves to a medium.
func (s *Store[T]) Persistent() bool {
	return s.medium != nil && s.key != ""
}

// Key returns the persistence key, or "" without persistence.
func (s *Store[T]) Key() string {
	return s.key
}

// GetState returns the current value. Reference kinds are returned as is and
// must not be mutated by the caller.
func (s *Store[T]) GetState() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState merges partial over the current value.
func (s *Store[T]) SetState(ctx context.Context, partial T) {
	s.apply(ctx, OpSet, func(prev T) T {
		return s.merge(prev, partial)
	})
}

// Update replaces the current value with fn(prev). Returning prev itself
// leaves the store untouched and notifies nobody.
func (s *Store[T]) Update(ctx context.Context, fn func(prev T) T) {
	s.apply(ctx, OpUpdate, fn)
}

// apply computes the next value outside the lock and commits it only if no
// other change landed in between, retrying otherwise.
func (s *Store[T]) apply(ctx context.Context, op string, next func(prev T) T) {
	for {
		s.mu.RLock()
		prev, version := s.state, s.version
		s.mu.RUnlock()

		candidate := next(prev)
		if s.same(candidate, prev) {
			return
		}

		s.mu.Lock()
		if s.version != version {
			s.mu.Unlock()
			continue
		}
		s.state = candidate
		s.version++
		listeners := s.snapshot()
		s.mu.Unlock()

		Changes.WithLabelValues(op).Inc()
		s.notify(listeners, candidate, prev)
		if s.Persistent() {
			s.save(ctx, candidate)
		}
		return
	}
}

// Subscribe registers fn. The returned function removes it and may be called
// any number of times.
func (s *Store[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	id := ulid.Make()

	s.mu.Lock()
	s.listeners = append(s.listeners, listener[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Reset restores the value given to New, before any hydration, notifies
// listeners, and deletes the persisted copy.
func (s *Store[T]) Reset(ctx context.Context) {
	s.mu.Lock()
	prev := s.state
	s.state = s.initial
	s.version++
	listeners := s.snapshot()
	s.mu.Unlock()

	Changes.WithLabelValues(OpReset).Inc()
	s.notify(listeners, s.initial, prev)

	if s.Persistent() {
		if err := s.medium.Delete(ctx, s.key); err != nil {
			s.absorb(OpDelete, "failed to delete persisted state", err)
		}
	}
}

// ListenerCount returns the number of subscribed listeners.
func (s *Store[T]) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// ClearListeners removes every listener.
func (s *Store[T]) ClearListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
}

// snapshot must be called with s.mu held.
func (s *Store[T]) snapshot() []listener[T] {
	out := make([]listener[T], len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *Store[T]) notify(listeners []listener[T], next, prev T) {
	for _, l := range listeners {
		s.call(l, next, prev)
	}
}

func (s *Store[T]) call(l listener[T], next, prev T) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("state listener panicked",
				"listener", l.id.String(),
				"panic", rec)
		}
	}()
	l.fn(next, prev)
}

func (s *Store[T]) load(ctx context.Context) (T, bool) {
	var saved T
	raw, ok, err := s.medium.Get(ctx, s.key)
	if err != nil {
		s.absorb(OpLoad, "failed to load persisted state", err)
		return saved, false
	}
	if !ok {
		return saved, false
	}
	if err := s.codec.Unmarshal([]byte(raw), &saved); err != nil {
		s.absorb(OpLoad, "failed to decode persisted state",
			oops.In("state").With("key", s.key).With("codec", s.codec.Name()).Wrap(err))
		return saved, false
	}
	return saved, true
}

func (s *Store[T]) save(ctx context.Context, value T) {
	data, err := s.codec.Marshal(value)
	if err != nil {
		s.absorb(OpSave, "failed to encode state",
			oops.In("state").With("key", s.key).With("codec", s.codec.Name()).Wrap(err))
		return
	}
	if err := s.medium.Set(ctx, s.key, string(data)); err != nil {
		s.absorb(OpSave, "failed to save state", err)
	}
}

func (s *Store[T]) absorb(op, msg string, err error) {
	PersistenceFailures.WithLabelValues(op).Inc()
	errutil.LogWarn(s.logger.With("key", s.key), msg, err)
}
