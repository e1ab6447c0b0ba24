// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hook

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/extkit/pkg/errutil"
)

// CodeCallbackPanic marks a hook callback that panicked instead of returning.
const CodeCallbackPanic = "HOOK_CALLBACK_PANIC"

type registration struct {
	id ulid.ULID
	cb Callback
}

// Bus dispatches named events to registered callbacks.
//
// Bus is safe for concurrent use. Every emission works on a snapshot of the
// callbacks registered when it started, so callbacks may register or remove
// other callbacks without affecting the pass in progress.
type Bus struct {
	hooks  map[Event][]registration
	logger *slog.Logger
	debug  atomic.Bool
	mu     sync.RWMutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithDebug sets the initial debug mode.
func WithDebug(debug bool) Option {
	return func(b *Bus) {
		b.debug.Store(debug)
	}
}

// WithLogger sets the logger used for failures and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bus with every lifecycle event present and empty.
func New(opts ...Option) *Bus {
	b := &Bus{
		hooks:  knownHooks(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func knownHooks() map[Event][]registration {
	hooks := make(map[Event][]registration, len(KnownEvents()))
	for _, e := range KnownEvents() {
		hooks[e] = nil
	}
	return hooks
}

// Subscription is the handle returned by On.
type Subscription struct {
	bus   *Bus
	event Event
	id    ulid.ULID
	once  sync.Once
}

// ID returns the identifier accepted by Bus.Off.
func (s *Subscription) ID() ulid.ULID {
	return s.id
}

// Event returns the event the callback is registered under.
func (s *Subscription) Event() Event {
	return s.event
}

// Unsubscribe removes the callback. Calls after the first are no-ops.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.Off(s.event, s.id)
	})
}

// On registers cb under event.
func (b *Bus) On(event Event, cb Callback) *Subscription {
	id := ulid.Make()

	b.mu.Lock()
	b.hooks[event] = append(b.hooks[event], registration{id: id, cb: cb})
	b.mu.Unlock()

	if b.debug.Load() {
		b.logger.Debug("hook registered", "event", event, "id", id.String())
	}
	return &Subscription{bus: b, event: event, id: id}
}

// Off removes the callback registered under event with the given ID.
// Unknown events and IDs are ignored.
func (b *Bus) Off(event Event, id ulid.ULID) {
	b.mu.Lock()
	regs, ok := b.hooks[event]
	removed := false
	if ok {
		i := slices.IndexFunc(regs, func(r registration) bool { return r.id == id })
		if i >= 0 {
			b.hooks[event] = slices.Delete(slices.Clone(regs), i, i+1)
			removed = true
		}
	}
	b.mu.Unlock()

	if removed && b.debug.Load() {
		b.logger.Debug("hook removed", "event", event, "id", id.String())
	}
}

// Emit runs every callback registered under event, in registration order,
// before returning.
func (b *Bus) Emit(ctx context.Context, event Event, args ...any) {
	regs := b.snapshot(event)
	recordEmission(event, ModeSync)
	if b.debug.Load() {
		b.logger.DebugContext(ctx, "emitting hook", "event", event, "callbacks", len(regs))
	}

	for _, r := range regs {
		if err := b.invoke(ctx, event, r, args); err != nil {
			b.fail(ctx, event, err)
		}
	}
}

// EmitAsync starts every callback registered under event in its own
// goroutine and returns a channel that is closed once all of them have
// settled. Failures are handled as in Emit.
func (b *Bus) EmitAsync(ctx context.Context, event Event, args ...any) <-chan struct{} {
	regs := b.snapshot(event)
	recordEmission(event, ModeAsync)
	if b.debug.Load() {
		b.logger.DebugContext(ctx, "emitting hook async", "event", event, "callbacks", len(regs))
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(regs))
	for _, r := range regs {
		go func() {
			defer wg.Done()
			if err := b.invoke(ctx, event, r, args); err != nil {
				b.fail(ctx, event, err)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// Clear removes callbacks. With events it empties only those events; with
// none it restores the initial set of empty lifecycle events.
func (b *Bus) Clear(events ...Event) {
	b.mu.Lock()
	if len(events) == 0 {
		b.hooks = knownHooks()
	} else {
		for _, e := range events {
			b.hooks[e] = nil
		}
	}
	b.mu.Unlock()

	if b.debug.Load() {
		b.logger.Debug("hooks cleared", "events", events)
	}
}

// RegisteredHooks returns the events that have at least one callback, sorted.
func (b *Bus) RegisteredHooks() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := make([]Event, 0, len(b.hooks))
	for e, regs := range b.hooks {
		if len(regs) > 0 {
			events = append(events, e)
		}
	}
	slices.Sort(events)
	return events
}

// HasCallbacks reports whether event has at least one callback.
func (b *Bus) HasCallbacks(event Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hooks[event]) > 0
}

// SetDebugMode toggles debug logging. Dispatch is unaffected.
func (b *Bus) SetDebugMode(debug bool) {
	b.debug.Store(debug)
}

// DebugMode reports whether debug logging is on.
func (b *Bus) DebugMode() bool {
	return b.debug.Load()
}

// snapshot copies the callbacks for event so dispatch never holds the lock.
func (b *Bus) snapshot(event Event) []registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.hooks[event])
}

func (b *Bus) invoke(ctx context.Context, event Event, r registration, args []any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = oops.Code(CodeCallbackPanic).
				In("hook").
				With("event", string(event)).
				With("callback", r.id.String()).
				Errorf("hook callback panicked: %v", rec)
		}
	}()
	return r.cb(ctx, args...)
}

// fail logs a callback failure and routes it to the Error event. Failures of
// Error callbacks stop here so a broken error handler cannot recurse.
func (b *Bus) fail(ctx context.Context, event Event, err error) {
	recordFailure(event)
	errutil.LogError(b.logger.With("event", string(event)), "hook callback failed", err)
	if event == Error {
		return
	}
	b.Emit(ctx, Error, err, event)
}
