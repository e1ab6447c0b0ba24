// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hook provides a named-event bus for lifecycle notifications.
package hook

import (
	"context"
	"errors"
)

// Event names a hook. Any string is accepted; the lifecycle events below are
// always present on a Bus.
type Event string

// Lifecycle events emitted by the SDK manager.
const (
	BeforeMount   Event = "beforeMount"
	AfterMount    Event = "afterMount"
	BeforeUnmount Event = "beforeUnmount"
	AfterUnmount  Event = "afterUnmount"
	StateChange   Event = "stateChange"
	Error         Event = "error"
)

// KnownEvents returns the lifecycle events in emission order.
func KnownEvents() []Event {
	return []Event{BeforeMount, AfterMount, BeforeUnmount, AfterUnmount, StateChange, Error}
}

// Callback handles an emitted event. A returned error (or a panic) is logged
// and re-emitted on the Error event; it never reaches the emitter.
type Callback func(ctx context.Context, args ...any) error

// ErrorArgs decodes the arguments of an Error emission: the event whose
// callback failed and the failure itself. Either value is zero when absent.
func ErrorArgs(args []any) (source Event, cause error) {
	if len(args) > 0 {
		switch v := args[0].(type) {
		case error:
			cause = v
		case string:
			cause = errors.New(v)
		}
	}
	if len(args) > 1 {
		switch v := args[1].(type) {
		case Event:
			source = v
		case string:
			source = Event(v)
		}
	}
	return source, cause
}
