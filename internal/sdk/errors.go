// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"slices"

	"github.com/samber/oops"

	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/pkg/errutil"
)

// Error codes for manager lifecycle operations.
const (
	CodeAlreadyInitialized   = "ALREADY_INITIALIZED"
	CodeDestroyed            = "SDK_DESTROYED"
	CodeNotInitialized       = "NOT_INITIALIZED"
	CodeInitializationFailed = "INITIALIZATION_FAILED"
	CodeDestructionFailed    = "DESTRUCTION_FAILED"
	CodeResetFailed          = "RESET_FAILED"
)

// Error contexts passed as the second argument of hook.Error emissions made
// by the manager itself.
const (
	ContextInitialization = "initialization"
	ContextDestruction    = "destruction"
	ContextReset          = "reset"
)

// knownCodes are passed through unchanged when a lifecycle step fails.
var knownCodes = append([]string{
	CodeAlreadyInitialized, CodeDestroyed, CodeNotInitialized,
	CodeInitializationFailed, CodeDestructionFailed, CodeResetFailed,
}, plugin.Codes()...)

// IsKnownCode reports whether code is one of the manager or registry codes.
func IsKnownCode(code string) bool {
	return slices.Contains(knownCodes, code)
}

func errs() oops.OopsErrorBuilder {
	return oops.In("sdk")
}

// ErrAlreadyInitialized is returned by a second Initialize.
func ErrAlreadyInitialized() error {
	return errs().Code(CodeAlreadyInitialized).Errorf("manager is already initialized")
}

// ErrDestroyed is returned by Initialize after Destroy.
func ErrDestroyed() error {
	return errs().Code(CodeDestroyed).
		Hint("create a new manager").
		Errorf("manager has been destroyed")
}

// ErrNotInitialized is returned by Reset before Initialize.
func ErrNotInitialized() error {
	return errs().Code(CodeNotInitialized).
		Hint("call Initialize first").
		Errorf("manager is not initialized")
}

// classify returns err unchanged when it carries a known code and otherwise
// wraps it under code. A foreign code is kept in context because oops
// reports the innermost code of a chain.
func classify(code, operation string, err error) error {
	inner := errutil.Code(err)
	if IsKnownCode(inner) {
		return err
	}
	b := errs().Code(code).With("operation", operation)
	if inner != "" {
		return b.With("cause_code", inner).Errorf("%s failed: %v", operation, err)
	}
	return b.Wrapf(err, "%s failed", operation)
}
