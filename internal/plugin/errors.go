// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/extkit/pkg/errutil"
)

// Error codes for registry operations.
const (
	CodeAlreadyExists          = "PLUGIN_ALREADY_EXISTS"
	CodeNotFound               = "PLUGIN_NOT_FOUND"
	CodeHasDependents          = "PLUGIN_HAS_DEPENDENTS"
	CodeHasEnabledDependents   = "PLUGIN_HAS_ENABLED_DEPENDENTS"
	CodeDependencyNotFound     = "DEPENDENCY_NOT_FOUND"
	CodeDependencyNotEnabled   = "DEPENDENCY_NOT_ENABLED"
	CodeCircularDependency     = "CIRCULAR_DEPENDENCY"
	CodeRegistrationFailed     = "PLUGIN_REGISTRATION_FAILED"
	CodeUnregistrationFailed   = "PLUGIN_UNREGISTRATION_FAILED"
	CodeEnableFailed           = "PLUGIN_ENABLE_FAILED"
	CodeDisableFailed          = "PLUGIN_DISABLE_FAILED"
	CodeInvalidManifest        = "PLUGIN_INVALID_MANIFEST"
	CodeDependencyVersionMatch = "DEPENDENCY_VERSION_MISMATCH"
)

// Codes lists every registry error code.
func Codes() []string {
	return []string{
		CodeAlreadyExists, CodeNotFound, CodeHasDependents, CodeHasEnabledDependents,
		CodeDependencyNotFound, CodeDependencyNotEnabled, CodeCircularDependency,
		CodeRegistrationFailed, CodeUnregistrationFailed, CodeEnableFailed, CodeDisableFailed,
	}
}

func errs() oops.OopsErrorBuilder {
	return oops.In("plugin")
}

// ErrAlreadyExists creates an error for a duplicate registration.
func ErrAlreadyExists(name string) error {
	return errs().Code(CodeAlreadyExists).
		With("plugin", name).
		Errorf("plugin %q is already registered", name)
}

// ErrNotFound creates an error for an unknown plugin.
func ErrNotFound(name string) error {
	return errs().Code(CodeNotFound).
		With("plugin", name).
		Errorf("plugin %q is not registered", name)
}

// ErrHasDependents creates an error for unregistering a plugin others depend on.
func ErrHasDependents(name string, dependents []string) error {
	return errs().Code(CodeHasDependents).
		With("plugin", name).
		With("dependents", dependents).
		Hint("unregister the dependents first").
		Errorf("plugin %q is required by %s", name, strings.Join(dependents, ", "))
}

// ErrHasEnabledDependents creates an error for disabling a plugin with enabled dependents.
func ErrHasEnabledDependents(name string, dependents []string) error {
	return errs().Code(CodeHasEnabledDependents).
		With("plugin", name).
		With("dependents", dependents).
		Hint("disable the dependents first").
		Errorf("plugin %q is required by enabled plugins %s", name, strings.Join(dependents, ", "))
}

// ErrDependencyNotFound creates an error for a dependency that is not registered.
func ErrDependencyNotFound(name, dependency string) error {
	return errs().Code(CodeDependencyNotFound).
		With("plugin", name).
		With("dependency", dependency).
		Hint("register the dependency first").
		Errorf("plugin %q depends on unregistered plugin %q", name, dependency)
}

// ErrDependencyNotEnabled creates an error for a dependency that is missing or disabled.
func ErrDependencyNotEnabled(name, dependency string) error {
	return errs().Code(CodeDependencyNotEnabled).
		With("plugin", name).
		With("dependency", dependency).
		Hint("enable the dependency first").
		Errorf("plugin %q depends on %q, which is not enabled", name, dependency)
}

// ErrCircularDependency creates an error for a dependency cycle.
func ErrCircularDependency(name string, cycle []string) error {
	return errs().Code(CodeCircularDependency).
		With("plugin", name).
		With("cycle", cycle).
		Errorf("registering %q creates a dependency cycle: %s", name, strings.Join(cycle, " -> "))
}

// lifecycleError wraps a callback failure with the operation's code.
//
// oops reports the innermost code of a chain, so a cause that already carries
// a code is recorded as text (with its code in context) instead of wrapped.
func lifecycleError(code, name, operation string, cause error) error {
	b := errs().Code(code).
		With("plugin", name).
		With("operation", operation)
	if inner := errutil.Code(cause); inner != "" {
		return b.With("cause_code", inner).
			Errorf("plugin %q %s failed: %v", name, operation, cause)
	}
	return b.Wrapf(cause, "plugin %q %s failed", name, operation)
}
