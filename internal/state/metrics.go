// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package state

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels for store metrics.
const (
	OpSet    = "set"
	OpUpdate = "update"
	OpReset  = "reset"
	OpLoad   = "load"
	OpSave   = "save"
	OpDelete = "delete"
)

// Changes counts committed state changes by operation.
// Use RegisterMetrics to register this with a Prometheus registry.
var Changes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_state_changes_total",
		Help: "Total number of committed state changes",
	},
	[]string{"operation"},
)

// PersistenceFailures counts absorbed medium and codec failures by operation.
// Use RegisterMetrics to register this with a Prometheus registry.
var PersistenceFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_state_persistence_failures_total",
		Help: "Total number of state persistence failures",
	},
	[]string{"operation"},
)

// RegisterMetrics registers store metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Changes)
	reg.MustRegister(PersistenceFailures)
}
