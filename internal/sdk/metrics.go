// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Lifecycle result labels.
const (
	resultSuccess = "success"
	resultFailed  = "failed"
)

// Lifecycle counts Initialize, Destroy and Reset calls by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var Lifecycle = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_sdk_lifecycle_total",
		Help: "Total number of manager lifecycle operations",
	},
	[]string{"operation", "result"},
)

// RegisterMetrics registers manager metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Lifecycle)
}

func recordLifecycle(operation string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailed
	}
	Lifecycle.WithLabelValues(operation, result).Inc()
}
