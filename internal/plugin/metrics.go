// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for registry operation metrics.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Operations counts registry operations by kind and result. Rejected means a
// precondition failed; failed means a plugin callback returned an error.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_plugin_operations_total",
		Help: "Total number of plugin registry operations",
	},
	[]string{"operation", "result"},
)

// RegisterMetrics registers registry metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
}

func recordOperation(operation, result string) {
	Operations.WithLabelValues(operation, result).Inc()
}

// Collectors returns gauges reporting the registry's plugin counts.
func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "extkit_plugins_registered",
			Help: "Number of registered plugins",
		}, func() float64 { return float64(r.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "extkit_plugins_enabled",
			Help: "Number of enabled plugins",
		}, func() float64 { return float64(len(r.GetEnabled())) }),
	}
}
