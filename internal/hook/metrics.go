// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hook

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Emissions counts hook emissions by event and mode.
// Use RegisterMetrics to register this with a Prometheus registry.
var Emissions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_hook_emissions_total",
		Help: "Total number of hook emissions",
	},
	[]string{"event", "mode"},
)

// CallbackFailures counts hook callbacks that returned an error or panicked.
// Use RegisterMetrics to register this with a Prometheus registry.
var CallbackFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extkit_hook_callback_failures_total",
		Help: "Total number of failed hook callbacks",
	},
	[]string{"event"},
)

// Emission modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// RegisterMetrics registers hook metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Emissions)
	reg.MustRegister(CallbackFailures)
}

func recordEmission(event Event, mode string) {
	Emissions.WithLabelValues(string(event), mode).Inc()
}

func recordFailure(event Event) {
	CallbackFailures.WithLabelValues(string(event)).Inc()
}
