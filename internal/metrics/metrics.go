// Package metrics exposes the process's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conflictlab",
		Name:      "sessions_created_total",
		Help:      "Sessions created since process start.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conflictlab",
		Name:      "sessions_active",
		Help:      "Live sessions currently held by the registry.",
	})

	RejoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conflictlab",
		Name:      "rejoin_attempts_total",
		Help:      "Rejoin attempts by outcome.",
	}, []string{"outcome"})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conflictlab",
		Name:      "phase_transitions_total",
		Help:      "Session phase transitions by target phase.",
	}, []string{"phase"})

	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conflictlab",
		Name:      "ws_connections_open",
		Help:      "Open websocket connections.",
	})
)
