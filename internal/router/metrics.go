package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "router",
			Name:      "attempts_total",
			Help:      "Provider attempts by classified outcome",
		},
		[]string{"provider", "outcome"},
	)

	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "factrouter",
			Subsystem: "router",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of a single provider attempt",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "router",
			Name:      "fallbacks_total",
			Help:      "Requests answered by a provider other than the first in the chain",
		},
		[]string{"task"},
	)

	terminalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "router",
			Name:      "terminal_failures_total",
			Help:      "Requests for which every provider failed",
		},
		[]string{"task"},
	)

	quotaMarksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "factrouter",
			Subsystem: "quota",
			Name:      "exhaustion_marks_total",
			Help:      "Quota exhaustion records written",
		},
		[]string{"provider"},
	)
)
