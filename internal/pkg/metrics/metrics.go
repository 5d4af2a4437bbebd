package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "code_review",
		Name:      "rate_limit_decisions_total",
		Help:      "Rate limiter decisions by operation and outcome (allowed, limited, fail_open).",
	}, []string{"operation", "decision"})

	Reviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "code_review",
		Name:      "reviews_total",
		Help:      "Completed reviews by source (text, file) and outcome (ok, failed).",
	}, []string{"source", "outcome"})

	ReviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "code_review",
		Name:      "review_duration_seconds",
		Help:      "End-to-end latency of the review pipeline.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"source"})

	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "code_review",
		Name:      "auth_events_total",
		Help:      "Authentication events by type.",
	}, []string{"event"})
)
