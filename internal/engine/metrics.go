package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_events_processed_total",
}, []string{"violation_type", "action"})

var actionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_action_failures_total",
}, []string{"action", "kind"})

var lockdownsTripped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_lockdowns_tripped_total",
})

var processDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "sentinel_process_duration_seconds",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
})

var pipelinePanics = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_pipeline_panics_total",
})
