// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts version checks by outcome (ok, config_error, no_signal, error).
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versionwatch_checks_total",
		Help: "Total version checks by outcome",
	}, []string{"outcome"})

	// CheckDuration tracks end-to-end check latency by source type.
	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "versionwatch_check_duration_seconds",
		Help:    "Version check duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	}, []string{"source"})

	// StatusTransitions counts status changes written by checks.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versionwatch_status_total",
		Help: "Statuses written by checks",
	}, []string{"status"})

	// EventsTotal counts domain events by type and delivery result.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versionwatch_events_total",
		Help: "Domain events by type and delivery result",
	}, []string{"event_type", "result"})

	// TasksTotal counts background tasks by result (ok, error, panic, dropped).
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versionwatch_tasks_total",
		Help: "Background tasks by result",
	}, []string{"result"})

	// AIEnrichmentTotal counts AI enrichment calls by outcome.
	AIEnrichmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versionwatch_ai_enrichment_total",
		Help: "AI enrichment calls by outcome",
	}, []string{"provider", "outcome"})

	// AIProviderAttempts tracks provider calls per enrichment, retries included.
	AIProviderAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "versionwatch_ai_provider_attempts",
		Help:    "Provider attempts per enrichment",
		Buckets: []float64{1, 2, 3, 4, 5, 8},
	})
)
