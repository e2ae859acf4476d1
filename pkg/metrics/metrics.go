package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered with the default registry at package init so
// every importer, tests included, can record without extra setup.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	TasksInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadflow_tasks_in_queue",
			Help: "Current number of submitted tasks waiting for a worker.",
		},
	)

	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_tasks_submitted_total",
			Help: "Total number of submissions.",
		},
		[]string{"result"}, // accepted, rejected, error
	)

	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_task_transitions_total",
			Help: "Lifecycle status changes by target status.",
		},
		[]string{"status"},
	)

	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_task_failures_total",
			Help: "Tasks that reached FAILED, by collaborator.",
		},
		[]string{"kind"}, // extraction, enrichment, export, unknown
	)

	RejectedTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadflow_rejected_transitions_total",
			Help: "Updates rejected because they would break a task invariant.",
		},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_task_duration_seconds",
			Help:    "Time from pickup to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	EnrichedLeads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_enriched_leads_total",
			Help: "Leads processed by enrichment, by outcome.",
		},
		[]string{"outcome"}, // found, empty, error
	)
)
