package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CounterAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortgage_counter_allocations_total",
			Help: "Total number of application ids allocated",
		},
		[]string{"strategy"},
	)

	CounterConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortgage_counter_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts while allocating ids",
		},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortgage_state_transitions_total",
			Help: "Total number of application state transitions",
		},
		[]string{"from", "to"},
	)

	DuplicatesReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortgage_duplicates_reconciled_total",
			Help: "Total number of stale application copies removed after interrupted moves",
		},
	)

	JobApplications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortgage_job_applications_total",
			Help: "Total number of applications handled by batch jobs",
		},
		[]string{"job", "outcome"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortgage_job_runs_total",
			Help: "Total number of batch job runs",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mortgage_job_duration_seconds",
			Help:    "Duration of batch job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortgage_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mortgage_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route"},
	)
)
