// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	ApplicationsReviewed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applications_reviewed_total",
			Help: "Credit application reviews by outcome status",
		},
		[]string{"status"},
	)

	LoansOriginated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loans_originated_total",
			Help: "Total number of loans originated",
		},
	)

	PaymentEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_applied_total",
			Help: "Payment events applied to the ledger, by provider",
		},
		[]string{"provider"},
	)

	PaymentEventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_duplicate_total",
			Help: "Payment events skipped as idempotent duplicates, by provider",
		},
		[]string{"provider"},
	)

	PaymentEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_dropped_total",
			Help: "Payment events accepted but dropped, by provider and reason",
		},
		[]string{"provider", "reason"},
	)
)
