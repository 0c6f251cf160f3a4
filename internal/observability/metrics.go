// Package observability exposes the operational counters/gauges the
// dispatch core's selection path produces, via
// github.com/prometheus/client_golang — grounded on the pack's FluxForge
// control-plane observability stack rather than the teacher's hand-rolled
// text-exposition writer, since the ecosystem already has this covered.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the dispatch core reports.
type Metrics struct {
	JobsDispatched     prometheus.Counter
	JobsStarved        prometheus.Counter
	LockConflicts      prometheus.Counter
	LimiterRejections  prometheus.Counter
	PagesIngested      prometheus.Counter
	PagesRejected      *prometheus.CounterVec
	LambdaRecalibrated prometheus.Counter
	NextJobsCount      prometheus.Gauge
}

// New registers and returns a Metrics instance against reg. Pass
// prometheus.DefaultRegisterer for process-global metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_dispatched_total",
			Help: "Total jobs returned by NextJob.",
		}),
		JobsStarved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_starved_total",
			Help: "Total NextJob calls that found no admissible, lockable candidate.",
		}),
		LockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_lock_conflicts_total",
			Help: "Total candidates skipped because another worker already held the review lock.",
		}),
		LimiterRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_limiter_rejections_total",
			Help: "Total candidates skipped because the domain was at its concurrency cap.",
		}),
		PagesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_pages_ingested_total",
			Help: "Total pages accepted by AddPage.",
		}),
		PagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_pages_rejected_total",
			Help: "Total pages rejected by AddPage, by reason.",
		}, []string{"reason"}),
		LambdaRecalibrated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_lambda_recalibrations_total",
			Help: "Total times the pending lambda score was consumed and redistributed.",
		}),
		NextJobsCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_next_jobs_count",
			Help: "Most recently observed count of pages in active domains.",
		}),
	}
}
