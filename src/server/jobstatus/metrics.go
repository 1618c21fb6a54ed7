package jobstatus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandUpdatesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "command_updates_total",
		Help:      "Command status writes, by kind (insert or append).",
	}, []string{"kind"})
	recomputeMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "progress_recomputes_total",
		Help:      "Progress recomputations, by outcome (changed, unchanged, failed).",
	}, []string{"outcome"})
	staleMarkedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "jobs_marked_stale_total",
		Help:      "Jobs marked stale, counting each ancestor reached by propagation.",
	})
	conflictsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "jobs_marked_conflicted_total",
		Help:      "Jobs marked as having unapplied changeset conflicts.",
	})
	suppressedErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "suppressed_errors_total",
		Help:      "Errors logged and dropped by best-effort operations, by operation.",
	}, []string{"op"})
	sweepDurationMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hoot",
		Subsystem: "jobstatus",
		Name:      "stale_sweep_duration_seconds",
		Help:      "Time taken by each stale sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)
