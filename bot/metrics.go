package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_cycles_total",
		Help: "The total number of poll cycles started",
	})

	cycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_cycle_errors_total",
		Help: "The total number of cycles aborted on feed or ledger errors",
	})

	postsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_posts_total",
		Help: "The total number of articles successfully posted",
	})

	postFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skypost_post_failures_total",
		Help: "The total number of per-article failures by stage",
	}, []string{"stage"})

	ledgerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skypost_ledger_conflicts_total",
		Help: "The total number of ledger writes rejected on a stale version token",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skypost_cycle_duration_seconds",
		Help:    "Duration of full poll cycles",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms, double each bucket, 10 buckets
	})
)
