// Package metrics exposes Prometheus collectors for tuning runs and classification.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts closed-loop runs by action mode and result
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopo_closed_loop_runs_total",
		Help: "Total closed-loop runs by action mode and result",
	}, []string{"action_mode", "result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autopo_closed_loop_run_duration_seconds",
		Help:    "Closed-loop run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})

	// decisionsTotal counts per-SKU decisions by action
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopo_closed_loop_decisions_total",
		Help: "Total closed-loop decisions by action",
	}, []string{"action"})

	appliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopo_closed_loop_applied_total",
		Help: "Total target CSL changes written back to SKUs",
	})

	// classifiedSKUs holds the size of each variability category from the last classification
	classifiedSKUs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autopo_variability_skus",
		Help: "SKUs per demand variability category in the last classification",
	}, []string{"category"})
)

// RunResult is the minimal view of a finished run the collectors need.
type RunResult struct {
	ActionMode string
	Actions    map[string]int
	Applied    int
	Duration   time.Duration
}

// ObserveRun records a finished closed-loop run.
func ObserveRun(r RunResult) {
	runsTotal.WithLabelValues(r.ActionMode, "ok").Inc()
	runDuration.Observe(r.Duration.Seconds())
	for action, n := range r.Actions {
		decisionsTotal.WithLabelValues(action).Add(float64(n))
	}
	appliedTotal.Add(float64(r.Applied))
}

// ObserveRunFailure records a run that returned an error.
func ObserveRunFailure(actionMode string) {
	runsTotal.WithLabelValues(actionMode, "error").Inc()
}

// ObserveClassification replaces the per-category gauges.
func ObserveClassification(summary map[string]int) {
	classifiedSKUs.Reset()
	for category, n := range summary {
		classifiedSKUs.WithLabelValues(category).Set(float64(n))
	}
}
