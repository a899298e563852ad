package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	rebalanceMoves prometheus.Counter
	shapleySamples prometheus.Counter
	runFailures    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_runs_total",
			Help: "Number of completed allocation runs",
		},
		[]string{"mode", "rebalanced"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocation_run_duration_seconds",
			Help:    "Wall time of one allocation run",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"mode"},
	)
	moves := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_rebalance_moves_total",
			Help: "Number of attackers moved by the rebalancer",
		},
	)
	samples := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_shapley_samples_total",
			Help: "Number of Monte Carlo trials drawn by the Shapley evaluator",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_run_failures_total",
			Help: "Number of allocation runs that returned an error",
		},
	)
	return runs, dur, moves, samples, fail
}

func init() {
	runsTotal, runDuration, rebalanceMoves, shapleySamples, runFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(runsTotal, runDuration, rebalanceMoves, shapleySamples, runFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	runsTotal, runDuration, rebalanceMoves, shapleySamples, runFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
