package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
)

// PromSink records allocation runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	ratio     *prometheus.GaugeVec
	idle      prometheus.Gauge
	groupLoad *prometheus.GaugeVec
	moves     *prometheus.CounterVec
	publishes *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewPromSink registers allocation metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskalloc_runs_total",
			Help: "Total number of recorded allocation runs",
		}, []string{"mode", "rebalanced"}),
		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskalloc_load_balance_ratio",
			Help: "Min/max group size ratio of the last run",
		}, []string{"phase"}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskalloc_idle_groups",
			Help: "Groups without attack agents after the last run",
		}),
		groupLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskalloc_group_attack_load",
			Help: "Attack agents assigned to each group in the last run",
		}, []string{"group_id", "defense_agent"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskalloc_rebalance_moves_total",
			Help: "Attack agents moved between groups by the rebalancer",
		}, []string{"from_group", "to_group"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskalloc_publish_total",
			Help: "Results published downstream",
		}, []string{"transport", "success"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskalloc_run_failures_total",
			Help: "Allocation runs that failed, by last reached state",
		}, []string{"state"}),
	}

	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.ratio, err = register(reg, s.ratio); err != nil {
		return nil, err
	}
	if s.idle, err = register(reg, s.idle); err != nil {
		return nil, err
	}
	if s.groupLoad, err = register(reg, s.groupLoad); err != nil {
		return nil, err
	}
	if s.moves, err = register(reg, s.moves); err != nil {
		return nil, err
	}
	if s.publishes, err = register(reg, s.publishes); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// by an earlier sink.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun increments the run counter and updates the balance gauges.
func (s *PromSink) RecordRun(rec coremetrics.RunRecord) error {
	s.runs.WithLabelValues(rec.Mode, strconv.FormatBool(rec.Rebalanced)).Inc()
	s.ratio.WithLabelValues("before").Set(rec.RatioBefore)
	s.ratio.WithLabelValues("after").Set(rec.RatioAfter)
	s.idle.Set(float64(rec.IdleGroups))
	return nil
}

// RecordGroupLoads replaces the per-group load gauges with the given run.
func (s *PromSink) RecordGroupLoads(loads []coremetrics.GroupLoad) error {
	s.groupLoad.Reset()
	for _, l := range loads {
		s.groupLoad.WithLabelValues(strconv.Itoa(l.GroupID), l.DefenseAgent).Set(float64(l.AttackLoad))
	}
	return nil
}

// RecordMoves counts rebalance moves by source and destination group.
func (s *PromSink) RecordMoves(moves []coremetrics.MoveEvent) error {
	for _, m := range moves {
		s.moves.WithLabelValues(strconv.Itoa(m.FromGroup), strconv.Itoa(m.ToGroup)).Inc()
	}
	return nil
}

// RecordPublish counts publication outcomes.
func (s *PromSink) RecordPublish(ev coremetrics.PublishEvent) error {
	s.publishes.WithLabelValues(ev.Transport, strconv.FormatBool(ev.Success)).Inc()
	return nil
}

// RecordFailure counts failed runs by the state they reached.
func (s *PromSink) RecordFailure(ev coremetrics.FailureEvent) error {
	s.failures.WithLabelValues(ev.State).Inc()
	return nil
}
