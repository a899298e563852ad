package metrics

import "time"

// RunRecord summarizes one allocation run.
type RunRecord struct {
	RunID       string
	Mode        string
	Agents      int
	Attackers   int
	Defenders   int
	Groups      int
	Samples     int
	Moves       int
	Rebalanced  bool
	RatioBefore float64
	RatioAfter  float64
	IdleGroups  int
	SpreadAfter int
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records allocation runs for observability purposes.
type MetricsSink interface {
	RecordRun(rec RunRecord) error
}

// GroupLoad is the final state of one group of a run.
type GroupLoad struct {
	RunID           string
	GroupID         int
	DefenseAgent    string
	AttackLoad      int
	ShapleyEstimate float64
	Time            time.Time
}

// GroupLoadRecorder records per-group loads.
type GroupLoadRecorder interface {
	RecordGroupLoads(loads []GroupLoad) error
}

// MoveEvent is one attacker moved by the rebalancer.
type MoveEvent struct {
	RunID     string
	AgentID   string
	FromGroup int
	ToGroup   int
	Time      time.Time
}

// MoveRecorder records rebalance moves.
type MoveRecorder interface {
	RecordMoves(moves []MoveEvent) error
}

// PublishEvent captures the outcome of publishing a result downstream.
type PublishEvent struct {
	RunID     string
	Transport string
	Success   bool
	Time      time.Time
}

// PublishRecorder records publication outcomes.
type PublishRecorder interface {
	RecordPublish(ev PublishEvent) error
}

// FailureEvent is a run that returned an error.
type FailureEvent struct {
	RunID string
	State string
	Error string
	Time  time.Time
}

// FailureRecorder records failed runs.
type FailureRecorder interface {
	RecordFailure(ev FailureEvent) error
}

// NopSink implements MetricsSink and every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunRecord) error          { return nil }
func (NopSink) RecordGroupLoads([]GroupLoad) error { return nil }
func (NopSink) RecordMoves([]MoveEvent) error      { return nil }
func (NopSink) RecordPublish(PublishEvent) error   { return nil }
func (NopSink) RecordFailure(FailureEvent) error   { return nil }
