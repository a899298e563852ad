package allocation

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/taskalloc/core/events"
	"github.com/kilianp07/taskalloc/core/logger"
	"github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/core/model"
	"github.com/kilianp07/taskalloc/internal/eventbus"
)

// Result is the frozen outcome of one allocation run. Residual is set when
// the grouping still crosses the rebalance trigger after the move budget was
// spent.
type Result struct {
	RunID      string
	CreatedAt  time.Time
	Duration   time.Duration
	Mode       ShapleyMode
	Samples    int
	Groups     []model.TaskGroup
	Shapley    ShapleyTable
	Threat     map[string]float64
	Attributes model.Snapshot
	Before     BalanceMetrics
	After      BalanceMetrics
	Rebalanced bool
	Moves      []Move
	Residual   bool
	States     []RunState
}

// GroupOf returns the group id holding agent id, or 0.
func (r *Result) GroupOf(id string) int {
	for _, g := range r.Groups {
		for _, m := range g.Members() {
			if m == id {
				return g.GroupID
			}
		}
	}
	return 0
}

// Engine runs allocations. It holds no per-run state, so one Engine may serve
// concurrent callers as long as each call gets its own rng.
type Engine struct {
	p    Params
	log  logger.Logger
	sink metrics.MetricsSink
	bus  *eventbus.TypedBus[events.RunEvent]
	now  func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithSink sets the metrics sink that receives one record per run.
func WithSink(s metrics.MetricsSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithBus publishes run events on bus.
func WithBus(bus *eventbus.TypedBus[events.RunEvent]) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine validates p and builds an engine.
func NewEngine(p Params, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{p: p, log: logger.Nop{}, sink: metrics.NopSink{}, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Params returns the parameters the engine was built with.
func (e *Engine) Params() Params { return e.p }

// Allocate runs one allocation with a generator seeded from Params.Seed, so
// identical snapshots give identical results.
func (e *Engine) Allocate(snap model.Snapshot) (*Result, error) {
	return e.AllocateWithRand(snap, rand.New(rand.NewSource(e.p.Seed)))
}

// AllocateWithRand runs one allocation drawing Shapley samples from rng.
func (e *Engine) AllocateWithRand(snap model.Snapshot, rng *rand.Rand) (*Result, error) {
	start := e.now()
	runID := uuid.NewString()
	r := &run{e: e, id: runID, tracker: newRunTracker()}

	res, err := r.execute(snap, rng)
	if err != nil {
		runFailures.Inc()
		e.log.Errorf("allocation run %s failed in state %s: %v", runID, r.tracker.state, err)
		e.bus.Publish(events.RunEvent{RunID: runID, Kind: events.KindFailed, State: r.tracker.state.String(), Err: err, Time: e.now()})
		return nil, err
	}
	res.CreatedAt = start
	res.Duration = e.now().Sub(start)
	e.observe(res)
	return res, nil
}

// run carries the state of one invocation.
type run struct {
	e       *Engine
	id      string
	tracker *runTracker
}

func (r *run) advance(next RunState) error {
	if err := r.tracker.advance(next); err != nil {
		return err
	}
	r.e.log.Debugf("run %s: %s", r.id, next)
	r.e.bus.Publish(events.RunEvent{RunID: r.id, Kind: events.KindState, State: next.String(), Time: r.e.now()})
	return nil
}

func (r *run) execute(snap model.Snapshot, rng *rand.Rand) (*Result, error) {
	snap, err := model.NewSnapshot(snap.Attack, snap.Defense)
	if err != nil {
		return nil, fmt.Errorf("allocation: %w", err)
	}
	if len(snap.Attack) > 0 && len(snap.Defense) == 0 {
		return nil, ErrNoDefense
	}
	p := r.e.p
	log := r.e.log

	u := NewUniverse(snap)
	eval := NewShapleyEvaluator(NewValueModel(u, p), p, rng)
	table := eval.Evaluate()
	if eval.Mode() == ModeSampled {
		shapleySamples.Add(float64(eval.Samples() * u.Len()))
	}
	log.Debugw("shapley computed", map[string]any{
		"run_id": r.id, "agents": u.Len(), "mode": eval.Mode().String(), "samples": eval.Samples(),
	})
	if err := r.advance(StateShapleyComputed); err != nil {
		return nil, err
	}

	groups := SeedGroups(u, table)
	if err := r.advance(StateGroupsSeeded); err != nil {
		return nil, err
	}

	assigner := NewGreedyAssigner(u, p, table, log)
	if err := assigner.Assign(groups); err != nil {
		return nil, err
	}
	if err := r.advance(StateAttackersAssigned); err != nil {
		return nil, err
	}

	before := ValidateBalance(groups)
	var moves []Move
	rebalanced := before.NeedsRebalance(p)
	if rebalanced {
		if err := r.advance(StateRebalancingInProgress); err != nil {
			return nil, err
		}
		moves = NewRebalancer(u, p, table, assigner.ThreatScore, log).Rebalance(groups)
		for _, mv := range moves {
			r.e.bus.Publish(events.RunEvent{
				RunID: r.id, Kind: events.KindMove, State: StateRebalancingInProgress.String(),
				AgentID: mv.AgentID, FromGroup: mv.FromGroup, ToGroup: mv.ToGroup, Time: r.e.now(),
			})
		}
		if err := r.advance(StateRebalanced); err != nil {
			return nil, err
		}
	} else if err := r.advance(StateBalanced); err != nil {
		return nil, err
	}

	after := ValidateBalance(groups)
	residual := after.NeedsRebalance(p)
	if residual {
		log.Warnf("run %s: residual imbalance after %d moves (ratio %.3f, idle groups %d)",
			r.id, len(moves), after.LoadBalanceRatio, after.IdleGroups)
	}
	if err := r.advance(StateExported); err != nil {
		return nil, err
	}

	threat := make(map[string]float64, len(snap.Attack))
	for _, a := range snap.Attack {
		threat[a.ID] = assigner.ThreatScore(a)
	}
	frozen := make([]model.TaskGroup, len(groups))
	for i, g := range groups {
		frozen[i] = g.Clone()
	}
	if moves == nil {
		moves = []Move{}
	}
	return &Result{
		RunID:      r.id,
		Mode:       eval.Mode(),
		Samples:    eval.Samples(),
		Groups:     frozen,
		Shapley:    table,
		Threat:     threat,
		Attributes: snap,
		Before:     before,
		After:      after,
		Rebalanced: rebalanced,
		Moves:      moves,
		Residual:   residual,
		States:     append([]RunState(nil), r.tracker.history...),
	}, nil
}

// observe records the run on the prometheus collectors and the sink.
func (e *Engine) observe(res *Result) {
	mode := res.Mode.String()
	runsTotal.WithLabelValues(mode, strconv.FormatBool(res.Rebalanced)).Inc()
	runDuration.WithLabelValues(mode).Observe(res.Duration.Seconds())
	rebalanceMoves.Add(float64(len(res.Moves)))

	rec := metrics.RunRecord{
		RunID:       res.RunID,
		Mode:        mode,
		Agents:      res.Attributes.Len(),
		Attackers:   len(res.Attributes.Attack),
		Defenders:   len(res.Attributes.Defense),
		Groups:      len(res.Groups),
		Samples:     res.Samples,
		Moves:       len(res.Moves),
		Rebalanced:  res.Rebalanced,
		RatioBefore: res.Before.LoadBalanceRatio,
		RatioAfter:  res.After.LoadBalanceRatio,
		IdleGroups:  res.After.IdleGroups,
		SpreadAfter: res.After.Spread(),
		Duration:    res.Duration,
		Time:        res.CreatedAt,
	}
	if err := e.sink.RecordRun(rec); err != nil {
		e.log.Errorf("record run %s: %v", res.RunID, err)
	}
	if r, ok := e.sink.(metrics.GroupLoadRecorder); ok {
		loads := make([]metrics.GroupLoad, len(res.Groups))
		for i, g := range res.Groups {
			loads[i] = metrics.GroupLoad{
				RunID:           res.RunID,
				GroupID:         g.GroupID,
				DefenseAgent:    g.DefenseAgents[0],
				AttackLoad:      g.AttackLoad(),
				ShapleyEstimate: g.ShapleyEstimate,
				Time:            res.CreatedAt,
			}
		}
		if err := r.RecordGroupLoads(loads); err != nil {
			e.log.Errorf("record group loads %s: %v", res.RunID, err)
		}
	}
	if r, ok := e.sink.(metrics.MoveRecorder); ok && len(res.Moves) > 0 {
		evs := make([]metrics.MoveEvent, len(res.Moves))
		for i, mv := range res.Moves {
			evs[i] = metrics.MoveEvent{RunID: res.RunID, AgentID: mv.AgentID, FromGroup: mv.FromGroup, ToGroup: mv.ToGroup, Time: res.CreatedAt}
		}
		if err := r.RecordMoves(evs); err != nil {
			e.log.Errorf("record moves %s: %v", res.RunID, err)
		}
	}
}
