package scenarios

import (
	"fmt"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/infra/metrics"
	"github.com/kilianp07/taskalloc/pkg/export"
)

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	params, err := sc.AllocationParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	snap, err := sc.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	engine, err := allocation.NewEngine(params, allocation.WithSink(sink), allocation.WithLogger(logger.NopLogger{}))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	res, err := engine.Allocate(snap)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, v := range Check(sc, res) {
		t.Error(v)
	}
	if n, err := testutil.GatherAndCount(reg, "taskalloc_runs_total"); err != nil || n != 1 {
		t.Errorf("expected one run series, got %d (%v)", n, err)
	}
}

// Check returns every property of sc violated by res, including the
// invariants that hold for any run.
func Check(sc *Scenario, res *allocation.Result) []string {
	var out []string
	fail := func(format string, args ...any) { out = append(out, fmt.Sprintf(format, args...)) }
	rec := export.FromResult(res)
	membership := rec.Membership()

	if len(rec.Groups) != len(sc.Defense) {
		fail("expected one group per defense agent, got %d groups for %d", len(rec.Groups), len(sc.Defense))
	}
	for i, g := range rec.Groups {
		if i < len(sc.Defense) && !slices.Equal(g.DefenseAgents, []string{sc.Defense[i].ID}) {
			fail("group %d anchored by %v, want %s", g.GroupID, g.DefenseAgents, sc.Defense[i].ID)
		}
		var sum float64
		for _, id := range append(append([]string{}, g.DefenseAgents...), g.AttackAgents...) {
			sum += rec.Shapley[id]
		}
		if d := sum - g.ShapleyEstimate; d > 1e-9 || d < -1e-9 {
			fail("group %d estimate %v, members sum to %v", g.GroupID, g.ShapleyEstimate, sum)
		}
	}
	seen := make(map[string]int)
	for _, g := range rec.Groups {
		for _, id := range g.AttackAgents {
			seen[id]++
		}
	}
	for _, a := range sc.Attack {
		if seen[a.ID] != 1 {
			fail("attacker %s assigned %d times", a.ID, seen[a.ID])
		}
	}
	if res.After.Spread() > res.Before.Spread() {
		fail("rebalancing widened the size spread from %d to %d", res.Before.Spread(), res.After.Spread())
	}

	e := sc.Expected
	if e.Groups != nil && len(rec.Groups) != *e.Groups {
		fail("expected %d groups, got %d", *e.Groups, len(rec.Groups))
	}
	if e.Rebalanced != nil && res.Rebalanced != *e.Rebalanced {
		fail("expected rebalanced=%v, got %v", *e.Rebalanced, res.Rebalanced)
	}
	if e.Residual != nil && res.Residual != *e.Residual {
		fail("expected residual=%v, got %v", *e.Residual, res.Residual)
	}
	if len(res.Moves) < e.MinMoves {
		fail("expected at least %d moves, got %d", e.MinMoves, len(res.Moves))
	}
	if e.MaxMoves != nil && len(res.Moves) > *e.MaxMoves {
		fail("expected at most %d moves, got %d", *e.MaxMoves, len(res.Moves))
	}
	if e.FirstAssigned != "" {
		gid, ok := membership[e.FirstAssigned]
		g, _ := rec.Group(gid)
		if !ok || len(g.AttackAgents) == 0 || g.AttackAgents[0] != e.FirstAssigned {
			fail("expected %s first in its group, got %v", e.FirstAssigned, g.AttackAgents)
		}
	}
	for _, set := range e.Together {
		if len(set) < 2 {
			continue
		}
		for _, id := range set[1:] {
			if membership[id] != membership[set[0]] {
				fail("expected %v in one group, %s is in %d and %s in %d", set, set[0], membership[set[0]], id, membership[id])
			}
		}
	}
	for _, set := range e.Apart {
		groups := make(map[int]string)
		for _, id := range set {
			if other, dup := groups[membership[id]]; dup {
				fail("expected %v in distinct groups, %s and %s share group %d", set, other, id, membership[id])
			}
			groups[membership[id]] = id
		}
	}
	return out
}
