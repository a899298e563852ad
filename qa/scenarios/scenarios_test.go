package scenarios

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/core/allocation"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no scenarios found")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestParamsOverride(t *testing.T) {
	sc, err := Load("forced_rebalance.yaml")
	require.NoError(t, err)
	p, err := sc.AllocationParams()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1}, p.LoadSteps)
	assert.Equal(t, 1.0, p.CapabilityWeight)
	assert.Equal(t, allocation.DefaultParams().LoadWeight, p.LoadWeight)
}

func TestParamsOverrideKeepsZeros(t *testing.T) {
	sc := &Scenario{Params: map[string]any{
		"max_rebalance_moves": 0,
		"distance_weight":     0,
		"load_steps":          []any{1.0, 0.5},
	}}
	p, err := sc.AllocationParams()
	require.NoError(t, err)
	assert.Equal(t, 0, p.MaxRebalanceMoves)
	assert.Equal(t, 0.0, p.DistanceWeight)
	assert.Equal(t, []float64{1.0, 0.5}, p.LoadSteps)
	assert.Equal(t, allocation.DefaultParams().ExactThreshold, p.ExactThreshold)
}

func TestCheckReportsViolations(t *testing.T) {
	sc, err := Load("split_weak_attackers.yaml")
	require.NoError(t, err)
	sc.Expected.Together = [][]string{{"A2", "A3"}}
	sc.Expected.MinMoves = 3

	snap, err := sc.Snapshot()
	require.NoError(t, err)
	e, err := allocation.NewEngine(allocation.DefaultParams())
	require.NoError(t, err)
	res, err := e.Allocate(snap)
	require.NoError(t, err)

	violations := Check(sc, res)
	assert.Len(t, violations, 2)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("missing.yaml")
	require.Error(t, err)
}
