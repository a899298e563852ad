package allocation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/core/model"
)

func agent(id string, mob, pow, dist float64) model.AgentAttributes {
	return model.AgentAttributes{ID: id, Mobility: mob, Power: pow, DistanceToTarget: dist}
}

func mustSnapshot(t *testing.T, attack, defense []model.AgentAttributes) model.Snapshot {
	t.Helper()
	snap, err := model.NewSnapshot(attack, defense)
	require.NoError(t, err)
	return snap
}

// scenarioSnapshot has one strong attacker and two identical weak ones.
func scenarioSnapshot(t *testing.T) model.Snapshot {
	return mustSnapshot(t,
		[]model.AgentAttributes{
			agent("A1", 1.0, 1.0, 45),
			agent("A2", 0.2, 0.2, 50),
			agent("A3", 0.2, 0.2, 50),
		},
		[]model.AgentAttributes{
			agent("D1", 0.5, 0.5, 50),
			agent("D2", 0.5, 0.5, 50),
		},
	)
}

// randomSnapshot draws attributes from a seeded generator.
func randomSnapshot(t *testing.T, seed int64, nAttack, nDefense int) model.Snapshot {
	rng := rand.New(rand.NewSource(seed))
	draw := func(prefix string, n int) []model.AgentAttributes {
		out := make([]model.AgentAttributes, n)
		for i := range out {
			out[i] = agent(fmt.Sprintf("%s%d", prefix, i+1), rng.Float64(), rng.Float64(), rng.Float64()*200)
		}
		return out
	}
	return mustSnapshot(t, draw("A", nAttack), draw("D", nDefense))
}

func attackIDs(groups []*model.TaskGroup) []string {
	var ids []string
	for _, g := range groups {
		ids = append(ids, g.AttackAgents...)
	}
	return ids
}
