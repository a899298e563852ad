package allocation

import (
	"errors"
	"math"
	"sort"

	"github.com/kilianp07/taskalloc/core/logger"
	"github.com/kilianp07/taskalloc/core/model"
)

// ErrNoDefense is returned when attack agents exist but no group can receive
// them.
var ErrNoDefense = errors.New("allocation: attack agents present but no defense agent seeds a group")

// GreedyAssigner places every attack agent exactly once, highest threat first,
// into the group with the best match score.
type GreedyAssigner struct {
	u          *Universe
	p          Params
	table      ShapleyTable
	maxShapley float64
	log        logger.Logger
}

// NewGreedyAssigner prepares an assigner for one run.
func NewGreedyAssigner(u *Universe, p Params, table ShapleyTable, log logger.Logger) *GreedyAssigner {
	max := table.Max()
	if max <= 0 {
		max = 1
	}
	return &GreedyAssigner{u: u, p: p, table: table, maxShapley: max, log: logger.OrNop(log)}
}

// ThreatScore orders attack agents for assignment.
func (g *GreedyAssigner) ThreatScore(a model.AgentAttributes) float64 {
	p := g.p
	return p.ThreatShapleyWeight*(g.table[a.ID]/g.maxShapley) +
		p.ThreatMobilityWeight*a.Mobility +
		p.ThreatDistanceWeight/(1+a.DistanceToTarget/p.ThreatDistanceScale)
}

// MatchScore rates placing a into group.
func (g *GreedyAssigner) MatchScore(a model.AgentAttributes, group *model.TaskGroup) float64 {
	p := g.p
	load := p.loadFactor(group.AttackLoad())
	capability := group.ShapleyEstimate / p.CapabilityScale
	gap := math.Abs(a.DistanceToTarget - averageDistance(g.u, group))
	distance := 1 / (1 + gap/p.MatchDistScale)
	return p.LoadWeight*load + p.CapabilityWeight*capability + p.DistanceWeight*distance
}

// Assign appends every attack agent of the universe to one of groups. Ties
// between groups go to the first in creation order.
func (g *GreedyAssigner) Assign(groups []*model.TaskGroup) error {
	attack := g.u.Attack()
	if len(attack) == 0 {
		return nil
	}
	if len(groups) == 0 {
		return ErrNoDefense
	}

	remaining := make([]model.AgentAttributes, len(attack))
	copy(remaining, attack)
	threat := make(map[string]float64, len(remaining))
	for _, a := range remaining {
		threat[a.ID] = g.ThreatScore(a)
	}

	for len(remaining) > 0 {
		sort.SliceStable(remaining, func(i, j int) bool {
			return threat[remaining[i].ID] > threat[remaining[j].ID]
		})
		a := remaining[0]
		remaining = remaining[1:]

		best, bestScore := 0, math.Inf(-1)
		for i, grp := range groups {
			if s := g.MatchScore(a, grp); s > bestScore {
				best, bestScore = i, s
			}
		}
		target := groups[best]
		target.AttackAgents = append(target.AttackAgents, a.ID)
		refreshEstimate(target, g.table)
		g.log.Debugf("assigned %s to group %d (threat %.4f, match %.4f)", a.ID, target.GroupID, threat[a.ID], bestScore)
	}
	return nil
}
