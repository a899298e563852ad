package allocation

import (
	"sort"

	"github.com/kilianp07/taskalloc/core/logger"
	"github.com/kilianp07/taskalloc/core/model"
)

// Move records one attacker transferred by the rebalancer.
type Move struct {
	AgentID   string `json:"agent_id" yaml:"agent_id"`
	FromGroup int    `json:"from_group" yaml:"from_group"`
	ToGroup   int    `json:"to_group" yaml:"to_group"`
}

// Rebalancer moves low-threat attackers from overloaded to underloaded groups
// within a bounded move budget.
type Rebalancer struct {
	u      *Universe
	p      Params
	table  ShapleyTable
	threat func(model.AgentAttributes) float64
	log    logger.Logger
}

// NewRebalancer builds a rebalancer ranking attackers with threat.
func NewRebalancer(u *Universe, p Params, table ShapleyTable, threat func(model.AgentAttributes) float64, log logger.Logger) *Rebalancer {
	return &Rebalancer{u: u, p: p, table: table, threat: threat, log: logger.OrNop(log)}
}

// Rebalance mutates groups in place and returns the moves performed. Defense
// agents never move.
func (r *Rebalancer) Rebalance(groups []*model.TaskGroup) []Move {
	if len(groups) == 0 {
		return nil
	}
	ideal := float64(len(r.u.Attack())) / float64(len(groups))
	upper := ideal + r.p.LoadTolerance
	lower := ideal - r.p.LoadTolerance

	var over, under []*model.TaskGroup
	for _, g := range groups {
		switch load := float64(g.AttackLoad()); {
		case load > upper:
			over = append(over, g)
		case load < lower:
			under = append(under, g)
		}
	}
	sort.SliceStable(over, func(i, j int) bool {
		return over[i].AttackLoad() > over[j].AttackLoad()
	})

	var moves []Move
	for _, src := range over {
		for float64(src.AttackLoad()) > upper && len(under) > 0 && len(moves) < r.p.MaxRebalanceMoves {
			id := r.weakest(src)
			dst := leastLoaded(under)

			src.RemoveAttacker(id)
			dst.AttackAgents = append(dst.AttackAgents, id)
			refreshEstimate(src, r.table)
			refreshEstimate(dst, r.table)

			mv := Move{AgentID: id, FromGroup: src.GroupID, ToGroup: dst.GroupID}
			moves = append(moves, mv)
			r.log.Infof("rebalance: moved %s from group %d to group %d", id, mv.FromGroup, mv.ToGroup)

			kept := under[:0]
			for _, g := range under {
				if float64(g.AttackLoad()) < lower {
					kept = append(kept, g)
				}
			}
			under = kept
		}
	}
	return moves
}

// weakest returns the attacker of g with the lowest threat, first on ties.
func (r *Rebalancer) weakest(g *model.TaskGroup) string {
	best := ""
	var bestScore float64
	for i, id := range g.AttackAgents {
		a, _ := r.u.Agent(id)
		s := r.threat(a)
		if i == 0 || s < bestScore {
			best, bestScore = id, s
		}
	}
	return best
}

func leastLoaded(groups []*model.TaskGroup) *model.TaskGroup {
	best := groups[0]
	for _, g := range groups[1:] {
		if g.AttackLoad() < best.AttackLoad() {
			best = g
		}
	}
	return best
}
