package allocation

import "github.com/kilianp07/taskalloc/core/model"

// SeedGroups creates one group per defense agent, in input order, with ids
// starting at 1. The defense binding is permanent for the run.
func SeedGroups(u *Universe, table ShapleyTable) []*model.TaskGroup {
	defense := u.Defense()
	groups := make([]*model.TaskGroup, 0, len(defense))
	for i, d := range defense {
		groups = append(groups, &model.TaskGroup{
			GroupID:         i + 1,
			DefenseAgents:   []string{d.ID},
			AttackAgents:    []string{},
			ShapleyEstimate: table[d.ID],
		})
	}
	return groups
}

// refreshEstimate recomputes the group estimate from its current members.
func refreshEstimate(g *model.TaskGroup, table ShapleyTable) {
	g.ShapleyEstimate = table.Sum(g.DefenseAgents...) + table.Sum(g.AttackAgents...)
}

// averageDistance is the mean distance to target over every current member.
func averageDistance(u *Universe, g *model.TaskGroup) float64 {
	n := g.Size()
	if n == 0 {
		return 0
	}
	var sum float64
	for _, id := range g.DefenseAgents {
		sum += u.distance(id)
	}
	for _, id := range g.AttackAgents {
		sum += u.distance(id)
	}
	return sum / float64(n)
}
