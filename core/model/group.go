package model

// TaskGroup is one defense-anchored group of agents.
type TaskGroup struct {
	GroupID         int      `json:"group_id"`
	DefenseAgents   []string `json:"defense_agents"`
	AttackAgents    []string `json:"attack_agents"` // assignment order
	ShapleyEstimate float64  `json:"shapley_estimate"`
}

// Members returns defense agents followed by attack agents.
func (g TaskGroup) Members() []string {
	out := make([]string, 0, len(g.DefenseAgents)+len(g.AttackAgents))
	out = append(out, g.DefenseAgents...)
	return append(out, g.AttackAgents...)
}

// Size is the total number of members.
func (g TaskGroup) Size() int { return len(g.DefenseAgents) + len(g.AttackAgents) }

// AttackLoad is the number of attack agents in the group.
func (g TaskGroup) AttackLoad() int { return len(g.AttackAgents) }

// Clone returns a deep copy so that callers cannot alias run state.
func (g TaskGroup) Clone() TaskGroup {
	g.DefenseAgents = append([]string(nil), g.DefenseAgents...)
	g.AttackAgents = append([]string(nil), g.AttackAgents...)
	if g.AttackAgents == nil {
		g.AttackAgents = []string{}
	}
	return g
}

// RemoveAttacker drops id from AttackAgents keeping the order of the others.
// It reports whether the agent was present.
func (g *TaskGroup) RemoveAttacker(id string) bool {
	for i, a := range g.AttackAgents {
		if a == id {
			g.AttackAgents = append(g.AttackAgents[:i], g.AttackAgents[i+1:]...)
			return true
		}
	}
	return false
}
