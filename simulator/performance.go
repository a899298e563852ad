package simulator

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Performance summarizes a frame.
type Performance struct {
	Step                int             `json:"step"`
	AvgDistanceToTarget float64         `json:"avg_distance_to_target"`
	Cohesion            map[int]float64 `json:"group_cohesion"`
}

// Performance returns the average distance to target over all agents and,
// per group, the mean pairwise distance between members (0 for groups with
// fewer than two members).
func (s *Simulation) Performance() Performance {
	p := Performance{Step: s.step, Cohesion: make(map[int]float64, len(s.groups))}
	if len(s.agents) > 0 {
		var total float64
		for _, a := range s.agents {
			total += r2.Norm(r2.Sub(a.Position, s.target))
		}
		p.AvgDistanceToTarget = total / float64(len(s.agents))
	}
	for _, gid := range s.order {
		idx := s.groups[gid]
		var sum float64
		pairs := 0
		for i := 0; i < len(idx); i++ {
			for j := i + 1; j < len(idx); j++ {
				sum += r2.Norm(r2.Sub(s.agents[idx[i]].Position, s.agents[idx[j]].Position))
				pairs++
			}
		}
		if pairs > 0 {
			p.Cohesion[gid] = sum / float64(pairs)
		} else {
			p.Cohesion[gid] = 0
		}
	}
	return p
}
