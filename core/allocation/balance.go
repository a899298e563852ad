package allocation

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/taskalloc/core/model"
)

// BalanceMetrics describes how members are spread over the groups.
type BalanceMetrics struct {
	TotalGroups      int       `json:"total_groups" yaml:"total_groups"`
	GroupSizes       []int     `json:"group_sizes" yaml:"group_sizes"`
	AttackLoads      []int     `json:"attack_loads" yaml:"attack_loads"`
	AvgGroupSize     float64   `json:"avg_group_size" yaml:"avg_group_size"`
	GroupSizeStd     float64   `json:"group_size_std" yaml:"group_size_std"`
	MinGroupSize     int       `json:"min_group_size" yaml:"min_group_size"`
	MaxGroupSize     int       `json:"max_group_size" yaml:"max_group_size"`
	AvgAttackLoad    float64   `json:"avg_attack_load" yaml:"avg_attack_load"`
	AttackLoadStd    float64   `json:"attack_load_std" yaml:"attack_load_std"`
	LoadBalanceRatio float64   `json:"load_balance_ratio" yaml:"load_balance_ratio"`
	IdleGroups       int       `json:"idle_groups" yaml:"idle_groups"`
	ShapleyEstimates []float64 `json:"shapley_estimates" yaml:"shapley_estimates"`
}

// ValidateBalance computes the metrics of the current grouping. It never
// mutates the groups.
func ValidateBalance(groups []*model.TaskGroup) BalanceMetrics {
	m := BalanceMetrics{
		TotalGroups:      len(groups),
		GroupSizes:       make([]int, len(groups)),
		AttackLoads:      make([]int, len(groups)),
		ShapleyEstimates: make([]float64, len(groups)),
	}
	if len(groups) == 0 {
		return m
	}
	sizes := make([]float64, len(groups))
	loads := make([]float64, len(groups))
	for i, g := range groups {
		m.GroupSizes[i] = g.Size()
		m.AttackLoads[i] = g.AttackLoad()
		m.ShapleyEstimates[i] = g.ShapleyEstimate
		sizes[i] = float64(g.Size())
		loads[i] = float64(g.AttackLoad())
		if g.AttackLoad() == 0 {
			m.IdleGroups++
		}
	}
	m.AvgGroupSize, m.GroupSizeStd = stat.PopMeanStdDev(sizes, nil)
	m.AvgAttackLoad, m.AttackLoadStd = stat.PopMeanStdDev(loads, nil)
	m.MinGroupSize = int(floats.Min(sizes))
	m.MaxGroupSize = int(floats.Max(sizes))
	if m.MaxGroupSize > 0 {
		m.LoadBalanceRatio = float64(m.MinGroupSize) / float64(m.MaxGroupSize)
	}
	return m
}

// Spread is max(groupSize) − min(groupSize).
func (m BalanceMetrics) Spread() int { return m.MaxGroupSize - m.MinGroupSize }

// NeedsRebalance reports whether the grouping crosses the rebalance trigger.
func (m BalanceMetrics) NeedsRebalance(p Params) bool {
	if m.TotalGroups == 0 {
		return false
	}
	return m.LoadBalanceRatio < p.MinBalanceRatio || m.IdleGroups > p.MaxIdleGroups
}
