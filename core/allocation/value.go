package allocation

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/stat"
)

// ValueModel scores coalitions of agents. The result depends only on the
// members. Internal scratch buffers make a model unsafe for concurrent use.
type ValueModel struct {
	u *Universe
	p Params

	mob  []float64
	dist []float64
}

// NewValueModel binds the model to a universe and parameter set.
func NewValueModel(u *Universe, p Params) *ValueModel {
	return &ValueModel{
		u:    u,
		p:    p,
		mob:  make([]float64, 0, u.Len()),
		dist: make([]float64, 0, u.Len()),
	}
}

// Value returns v(S) for the coalition given as indexes into the universe.
// The empty coalition is worth 0; any other coalition is worth at least
// Params.ValueFloor.
func (m *ValueModel) Value(members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	p := m.p
	m.mob = m.mob[:0]
	m.dist = m.dist[:0]

	var base float64
	for _, i := range members {
		a := m.u.agents[i]
		base += p.MobilityWeight*a.Mobility + p.PowerWeight*a.Power +
			p.ProximityWeight/(1+a.DistanceToTarget/p.ProximityScale)
		m.mob = append(m.mob, a.Mobility)
		m.dist = append(m.dist, a.DistanceToTarget)
	}

	var synergy float64
	for _, i := range members {
		if !m.u.isAttack(i) {
			continue
		}
		att := m.u.agents[i]
		for _, j := range members {
			if m.u.isAttack(j) {
				continue
			}
			def := m.u.agents[j]
			synergy += p.MobilitySynergyWeight * att.Mobility * def.Power
			synergy += p.PowerComplementWeight * math.Min(att.Power, def.Power)
			gap := math.Abs(att.DistanceToTarget - def.DistanceToTarget)
			synergy += math.Max(0, p.DistanceSynergyCap-gap/p.DistanceSynergyScale)
		}
	}

	var balance, cost float64
	if len(members) > 1 {
		balance = (1 - stat.PopStdDev(m.mob, nil)) * p.BalanceBonusWeight
		cost = stat.PopStdDev(m.dist, nil)*p.DispersionCostWeight + float64(len(members))*p.MemberCost
	}
	return math.Max(base+synergy+balance-cost, p.ValueFloor)
}

// ValueOf scores a coalition given by agent ids. Unknown ids are ignored.
func (m *ValueModel) ValueOf(ids ...string) float64 {
	members := make([]int, 0, len(ids))
	for _, id := range ids {
		if i := m.u.Index(id); i >= 0 {
			members = append(members, i)
		}
	}
	return m.Value(members)
}

// Marginal returns v(S ∪ {d}) − v(S). d must not already be in S.
func (m *ValueModel) Marginal(d int, coalition []int) float64 {
	without := m.Value(coalition)
	with := make([]int, len(coalition)+1)
	copy(with, coalition)
	with[len(coalition)] = d
	return m.Value(with) - without
}

// maskMembers expands a bitmask coalition into member indexes.
func maskMembers(mask uint32, buf []int) []int {
	buf = buf[:0]
	for mask != 0 {
		i := bits.TrailingZeros32(mask)
		buf = append(buf, i)
		mask &= mask - 1
	}
	return buf
}
