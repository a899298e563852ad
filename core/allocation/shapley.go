package allocation

import (
	"math/bits"
	"math/rand"

	"gonum.org/v1/gonum/stat/combin"
)

// ShapleyTable maps agent id to its estimated Shapley value.
type ShapleyTable map[string]float64

// Max returns the largest value of the table, or 0 for an empty table.
func (t ShapleyTable) Max() float64 {
	first := true
	var max float64
	for _, v := range t {
		if first || v > max {
			max = v
			first = false
		}
	}
	return max
}

// Sum returns the sum of the values of the given ids.
func (t ShapleyTable) Sum(ids ...string) float64 {
	var s float64
	for _, id := range ids {
		s += t[id]
	}
	return s
}

// ShapleyMode tells how a table was computed.
type ShapleyMode int

const (
	ModeExact ShapleyMode = iota
	ModeSampled
)

func (m ShapleyMode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeSampled:
		return "sampled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m ShapleyMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ShapleyEvaluator estimates each agent's average marginal contribution.
// Populations up to Params.ExactThreshold are enumerated exactly; larger ones
// are estimated by Monte Carlo sampling driven by the injected rng.
type ShapleyEvaluator struct {
	model *ValueModel
	p     Params
	rng   *rand.Rand
}

// NewShapleyEvaluator returns an evaluator. A nil rng is replaced by one
// seeded with Params.Seed so that runs stay reproducible.
func NewShapleyEvaluator(m *ValueModel, p Params, rng *rand.Rand) *ShapleyEvaluator {
	if rng == nil {
		rng = rand.New(rand.NewSource(p.Seed))
	}
	return &ShapleyEvaluator{model: m, p: p, rng: rng}
}

// Mode returns the evaluation mode selected for the bound universe.
func (e *ShapleyEvaluator) Mode() ShapleyMode {
	if e.model.u.Len() <= e.p.ExactThreshold {
		return ModeExact
	}
	return ModeSampled
}

// Samples returns the number of trials per agent, 0 in exact mode.
func (e *ShapleyEvaluator) Samples() int {
	if e.Mode() == ModeExact {
		return 0
	}
	return e.p.sampleCount(e.model.u.Len())
}

// Evaluate computes the table for every agent of the universe.
func (e *ShapleyEvaluator) Evaluate() ShapleyTable {
	n := e.model.u.Len()
	table := make(ShapleyTable, n)
	if n == 0 {
		return table
	}
	var values []float64
	if e.Mode() == ModeExact {
		values = e.exact()
	} else {
		values = e.sampled()
	}
	for i, a := range e.model.u.agents {
		table[a.ID] = values[i]
	}
	return table
}

// exact enumerates every coalition once, memoizing v(S) by bitmask, then
// accumulates s!(n-s-1)!/n! · (v(S∪{d}) − v(S)) for every d ∉ S.
func (e *ShapleyEvaluator) exact() []float64 {
	n := e.model.u.Len()
	size := uint32(1) << uint(n)
	worth := make([]float64, size)
	buf := make([]int, 0, n)
	for mask := uint32(1); mask < size; mask++ {
		buf = maskMembers(mask, buf)
		worth[mask] = e.model.Value(buf)
	}

	// 1/(n·C(n-1,s)) == s!(n-s-1)!/n!
	weight := make([]float64, n)
	for s := 0; s < n; s++ {
		weight[s] = 1 / (float64(n) * float64(combin.Binomial(n-1, s)))
	}

	phi := make([]float64, n)
	for d := 0; d < n; d++ {
		bit := uint32(1) << uint(d)
		var acc float64
		for mask := uint32(0); mask < size; mask++ {
			if mask&bit != 0 {
				continue
			}
			acc += weight[bits.OnesCount32(mask)] * (worth[mask|bit] - worth[mask])
		}
		phi[d] = acc
	}
	return phi
}

// sampled draws a coalition size uniformly in [0, n-1], then a uniform
// subset of that size among the other agents, and averages the marginal
// contributions over the trials.
func (e *ShapleyEvaluator) sampled() []float64 {
	n := e.model.u.Len()
	trials := e.p.sampleCount(n)
	others := make([]int, 0, n-1)
	phi := make([]float64, n)
	for d := 0; d < n; d++ {
		others = others[:0]
		for i := 0; i < n; i++ {
			if i != d {
				others = append(others, i)
			}
		}
		var acc float64
		for t := 0; t < trials; t++ {
			k := e.rng.Intn(n)
			for i := 0; i < k; i++ {
				j := i + e.rng.Intn(len(others)-i)
				others[i], others[j] = others[j], others[i]
			}
			acc += e.model.Marginal(d, others[:k])
		}
		phi[d] = acc / float64(trials)
	}
	return phi
}
