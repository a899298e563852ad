package allocation

import "fmt"

// Params gathers every tuned constant of the value model, the Shapley
// estimator, the greedy assigner and the rebalancer. DefaultParams returns
// the reference values; each field can be overridden from configuration.
type Params struct {
	// Coalition value model.
	MobilityWeight        float64 `json:"mobility_weight"`
	PowerWeight           float64 `json:"power_weight"`
	ProximityWeight       float64 `json:"proximity_weight"`
	ProximityScale        float64 `json:"proximity_scale"`
	MobilitySynergyWeight float64 `json:"mobility_synergy_weight"`
	PowerComplementWeight float64 `json:"power_complement_weight"`
	DistanceSynergyCap    float64 `json:"distance_synergy_cap"`
	DistanceSynergyScale  float64 `json:"distance_synergy_scale"`
	BalanceBonusWeight    float64 `json:"balance_bonus_weight"`
	DispersionCostWeight  float64 `json:"dispersion_cost_weight"`
	MemberCost            float64 `json:"member_cost"`
	ValueFloor            float64 `json:"value_floor"`

	// Shapley estimator.
	ExactThreshold  int   `json:"exact_threshold"`
	MinSamples      int   `json:"min_samples"`
	MaxSamples      int   `json:"max_samples"`
	SamplesPerAgent int   `json:"samples_per_agent"`
	Seed            int64 `json:"seed"`

	// Threat score.
	ThreatShapleyWeight  float64 `json:"threat_shapley_weight"`
	ThreatMobilityWeight float64 `json:"threat_mobility_weight"`
	ThreatDistanceWeight float64 `json:"threat_distance_weight"`
	ThreatDistanceScale  float64 `json:"threat_distance_scale"`

	// Match score.
	LoadWeight       float64   `json:"load_weight"`
	CapabilityWeight float64   `json:"capability_weight"`
	DistanceWeight   float64   `json:"distance_weight"`
	CapabilityScale  float64   `json:"capability_scale"`
	MatchDistScale   float64   `json:"match_distance_scale"`
	LoadSteps        []float64 `json:"load_steps"` // index = current attackers, last entry applies beyond

	// Rebalancing.
	MinBalanceRatio   float64 `json:"min_balance_ratio"`
	MaxIdleGroups     int     `json:"max_idle_groups"`
	LoadTolerance     float64 `json:"load_tolerance"`
	MaxRebalanceMoves int     `json:"max_rebalance_moves"`
}

// DefaultParams returns the reference constants.
func DefaultParams() Params {
	return Params{
		MobilityWeight:        0.4,
		PowerWeight:           0.3,
		ProximityWeight:       0.3,
		ProximityScale:        50,
		MobilitySynergyWeight: 0.15,
		PowerComplementWeight: 0.1,
		DistanceSynergyCap:    0.1,
		DistanceSynergyScale:  100,
		BalanceBonusWeight:    0.1,
		DispersionCostWeight:  0.01,
		MemberCost:            0.02,
		ValueFloor:            0.1,

		ExactThreshold:  20,
		MinSamples:      100,
		MaxSamples:      1000,
		SamplesPerAgent: 5,
		Seed:            1,

		ThreatShapleyWeight:  0.4,
		ThreatMobilityWeight: 0.3,
		ThreatDistanceWeight: 0.3,
		ThreatDistanceScale:  30,

		LoadWeight:       0.6,
		CapabilityWeight: 0.25,
		DistanceWeight:   0.15,
		CapabilityScale:  2,
		MatchDistScale:   20,
		LoadSteps:        []float64{1.0, 0.7, 0.4, 0.1},

		MinBalanceRatio:   0.6,
		MaxIdleGroups:     1,
		LoadTolerance:     0.5,
		MaxRebalanceMoves: 20,
	}
}

// WithDefaults fills zero-valued fields from DefaultParams, for Params built
// field by field in code. Configuration decodes over DefaultParams instead,
// so explicit zeros survive there.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	setF := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	setI := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setF(&p.MobilityWeight, d.MobilityWeight)
	setF(&p.PowerWeight, d.PowerWeight)
	setF(&p.ProximityWeight, d.ProximityWeight)
	setF(&p.ProximityScale, d.ProximityScale)
	setF(&p.MobilitySynergyWeight, d.MobilitySynergyWeight)
	setF(&p.PowerComplementWeight, d.PowerComplementWeight)
	setF(&p.DistanceSynergyCap, d.DistanceSynergyCap)
	setF(&p.DistanceSynergyScale, d.DistanceSynergyScale)
	setF(&p.BalanceBonusWeight, d.BalanceBonusWeight)
	setF(&p.DispersionCostWeight, d.DispersionCostWeight)
	setF(&p.MemberCost, d.MemberCost)
	setF(&p.ValueFloor, d.ValueFloor)
	setI(&p.ExactThreshold, d.ExactThreshold)
	setI(&p.MinSamples, d.MinSamples)
	setI(&p.MaxSamples, d.MaxSamples)
	setI(&p.SamplesPerAgent, d.SamplesPerAgent)
	if p.Seed == 0 {
		p.Seed = d.Seed
	}
	setF(&p.ThreatShapleyWeight, d.ThreatShapleyWeight)
	setF(&p.ThreatMobilityWeight, d.ThreatMobilityWeight)
	setF(&p.ThreatDistanceWeight, d.ThreatDistanceWeight)
	setF(&p.ThreatDistanceScale, d.ThreatDistanceScale)
	setF(&p.LoadWeight, d.LoadWeight)
	setF(&p.CapabilityWeight, d.CapabilityWeight)
	setF(&p.DistanceWeight, d.DistanceWeight)
	setF(&p.CapabilityScale, d.CapabilityScale)
	setF(&p.MatchDistScale, d.MatchDistScale)
	if len(p.LoadSteps) == 0 {
		p.LoadSteps = append([]float64(nil), d.LoadSteps...)
	}
	setF(&p.MinBalanceRatio, d.MinBalanceRatio)
	setI(&p.MaxIdleGroups, d.MaxIdleGroups)
	setF(&p.LoadTolerance, d.LoadTolerance)
	setI(&p.MaxRebalanceMoves, d.MaxRebalanceMoves)
	return p
}

// Validate rejects parameter sets that would divide by zero or never
// terminate.
func (p Params) Validate() error {
	scales := []struct {
		name string
		v    float64
	}{
		{"proximity_scale", p.ProximityScale},
		{"distance_synergy_scale", p.DistanceSynergyScale},
		{"threat_distance_scale", p.ThreatDistanceScale},
		{"capability_scale", p.CapabilityScale},
		{"match_distance_scale", p.MatchDistScale},
	}
	for _, s := range scales {
		if s.v <= 0 {
			return fmt.Errorf("allocation: %s must be positive, got %v", s.name, s.v)
		}
	}
	if p.ValueFloor <= 0 {
		return fmt.Errorf("allocation: value_floor must be positive, got %v", p.ValueFloor)
	}
	if p.ExactThreshold < 0 || p.ExactThreshold > 24 {
		return fmt.Errorf("allocation: exact_threshold %d outside [0,24]", p.ExactThreshold)
	}
	if p.MinSamples <= 0 || p.MaxSamples < p.MinSamples {
		return fmt.Errorf("allocation: invalid sample bounds [%d,%d]", p.MinSamples, p.MaxSamples)
	}
	if p.SamplesPerAgent < 0 {
		return fmt.Errorf("allocation: samples_per_agent must not be negative")
	}
	if len(p.LoadSteps) == 0 {
		return fmt.Errorf("allocation: load_steps must not be empty")
	}
	if p.MaxRebalanceMoves < 0 {
		return fmt.Errorf("allocation: max_rebalance_moves must not be negative")
	}
	return nil
}

// loadFactor is the step function of the current attacker count.
func (p Params) loadFactor(attackers int) float64 {
	if attackers >= len(p.LoadSteps) {
		return p.LoadSteps[len(p.LoadSteps)-1]
	}
	return p.LoadSteps[attackers]
}

// sampleCount is min(MaxSamples, max(MinSamples, SamplesPerAgent*n)).
func (p Params) sampleCount(n int) int {
	s := p.SamplesPerAgent * n
	if s < p.MinSamples {
		s = p.MinSamples
	}
	if s > p.MaxSamples {
		s = p.MaxSamples
	}
	return s
}
