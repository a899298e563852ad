package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for the formation simulator.
type Config struct {
	AreaSize     float64       `json:"area_size"`
	TargetX      float64       `json:"target_x"`
	TargetY      float64       `json:"target_y"`
	Steps        int           `json:"steps"`
	TargetWeight float64       `json:"target_weight"`
	GroupWeight  float64       `json:"group_weight"`
	AttackBoost  float64       `json:"attack_boost"`
	Noise        float64       `json:"noise"`
	Seed         int64         `json:"seed"`
	StepInterval time.Duration `json:"step_interval"`
}

// DefaultConfig returns a 100x100 area with the target at (80, 80).
func DefaultConfig() Config {
	return Config{
		AreaSize:     100,
		TargetX:      80,
		TargetY:      80,
		Steps:        100,
		TargetWeight: 0.03,
		GroupWeight:  0.02,
		AttackBoost:  1.5,
		Noise:        0.2,
		Seed:         1,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.AreaSize <= 0 {
		return fmt.Errorf("simulation area_size must be positive, got %v", c.AreaSize)
	}
	if c.TargetX < 0 || c.TargetX > c.AreaSize || c.TargetY < 0 || c.TargetY > c.AreaSize {
		return fmt.Errorf("simulation target (%v, %v) outside area", c.TargetX, c.TargetY)
	}
	if c.Steps < 0 {
		return fmt.Errorf("simulation steps must be non-negative, got %d", c.Steps)
	}
	if c.TargetWeight < 0 || c.GroupWeight < 0 || c.AttackBoost < 0 || c.Noise < 0 {
		return fmt.Errorf("simulation weights and noise must be non-negative")
	}
	if c.StepInterval < 0 {
		return fmt.Errorf("simulation step_interval must be non-negative")
	}
	return nil
}
