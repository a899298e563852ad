// Package scenarios runs YAML allocation scenarios through the engine and
// checks the expected grouping properties.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/factory"
	"github.com/kilianp07/taskalloc/core/model"
)

type AgentDef struct {
	ID       string  `yaml:"id"`
	Mobility float64 `yaml:"mobility"`
	Power    float64 `yaml:"power"`
	Distance float64 `yaml:"distance"`
}

func (a AgentDef) ToModel(role model.Role) model.AgentAttributes {
	return model.AgentAttributes{
		ID:               a.ID,
		Role:             role,
		Mobility:         a.Mobility,
		Power:            a.Power,
		DistanceToTarget: a.Distance,
	}
}

// Expected lists the properties checked after the run. Unset fields are not
// checked.
type Expected struct {
	Groups        *int       `yaml:"groups,omitempty"`
	Rebalanced    *bool      `yaml:"rebalanced,omitempty"`
	MinMoves      int        `yaml:"min_moves,omitempty"`
	MaxMoves      *int       `yaml:"max_moves,omitempty"`
	FirstAssigned string     `yaml:"first_assigned,omitempty"`
	Together      [][]string `yaml:"together,omitempty"`
	Apart         [][]string `yaml:"apart,omitempty"`
	Residual      *bool      `yaml:"residual,omitempty"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Params      map[string]any `yaml:"params,omitempty"`
	Attack      []AgentDef     `yaml:"attack"`
	Defense     []AgentDef     `yaml:"defense"`
	Expected    Expected       `yaml:"expected"`
}

// Snapshot builds the validated attribute snapshot.
func (s *Scenario) Snapshot() (model.Snapshot, error) {
	attack := make([]model.AgentAttributes, len(s.Attack))
	for i, a := range s.Attack {
		attack[i] = a.ToModel(model.RoleAttack)
	}
	defense := make([]model.AgentAttributes, len(s.Defense))
	for i, d := range s.Defense {
		defense[i] = d.ToModel(model.RoleDefense)
	}
	return model.NewSnapshot(attack, defense)
}

// AllocationParams decodes the params overrides over the defaults. Keys
// set to zero stay zero.
func (s *Scenario) AllocationParams() (allocation.Params, error) {
	p := allocation.DefaultParams()
	if len(s.Params) == 0 {
		return p, nil
	}
	if _, ok := s.Params["load_steps"]; ok {
		p.LoadSteps = nil
	}
	if err := factory.Decode(s.Params, &p); err != nil {
		return allocation.Params{}, err
	}
	return p, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
