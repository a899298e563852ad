// Package simulator moves the agents of an allocation record inside a square
// area: every agent drifts toward the target and toward its group centroid,
// attack agents faster, with Gaussian noise.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/kilianp07/taskalloc/core/model"
	"github.com/kilianp07/taskalloc/pkg/export"
)

// Agent is the simulated state of one agent.
type Agent struct {
	ID       string     `json:"id"`
	Role     model.Role `json:"role"`
	GroupID  int        `json:"group_id"`
	Position r2.Vec     `json:"position"`
}

// Frame is the state of every agent after a step. Step 0 is the initial
// placement.
type Frame struct {
	Step   int     `json:"step"`
	Agents []Agent `json:"agents"`
}

// Simulation holds the mutable state of one run.
type Simulation struct {
	cfg    Config
	rng    *rand.Rand
	target r2.Vec
	agents []Agent
	groups map[int][]int
	order  []int
	step   int
}

// New places the agents of rec around the target. Each agent starts at its
// distance to target along a random bearing, clipped to the area. A nil rng
// is seeded from cfg.Seed.
func New(cfg Config, rec export.Record, rng *rand.Rand) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	dist := make(map[string]float64, len(rec.Attributes))
	for _, a := range rec.Attributes {
		dist[a.ID] = a.DistanceToTarget
	}
	s := &Simulation{
		cfg:    cfg,
		rng:    rng,
		target: r2.Vec{X: cfg.TargetX, Y: cfg.TargetY},
		groups: make(map[int][]int, len(rec.Groups)),
	}
	add := func(id string, role model.Role, gid int) error {
		d, ok := dist[id]
		if !ok {
			return fmt.Errorf("simulator: agent %s has no attributes in record %s", id, rec.RunID)
		}
		angle := s.rng.Float64() * 2 * math.Pi
		pos := r2.Add(s.target, r2.Scale(d, r2.Vec{X: math.Cos(angle), Y: math.Sin(angle)}))
		s.groups[gid] = append(s.groups[gid], len(s.agents))
		s.agents = append(s.agents, Agent{ID: id, Role: role, GroupID: gid, Position: s.clip(pos)})
		return nil
	}
	for _, g := range rec.Groups {
		s.order = append(s.order, g.GroupID)
		for _, id := range g.DefenseAgents {
			if err := add(id, model.RoleDefense, g.GroupID); err != nil {
				return nil, err
			}
		}
		for _, id := range g.AttackAgents {
			if err := add(id, model.RoleAttack, g.GroupID); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Simulation) clip(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: math.Max(0, math.Min(s.cfg.AreaSize, p.X)),
		Y: math.Max(0, math.Min(s.cfg.AreaSize, p.Y)),
	}
}

// Frame returns a copy of the current state.
func (s *Simulation) Frame() Frame {
	return Frame{Step: s.step, Agents: append([]Agent(nil), s.agents...)}
}

// Target returns the target position.
func (s *Simulation) Target() r2.Vec { return s.target }

// Step advances every agent once. Centroids are taken before anyone moves.
func (s *Simulation) Step() Frame {
	centers := make(map[int]r2.Vec, len(s.groups))
	for gid, idx := range s.groups {
		centers[gid] = s.centroid(idx)
	}
	for _, gid := range s.order {
		for _, i := range s.groups[gid] {
			a := &s.agents[i]
			toTarget := r2.Scale(s.cfg.TargetWeight, r2.Sub(s.target, a.Position))
			if a.Role == model.RoleAttack {
				toTarget = r2.Scale(s.cfg.AttackBoost, toTarget)
			}
			toGroup := r2.Scale(s.cfg.GroupWeight, r2.Sub(centers[gid], a.Position))
			noise := r2.Vec{X: s.rng.NormFloat64() * s.cfg.Noise, Y: s.rng.NormFloat64() * s.cfg.Noise}
			a.Position = s.clip(r2.Add(a.Position, r2.Add(r2.Add(toTarget, toGroup), noise)))
		}
	}
	s.step++
	return s.Frame()
}

func (s *Simulation) centroid(idx []int) r2.Vec {
	var c r2.Vec
	for _, i := range idx {
		c = r2.Add(c, s.agents[i].Position)
	}
	return r2.Scale(1/float64(len(idx)), c)
}

// Run emits the initial frame then Config.Steps more, waiting StepInterval
// between steps. It stops early when ctx is done or fn fails.
func (s *Simulation) Run(ctx context.Context, fn func(Frame) error) error {
	if err := fn(s.Frame()); err != nil {
		return err
	}
	var tick <-chan time.Time
	if s.cfg.StepInterval > 0 {
		t := time.NewTicker(s.cfg.StepInterval)
		defer t.Stop()
		tick = t.C
	}
	for i := 0; i < s.cfg.Steps; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s.Step()); err != nil {
			return err
		}
	}
	return nil
}
