package allocation

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a run moves between states out of
// order.
var ErrInvalidTransition = errors.New("allocation: invalid run state transition")

// RunState is the lifecycle position of one allocation run.
type RunState int

const (
	StateInitialized RunState = iota
	StateShapleyComputed
	StateGroupsSeeded
	StateAttackersAssigned
	StateBalanced
	StateRebalancingInProgress
	StateRebalanced
	StateExported
)

var stateNames = map[RunState]string{
	StateInitialized:           "initialized",
	StateShapleyComputed:       "shapley_computed",
	StateGroupsSeeded:          "groups_seeded",
	StateAttackersAssigned:     "attackers_assigned",
	StateBalanced:              "balanced",
	StateRebalancingInProgress: "rebalancing_in_progress",
	StateRebalanced:            "rebalanced",
	StateExported:              "exported",
}

func (s RunState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var transitions = map[RunState][]RunState{
	StateInitialized:           {StateShapleyComputed},
	StateShapleyComputed:       {StateGroupsSeeded},
	StateGroupsSeeded:          {StateAttackersAssigned},
	StateAttackersAssigned:     {StateBalanced, StateRebalancingInProgress},
	StateBalanced:              {StateExported},
	StateRebalancingInProgress: {StateRebalanced},
	StateRebalanced:            {StateExported},
}

// runTracker enforces the run state machine and keeps its history.
type runTracker struct {
	state   RunState
	history []RunState
}

func newRunTracker() *runTracker {
	return &runTracker{state: StateInitialized, history: []RunState{StateInitialized}}
}

func (t *runTracker) advance(next RunState) error {
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			t.history = append(t.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, next)
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool { return len(transitions[s]) == 0 }
