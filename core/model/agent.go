package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Role identifies which side of the allocation an agent belongs to.
type Role int

const (
	RoleAttack Role = iota
	RoleDefense
)

// String returns a human-readable representation of the role.
func (r Role) String() string {
	switch r {
	case RoleAttack:
		return "attack"
	case RoleDefense:
		return "defense"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if r != RoleAttack && r != RoleDefense {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "attack":
		*r = RoleAttack
	case "defense":
		*r = RoleDefense
	default:
		return fmt.Errorf("unknown role %q", string(b))
	}
	return nil
}

var (
	// ErrInvalidAttributes is returned when an attribute record is out of range.
	ErrInvalidAttributes = errors.New("invalid agent attributes")
	// ErrDuplicateAgent is returned when the same id appears twice in a snapshot.
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// AgentAttributes holds the normalized attributes of one agent for a run.
type AgentAttributes struct {
	ID               string  `json:"id" yaml:"id"`
	Role             Role    `json:"role" yaml:"role"`
	Mobility         float64 `json:"mobility" yaml:"mobility"`                     // 0..1
	Power            float64 `json:"power" yaml:"power"`                           // 0..1
	DistanceToTarget float64 `json:"distance_to_target" yaml:"distance_to_target"` // >= 0
}

// Validate checks that the record is complete and within range.
func (a AgentAttributes) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidAttributes)
	}
	if a.Role != RoleAttack && a.Role != RoleDefense {
		return fmt.Errorf("%w: agent %s has unknown role %d", ErrInvalidAttributes, a.ID, int(a.Role))
	}
	if !unit(a.Mobility) {
		return fmt.Errorf("%w: agent %s mobility %v outside [0,1]", ErrInvalidAttributes, a.ID, a.Mobility)
	}
	if !unit(a.Power) {
		return fmt.Errorf("%w: agent %s power %v outside [0,1]", ErrInvalidAttributes, a.ID, a.Power)
	}
	if math.IsNaN(a.DistanceToTarget) || math.IsInf(a.DistanceToTarget, 0) || a.DistanceToTarget < 0 {
		return fmt.Errorf("%w: agent %s distance %v must be finite and non-negative", ErrInvalidAttributes, a.ID, a.DistanceToTarget)
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// AttributeInput is the per-agent shape delivered by the ingestion adapters.
type AttributeInput struct {
	Mobility         float64 `json:"mobility" yaml:"mobility"`
	Power            float64 `json:"power" yaml:"power"`
	DistanceToTarget float64 `json:"distance_to_target" yaml:"distance_to_target"`
}

// Snapshot is the validated attribute table for one allocation run.
// Attack and Defense keep their input order.
type Snapshot struct {
	Attack  []AgentAttributes `json:"attack"`
	Defense []AgentAttributes `json:"defense"`
}

// NewSnapshot validates the records, stamps their roles and rejects duplicate ids.
func NewSnapshot(attack, defense []AgentAttributes) (Snapshot, error) {
	seen := make(map[string]struct{}, len(attack)+len(defense))
	stamp := func(in []AgentAttributes, role Role) ([]AgentAttributes, error) {
		out := make([]AgentAttributes, len(in))
		for i, a := range in {
			a.Role = role
			if err := a.Validate(); err != nil {
				return nil, err
			}
			if _, dup := seen[a.ID]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID)
			}
			seen[a.ID] = struct{}{}
			out[i] = a
		}
		return out, nil
	}
	att, err := stamp(attack, RoleAttack)
	if err != nil {
		return Snapshot{}, err
	}
	def, err := stamp(defense, RoleDefense)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Attack: att, Defense: def}, nil
}

// SnapshotFromMaps builds a snapshot from the per-role mappings of the input
// contract. Map iteration order is random, so ids are ordered naturally
// (A2 before A10) to keep group numbering reproducible.
func SnapshotFromMaps(attack, defense map[string]AttributeInput) (Snapshot, error) {
	return NewSnapshot(fromMap(attack), fromMap(defense))
}

func fromMap(m map[string]AttributeInput) []AgentAttributes {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortIDs(ids)
	out := make([]AgentAttributes, len(ids))
	for i, id := range ids {
		in := m[id]
		out[i] = AgentAttributes{ID: id, Mobility: in.Mobility, Power: in.Power, DistanceToTarget: in.DistanceToTarget}
	}
	return out
}

// SortIDs sorts agent identifiers by alphabetic prefix, then numeric suffix,
// then lexically.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
}

func lessID(a, b string) bool {
	pa, na, oka := splitID(a)
	pb, nb, okb := splitID(b)
	if pa != pb {
		return pa < pb
	}
	if oka && okb && na != nb {
		return na < nb
	}
	if oka != okb {
		return !oka
	}
	return a < b
}

func splitID(id string) (string, int, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}

// Len returns the size of the universe.
func (s Snapshot) Len() int { return len(s.Attack) + len(s.Defense) }

// Empty reports whether the snapshot contains no agents at all.
func (s Snapshot) Empty() bool { return s.Len() == 0 }
