package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentAttributesValidate(t *testing.T) {
	cases := []struct {
		name string
		a    AgentAttributes
		ok   bool
	}{
		{"valid", AgentAttributes{ID: "A1", Mobility: 0.5, Power: 1, DistanceToTarget: 10}, true},
		{"empty id", AgentAttributes{ID: " ", Mobility: 0.5}, false},
		{"mobility high", AgentAttributes{ID: "A1", Mobility: 1.2}, false},
		{"power negative", AgentAttributes{ID: "A1", Power: -0.1}, false},
		{"nan mobility", AgentAttributes{ID: "A1", Mobility: math.NaN()}, false},
		{"negative distance", AgentAttributes{ID: "A1", DistanceToTarget: -1}, false},
		{"inf distance", AgentAttributes{ID: "A1", DistanceToTarget: math.Inf(1)}, false},
		{"bad role", AgentAttributes{ID: "A1", Role: Role(7)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.a.Validate()
			if c.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidAttributes), "got %v", err)
		})
	}
}

func TestNewSnapshotStampsRoles(t *testing.T) {
	snap, err := NewSnapshot(
		[]AgentAttributes{{ID: "A1", Role: RoleDefense, Mobility: 0.5}},
		[]AgentAttributes{{ID: "D1", Mobility: 0.5}},
	)
	require.NoError(t, err)
	assert.Equal(t, RoleAttack, snap.Attack[0].Role)
	assert.Equal(t, RoleDefense, snap.Defense[0].Role)
	assert.Equal(t, 2, snap.Len())
}

func TestNewSnapshotDuplicate(t *testing.T) {
	_, err := NewSnapshot(
		[]AgentAttributes{{ID: "X"}},
		[]AgentAttributes{{ID: "X"}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateAgent)
}

func TestSnapshotFromMapsNaturalOrder(t *testing.T) {
	in := map[string]AttributeInput{
		"A10": {Mobility: 0.1},
		"A2":  {Mobility: 0.2},
		"A1":  {Mobility: 0.3},
	}
	snap, err := SnapshotFromMaps(in, map[string]AttributeInput{"D1": {}})
	require.NoError(t, err)
	ids := []string{snap.Attack[0].ID, snap.Attack[1].ID, snap.Attack[2].ID}
	assert.Equal(t, []string{"A1", "A2", "A10"}, ids)
}

func TestSortIDsMixed(t *testing.T) {
	ids := []string{"b", "a3", "a", "a12", "a1"}
	SortIDs(ids)
	assert.Equal(t, []string{"a", "a1", "a3", "a12", "b"}, ids)
}

func TestRoleText(t *testing.T) {
	b, err := RoleDefense.MarshalText()
	require.NoError(t, err)
	var r Role
	require.NoError(t, r.UnmarshalText(b))
	assert.Equal(t, RoleDefense, r)
	assert.Error(t, r.UnmarshalText([]byte("scout")))
}

func TestTaskGroupHelpers(t *testing.T) {
	g := TaskGroup{GroupID: 1, DefenseAgents: []string{"D1"}, AttackAgents: []string{"A1", "A2", "A3"}}
	assert.Equal(t, 4, g.Size())
	assert.Equal(t, []string{"D1", "A1", "A2", "A3"}, g.Members())
	c := g.Clone()
	assert.True(t, g.RemoveAttacker("A2"))
	assert.False(t, g.RemoveAttacker("A9"))
	assert.Equal(t, []string{"A1", "A3"}, g.AttackAgents)
	assert.Equal(t, []string{"A1", "A2", "A3"}, c.AttackAgents)
}
