package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTrackerBalancedPath(t *testing.T) {
	tr := newRunTracker()
	for _, s := range []RunState{StateShapleyComputed, StateGroupsSeeded, StateAttackersAssigned, StateBalanced, StateExported} {
		require.NoError(t, tr.advance(s))
	}
	assert.Equal(t, StateExported, tr.state)
	assert.True(t, tr.state.Terminal())
	assert.Len(t, tr.history, 6)
}

func TestRunTrackerRebalancePath(t *testing.T) {
	tr := newRunTracker()
	for _, s := range []RunState{StateShapleyComputed, StateGroupsSeeded, StateAttackersAssigned,
		StateRebalancingInProgress, StateRebalanced, StateExported} {
		require.NoError(t, tr.advance(s))
	}
	assert.Equal(t, []RunState{StateInitialized, StateShapleyComputed, StateGroupsSeeded, StateAttackersAssigned,
		StateRebalancingInProgress, StateRebalanced, StateExported}, tr.history)
}

func TestRunTrackerRejectsSkips(t *testing.T) {
	tr := newRunTracker()
	err := tr.advance(StateGroupsSeeded)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateInitialized, tr.state)

	for _, s := range []RunState{StateShapleyComputed, StateGroupsSeeded, StateAttackersAssigned, StateBalanced} {
		require.NoError(t, tr.advance(s))
	}
	assert.ErrorIs(t, tr.advance(StateRebalanced), ErrInvalidTransition)
	require.NoError(t, tr.advance(StateExported))
	assert.ErrorIs(t, tr.advance(StateInitialized), ErrInvalidTransition)
}

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "rebalancing_in_progress", StateRebalancingInProgress.String())
	assert.Equal(t, "RunState(42)", RunState(42).String())
	assert.False(t, StateBalanced.Terminal())
}
