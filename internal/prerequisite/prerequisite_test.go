package prerequisite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-sdk/heimdall/internal/prerequisite"
)

func TestEval_EmptyIsSatisfied(t *testing.T) {
	t.Parallel()

	skip, err := prerequisite.Eval(nil, []string{"a"}, nil)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestEval_CycleDetected(t *testing.T) {
	t.Parallel()

	prereqs := []prerequisite.Prerequisite{{ID: "a", Condition: map[string]any{}}}
	_, err := prerequisite.Eval(prereqs, []string{"a"}, nil)
	assert.ErrorIs(t, err, prerequisite.ErrCycling)
}

func TestEval_GateUnmetBlocks(t *testing.T) {
	t.Parallel()

	prereqs := []prerequisite.Prerequisite{
		{ID: "b", Condition: map[string]any{"value": true}, Gate: true},
	}
	resolve := func(id string, path []string) (any, bool, error) {
		return false, false, nil
	}
	_, err := prerequisite.Eval(prereqs, []string{"a"}, resolve)
	assert.ErrorIs(t, err, prerequisite.ErrGateUnmet)
}

func TestEval_NonGatingUnmetIsLocalSkip(t *testing.T) {
	t.Parallel()

	prereqs := []prerequisite.Prerequisite{
		{ID: "b", Condition: map[string]any{"value": true}, Gate: false},
	}
	resolve := func(id string, path []string) (any, bool, error) {
		return false, false, nil
	}
	skip, err := prerequisite.Eval(prereqs, []string{"a"}, resolve)
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestEval_SatisfiedContinues(t *testing.T) {
	t.Parallel()

	prereqs := []prerequisite.Prerequisite{
		{ID: "b", Condition: map[string]any{"value": true}, Gate: true},
	}
	resolve := func(id string, path []string) (any, bool, error) {
		return true, false, nil
	}
	skip, err := prerequisite.Eval(prereqs, []string{"a"}, resolve)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestEval_TransitiveCyclePropagates(t *testing.T) {
	t.Parallel()

	prereqs := []prerequisite.Prerequisite{
		{ID: "b", Condition: map[string]any{}, Gate: true},
	}
	resolve := func(id string, path []string) (any, bool, error) {
		return nil, true, nil
	}
	_, err := prerequisite.Eval(prereqs, []string{"a"}, resolve)
	assert.ErrorIs(t, err, prerequisite.ErrCycling)
}
