package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func TestWeightBeatsTimeOnSameTick(t *testing.T) {
	ev := NewEvaluator(nil)
	ph := &models.Phase{
		Mode: models.ModePressure, Target: 9,
		Breakouts: []models.BreakoutCriterion{
			{Kind: models.BreakTime, Threshold: 25},
			{Kind: models.BreakWeight, Threshold: 36},
		},
		MaxSeconds: 40,
	}

	// Both criteria satisfied on the same tick: weight must win.
	bo, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 25, WeightDeltaG: 36})
	require.True(t, fired)
	assert.Equal(t, models.BreakWeight, bo.Kind)
	assert.False(t, bo.Synthetic)
}

func TestSyntheticTimeAtHardMaximum(t *testing.T) {
	ev := NewEvaluator(nil)
	ph := &models.Phase{
		Mode: models.ModePressure, Target: 9,
		Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakWeight, Threshold: 1000}},
		MaxSeconds: 30,
	}

	_, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 29.9, WeightDeltaG: 5})
	assert.False(t, fired)

	bo, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 30, WeightDeltaG: 5})
	require.True(t, fired)
	assert.Equal(t, models.BreakTime, bo.Kind)
	assert.True(t, bo.Synthetic)
}

func TestPressurePercentCriterion(t *testing.T) {
	ev := NewEvaluator(nil)
	ph := &models.Phase{
		Mode: models.ModePressure, Target: 9,
		Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakPressurePercent, Threshold: 90}},
		MaxSeconds: 30,
	}

	_, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 1, PressureB: 8.0, Target: 9})
	assert.False(t, fired, "88.9%% of target must not fire a 90%% criterion")

	bo, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 1, PressureB: 8.2, Target: 9})
	require.True(t, fired)
	assert.Equal(t, models.BreakPressurePercent, bo.Kind)

	// Without a live target the percentage is undefined and must not fire.
	_, fired = ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 1, PressureB: 8.2, Target: 0})
	assert.False(t, fired)
}

func TestConfiguredPriorityOverridesDefault(t *testing.T) {
	ev := NewEvaluator([]models.CriterionKind{models.BreakTime, models.BreakWeight})
	ph := &models.Phase{
		Mode: models.ModePressure, Target: 9,
		Breakouts: []models.BreakoutCriterion{
			{Kind: models.BreakTime, Threshold: 25},
			{Kind: models.BreakWeight, Threshold: 36},
		},
		MaxSeconds: 40,
	}

	bo, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 25, WeightDeltaG: 36})
	require.True(t, fired)
	assert.Equal(t, models.BreakTime, bo.Kind)
}

func TestPartialPriorityStillCoversEveryKind(t *testing.T) {
	// An operator config naming only one kind must not disable the others.
	ev := NewEvaluator([]models.CriterionKind{models.BreakTime})
	ph := &models.Phase{
		Mode: models.ModePressure, Target: 9,
		Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakFlow, Threshold: 4}},
		MaxSeconds: 30,
	}

	bo, fired := ev.Evaluate(ph, BreakoutInputs{PhaseElapsedS: 2, FlowMLs: 4.5})
	require.True(t, fired)
	assert.Equal(t, models.BreakFlow, bo.Kind)
}
