package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *Profile {
	return &Profile{
		Name: "ok",
		Phases: []Phase{{
			Mode: ModePressure, Target: 9,
			Breakouts:  []BreakoutCriterion{{Kind: BreakWeight, Threshold: 36}},
			MaxSeconds: 40,
		}},
	}
}

func TestProfileValidate(t *testing.T) {
	require.NoError(t, validProfile().Validate())

	cases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"no phases", func(p *Profile) { p.Phases = nil }},
		{"no breakouts", func(p *Profile) { p.Phases[0].Breakouts = nil }},
		{"no hard maximum", func(p *Profile) { p.Phases[0].MaxSeconds = 0 }},
		{"zero threshold", func(p *Profile) { p.Phases[0].Breakouts[0].Threshold = 0 }},
		{"pressure without target", func(p *Profile) { p.Phases[0].Target = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestRampPhaseValidation(t *testing.T) {
	p := validProfile()
	p.Phases[0] = Phase{
		Mode: ModeRamp, TargetStart: 2, TargetEnd: 9, RampSeconds: 5,
		Breakouts:  []BreakoutCriterion{{Kind: BreakTime, Threshold: 5}},
		MaxSeconds: 10,
	}
	require.NoError(t, p.Validate())

	p.Phases[0].RampSeconds = 0
	assert.Error(t, p.Validate())
}

func TestModeAndKindRoundTrip(t *testing.T) {
	for _, m := range []ControlMode{ModePressure, ModeFlow, ModePause, ModeRamp} {
		parsed, err := ParseControlMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseControlMode("steam")
	assert.Error(t, err)

	for _, k := range []CriterionKind{BreakTime, BreakWeight, BreakFlow, BreakPressurePercent} {
		parsed, err := ParseCriterionKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, TierExcellent, TierFor(90))
	assert.Equal(t, TierGood, TierFor(89))
	assert.Equal(t, TierGood, TierFor(70))
	assert.Equal(t, TierWarning, TierFor(69))
	assert.Equal(t, TierWarning, TierFor(50))
	assert.Equal(t, TierError, TierFor(49))
}

func TestGainBoundsClamp(t *testing.T) {
	b := GainBounds{KpMin: 0.1, KpMax: 1, KiMax: 0.5, KdMax: 0.8}
	g := b.Clamp(ControlGains{Kp: 5, Ki: -0.2, Kd: 0.3})
	assert.Equal(t, ControlGains{Kp: 1, Ki: 0, Kd: 0.3}, g)
}
