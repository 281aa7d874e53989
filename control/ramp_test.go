package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brewforge/brewd/models"
)

func TestPhaseTargetRamp(t *testing.T) {
	ph := &models.Phase{Mode: models.ModeRamp, TargetStart: 2, TargetEnd: 9, RampSeconds: 10}

	assert.InDelta(t, 2.0, PhaseTarget(ph, 0), 1e-9)
	assert.InDelta(t, 5.5, PhaseTarget(ph, 5), 1e-9)
	assert.InDelta(t, 9.0, PhaseTarget(ph, 10), 1e-9)
	// Past the ramp duration the end target is held.
	assert.InDelta(t, 9.0, PhaseTarget(ph, 25), 1e-9)
}

func TestPhaseTargetConstantAndPause(t *testing.T) {
	p := &models.Phase{Mode: models.ModePressure, Target: 9}
	assert.Equal(t, 9.0, PhaseTarget(p, 3))

	f := &models.Phase{Mode: models.ModeFlow, Target: 2.5}
	assert.Equal(t, 2.5, PhaseTarget(f, 3))

	pause := &models.Phase{Mode: models.ModePause}
	assert.Equal(t, 0.0, PhaseTarget(pause, 3))
}

func TestBankDispatch(t *testing.T) {
	b := NewBank(models.ControlGains{Kp: 0.5}, AlgPID)

	assert.Greater(t, b.Compute(models.ModePressure, 1.0, 0.1), 0.0)
	assert.Greater(t, b.Compute(models.ModeFlow, 1.0, 0.1), 0.0)
	assert.Equal(t, 0.0, b.Compute(models.ModePause, 100, 0.1))
}
