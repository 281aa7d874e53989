package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func TestPIDOutputAlwaysClamped(t *testing.T) {
	pid := NewPID(models.ControlGains{Kp: 5, Ki: 2, Kd: 1})

	for _, err := range []float64{1e6, 100, 9, 0.5, -0.5, -100, -1e6} {
		out := pid.Compute(err, 0.1)
		assert.GreaterOrEqual(t, out, 0.0, "err=%v", err)
		assert.LessOrEqual(t, out, 1.0, "err=%v", err)
	}
}

func TestPIDAntiWindup(t *testing.T) {
	pid := NewPID(models.ControlGains{Kp: 0.1, Ki: 0.5, Kd: 0})

	// Saturate hard for a long stretch.
	for i := 0; i < 1000; i++ {
		out := pid.Compute(50, 0.1)
		require.Equal(t, 1.0, out)
	}

	// After the error collapses, the integral must unwind within the actuator
	// range, not hold the output pinned for thousands of ticks.
	ticks := 0
	for ; ticks < 100; ticks++ {
		if pid.Compute(-1, 0.1) < 1.0 {
			break
		}
	}
	assert.Less(t, ticks, 50, "integral wind-up was not bounded")
}

func TestPIDDeterministic(t *testing.T) {
	a := NewPID(models.ControlGains{Kp: 0.4, Ki: 0.05, Kd: 0.02})
	b := NewPID(models.ControlGains{Kp: 0.4, Ki: 0.05, Kd: 0.02})

	errs := []float64{2.0, 1.5, 1.1, 0.6, 0.2, -0.1, 0.05}
	for _, e := range errs {
		assert.Equal(t, a.Compute(e, 0.1), b.Compute(e, 0.1))
	}
}

func TestPIDNoDerivativeKickOnReset(t *testing.T) {
	pid := NewPID(models.ControlGains{Kp: 0, Ki: 0, Kd: 10})

	// First tick after reset must not see a derivative even with a big error.
	out := pid.Compute(5, 0.1)
	assert.Equal(t, 0.0, out)

	// Second tick does.
	out = pid.Compute(6, 0.1)
	assert.Greater(t, out, 0.0)

	pid.Reset()
	out = pid.Compute(9, 0.1)
	assert.Equal(t, 0.0, out)
}

func TestPIDProportionalOnly(t *testing.T) {
	pid := NewPID(models.ControlGains{Kp: 0.5, Ki: 0, Kd: 0})
	assert.InDelta(t, 0.5, pid.Compute(1.0, 0.1), 1e-9)
	assert.InDelta(t, 0.25, pid.Compute(0.5, 0.1), 1e-9)
	assert.Equal(t, 0.0, pid.Compute(-2, 0.1))
}
