package control

import "github.com/brewforge/brewd/models"

// PhaseTarget generates the setpoint for the active phase at the given
// elapsed time. Ramp is a target-generation policy, not a controller: the
// interpolated value is fed into the pressure controller. Constant-target
// phases return their fixed target; Pause has no target.
func PhaseTarget(ph *models.Phase, elapsedS float64) float64 {
	switch ph.Mode {
	case models.ModeRamp:
		return lerp(ph.TargetStart, ph.TargetEnd, clampRange(elapsedS/ph.RampSeconds, 0, 1))
	case models.ModePressure, models.ModeFlow:
		return ph.Target
	default:
		return 0
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
