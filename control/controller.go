// Package control implements the interchangeable single-input/single-output
// controllers the sequencer drives each tick: PID, fuzzy-logic, and adaptive.
//
// The variant set is closed; a phase's control mode picks the controller from
// a Bank assembled at shot start with the gains frozen for the whole shot.
package control

import "github.com/brewforge/brewd/models"

// Controller produces a normalized actuator command from the current setpoint
// error and tick duration. Deterministic given identical inputs and internal
// state; output is always in [0,1].
type Controller interface {
	// Compute advances the controller by one tick. err is target-actual in the
	// controlled quantity's units, dt in seconds.
	Compute(err, dt float64) float64
	// Reset clears accumulated state (integral, error history) on phase entry.
	Reset()
}

// Algorithm names a controller variant a profile author can request.
type Algorithm string

const (
	AlgPID      Algorithm = "pid"
	AlgFuzzy    Algorithm = "fuzzy"
	AlgAdaptive Algorithm = "adaptive"
)

// Bank holds one controller per controlled quantity for the duration of a
// shot. Pressure and Ramp phases share the pressure controller; Flow phases
// use the flow controller; Pause bypasses the bank entirely.
type Bank struct {
	pressure Controller
	flow     Controller
}

// NewBank builds a bank from a gains snapshot. algorithm selects the variant
// used for both channels; unknown values fall back to PID.
func NewBank(gains models.ControlGains, algorithm Algorithm) *Bank {
	mk := func() Controller {
		switch algorithm {
		case AlgFuzzy:
			return NewFuzzy()
		case AlgAdaptive:
			return NewAdaptive(gains)
		default:
			return NewPID(gains)
		}
	}
	return &Bank{pressure: mk(), flow: mk()}
}

// Compute dispatches to the controller for the phase's control mode.
// Pause always yields zero.
func (b *Bank) Compute(mode models.ControlMode, err, dt float64) float64 {
	switch mode {
	case models.ModePressure, models.ModeRamp:
		return b.pressure.Compute(err, dt)
	case models.ModeFlow:
		return b.flow.Compute(err, dt)
	case models.ModePause:
		return 0
	default:
		return 0
	}
}

// ResetPhase clears controller state when the sequencer enters a new phase.
func (b *Bank) ResetPhase() {
	b.pressure.Reset()
	b.flow.Reset()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
