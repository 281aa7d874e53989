// Package models defines the JSON-serialized data structures shared between
// the brewd control core, the persistent stores, and the web server.
//
// These types mirror the shape of profile JSON exchanged with the operator
// surface and the per-shot records produced by the engine.
package models

import (
	"fmt"
	"time"
)

// ControlMode selects how a phase drives the actuator.
type ControlMode int

const (
	// ModePressure holds the group pressure at the phase target (bar).
	ModePressure ControlMode = iota
	// ModeFlow holds the flow rate at the phase target (ml/s).
	ModeFlow
	// ModePause forces the actuator to zero for the duration of the phase.
	ModePause
	// ModeRamp interpolates the pressure target from TargetStart to TargetEnd
	// over RampSeconds and feeds it to the pressure controller.
	ModeRamp
)

// String implements fmt.Stringer.
func (m ControlMode) String() string {
	switch m {
	case ModePressure:
		return "pressure"
	case ModeFlow:
		return "flow"
	case ModePause:
		return "pause"
	case ModeRamp:
		return "ramp"
	default:
		return fmt.Sprintf("ControlMode(%d)", int(m))
	}
}

// ParseControlMode converts the JSON string form back into a ControlMode.
func ParseControlMode(s string) (ControlMode, error) {
	switch s {
	case "pressure":
		return ModePressure, nil
	case "flow":
		return ModeFlow, nil
	case "pause":
		return ModePause, nil
	case "ramp":
		return ModeRamp, nil
	}
	return 0, fmt.Errorf("unknown control mode %q", s)
}

// MarshalText implements encoding.TextMarshaler so profiles serialize with
// readable mode names.
func (m ControlMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ControlMode) UnmarshalText(b []byte) error {
	v, err := ParseControlMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CriterionKind identifies which measured quantity a breakout criterion
// watches. All comparisons are "reached" (>= threshold).
type CriterionKind int

const (
	// BreakTime fires when elapsed phase time reaches the threshold (seconds).
	BreakTime CriterionKind = iota
	// BreakWeight fires when weight gained since phase start reaches the
	// threshold (grams).
	BreakWeight
	// BreakFlow fires when instantaneous flow reaches the threshold (ml/s).
	BreakFlow
	// BreakPressurePercent fires when pressure reaches the threshold expressed
	// as a percentage of the phase target.
	BreakPressurePercent
)

// String implements fmt.Stringer.
func (k CriterionKind) String() string {
	switch k {
	case BreakTime:
		return "time"
	case BreakWeight:
		return "weight"
	case BreakFlow:
		return "flow"
	case BreakPressurePercent:
		return "pressurePercent"
	default:
		return fmt.Sprintf("CriterionKind(%d)", int(k))
	}
}

// ParseCriterionKind converts the JSON string form back into a CriterionKind.
func ParseCriterionKind(s string) (CriterionKind, error) {
	switch s {
	case "time":
		return BreakTime, nil
	case "weight":
		return BreakWeight, nil
	case "flow":
		return BreakFlow, nil
	case "pressurePercent":
		return BreakPressurePercent, nil
	}
	return 0, fmt.Errorf("unknown criterion kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k CriterionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CriterionKind) UnmarshalText(b []byte) error {
	v, err := ParseCriterionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// DefaultBreakoutPriority is the tie-break order when several criteria are
// satisfied on the same tick: the most proximate quality/safety signal wins
// over the time fallback. Configurable via [engine] breakout_priority.
var DefaultBreakoutPriority = []CriterionKind{
	BreakWeight, BreakPressurePercent, BreakFlow, BreakTime,
}

// BreakoutCriterion is one termination condition of a phase.
type BreakoutCriterion struct {
	Kind      CriterionKind `json:"kind"`
	Threshold float64       `json:"threshold"`
}

// Phase is one stage of an extraction profile with its own control target and
// termination rules.
type Phase struct {
	Name string      `json:"name,omitempty"`
	Mode ControlMode `json:"mode"`

	// Target is the setpoint for Pressure (bar) and Flow (ml/s) phases.
	Target float64 `json:"target,omitempty"`

	// TargetStart/TargetEnd and RampSeconds describe a Ramp phase. Elapsed time
	// past RampSeconds holds TargetEnd.
	TargetStart float64 `json:"targetStart,omitempty"`
	TargetEnd   float64 `json:"targetEnd,omitempty"`
	RampSeconds float64 `json:"rampSeconds,omitempty"`

	Breakouts []BreakoutCriterion `json:"breakouts"`

	// MaxSeconds is the hard upper bound on phase duration, enforced
	// independently of the declared breakouts. Required; guarantees every
	// phase terminates even against a misconfigured profile.
	MaxSeconds float64 `json:"maxSeconds"`
}

// ConstantTarget reports whether the phase holds a single setpoint for its
// whole duration (the precondition for overshoot/settling statistics).
func (p *Phase) ConstantTarget() bool {
	return p.Mode == ModePressure || p.Mode == ModeFlow
}

// Profile is an ordered sequence of phases plus informational defaults.
// Immutable once a shot starts.
type Profile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Technique string `json:"technique,omitempty"`
	// Algorithm optionally requests a controller variant ("pid", "fuzzy",
	// "adaptive"). Empty means PID.
	Algorithm string  `json:"algorithm,omitempty"`
	DoseG     float64 `json:"defaultDose,omitempty"`
	YieldG    float64 `json:"defaultYield,omitempty"`
	Ratio     float64 `json:"defaultRatio,omitempty"`
	Enabled   bool    `json:"enabled"`
	Phases    []Phase `json:"phases"`
}

// Validate rejects profiles the sequencer must not start: no phases, a phase
// without any breakout criterion, a missing hard maximum duration, or ramp
// parameters that cannot generate a target.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("nil profile")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("profile %q has no phases", p.Name)
	}
	for i := range p.Phases {
		ph := &p.Phases[i]
		if len(ph.Breakouts) == 0 {
			return fmt.Errorf("phase %d has no breakout criteria", i)
		}
		if ph.MaxSeconds <= 0 {
			return fmt.Errorf("phase %d has no hard maximum duration", i)
		}
		for _, b := range ph.Breakouts {
			if b.Threshold <= 0 {
				return fmt.Errorf("phase %d: %s breakout threshold must be > 0", i, b.Kind)
			}
		}
		switch ph.Mode {
		case ModePressure, ModeFlow:
			if ph.Target <= 0 {
				return fmt.Errorf("phase %d: %s phase needs a positive target", i, ph.Mode)
			}
		case ModeRamp:
			if ph.RampSeconds <= 0 {
				return fmt.Errorf("phase %d: ramp phase needs rampSeconds > 0", i)
			}
			if ph.TargetStart < 0 || ph.TargetEnd <= 0 {
				return fmt.Errorf("phase %d: ramp phase needs valid start/end targets", i)
			}
		case ModePause:
			// no target required
		default:
			return fmt.Errorf("phase %d: unknown control mode", i)
		}
	}
	return nil
}

// ControlGains are the PID coefficients. Owned by the learning engine and
// snapshotted by the controller bank at shot start; frozen for the shot.
type ControlGains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// GainBounds is the safe envelope the learning engine may never leave.
type GainBounds struct {
	KpMin, KpMax float64
	KiMin, KiMax float64
	KdMin, KdMax float64
}

// Clamp returns g with every coefficient forced inside the bounds.
func (b GainBounds) Clamp(g ControlGains) ControlGains {
	return ControlGains{
		Kp: clamp(g.Kp, b.KpMin, b.KpMax),
		Ki: clamp(g.Ki, b.KiMin, b.KiMax),
		Kd: clamp(g.Kd, b.KdMin, b.KdMax),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sample is one timestamped sensor reading set. Fault marks a reading the
// driver could not produce; the engine treats it like a missing sample.
type Sample struct {
	At        time.Time `json:"at"`
	PressureB float64   `json:"pressure"`
	FlowMLs   float64   `json:"flow"`
	TempC     float64   `json:"temp"`
	WeightG   float64   `json:"weight"`
	Fault     bool      `json:"fault,omitempty"`
}

// TracePoint is one per-tick entry of a shot trace.
type TracePoint struct {
	ElapsedS  float64 `json:"t"`
	Phase     int     `json:"phase"`
	Target    float64 `json:"target"`
	Actual    float64 `json:"actual"`
	PressureB float64 `json:"pressure"`
	FlowMLs   float64 `json:"flow"`
	WeightG   float64 `json:"weight"`
	Command   float64 `json:"cmd"`
}

// AbortReason codes why a shot ended in the Aborted state.
type AbortReason int

const (
	ReasonNone AbortReason = iota
	// ReasonOperator is an external stop command.
	ReasonOperator
	// ReasonSensorFault is a sensor fault persisting past the grace window.
	ReasonSensorFault
)

// String implements fmt.Stringer.
func (r AbortReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonOperator:
		return "operator"
	case ReasonSensorFault:
		return "sensorFault"
	default:
		return fmt.Sprintf("AbortReason(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r AbortReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// PhaseSummary holds the derived statistics of a single completed phase.
// Overshoot and settling are only computed for constant-target phases.
type PhaseSummary struct {
	Index         int     `json:"index"`
	Name          string  `json:"name,omitempty"`
	Mode          string  `json:"mode"`
	DurationS     float64 `json:"duration"`
	Breakout      string  `json:"breakout"`
	Synthetic     bool    `json:"synthetic,omitempty"`
	Target        float64 `json:"target,omitempty"`
	PeakOvershoot float64 `json:"peakOvershoot"`
	SettlingS     float64 `json:"settling"`
	Settled       bool    `json:"settled"`
	AvgPressureB  float64 `json:"avgPressure"`
	AvgFlowMLs    float64 `json:"avgFlow"`
	WeightGainG   float64 `json:"weightGain"`
}

// ShotSummary is the compact cross-shot view the learning engine and the shot
// history queries consume.
type ShotSummary struct {
	ShotID          string  `json:"shotId"`
	ProfileName     string  `json:"profileName"`
	Completed       bool    `json:"completed"`
	DurationS       float64 `json:"duration"`
	FinalWeightG    float64 `json:"finalWeight"`
	PeakPressureB   float64 `json:"peakPressure"`
	AvgPressureB    float64 `json:"avgPressure"`
	PeakFlowMLs     float64 `json:"peakFlow"`
	AvgFlowMLs      float64 `json:"avgFlow"`
	MeanOvershoot   float64 `json:"meanOvershoot"`
	MeanSettlingS   float64 `json:"meanSettling"`
	PressureStab    float64 `json:"pressureStability"`
	FlowStab        float64 `json:"flowStability"`
	QualityScore    float64 `json:"qualityScore"`
	QualityClass    string  `json:"qualityClass"`
	TargetWeightG   float64 `json:"targetWeight,omitempty"`
	WeightDeviation float64 `json:"weightDeviation,omitempty"`
}

// ShotRecord is the full outcome of one shot: identity, trace, per-phase and
// whole-shot summaries. Never mutated after the shot ends.
type ShotRecord struct {
	ShotID    string      `json:"shotId"`
	ProfileID int64       `json:"profileId"`
	Profile   string      `json:"profileName"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   time.Time   `json:"endedAt"`
	Completed bool        `json:"completed"`
	Reason    AbortReason `json:"abortReason"`

	Gains ControlGains `json:"gains"`

	Trace   []TracePoint   `json:"trace"`
	Phases  []PhaseSummary `json:"phases"`
	Summary ShotSummary    `json:"summary"`
}

// TickTelemetry is the per-tick payload published while a shot is active.
type TickTelemetry struct {
	ShotID    string  `json:"shotId"`
	ElapsedS  float64 `json:"t"`
	Phase     int     `json:"phase"`
	PhaseName string  `json:"phaseName,omitempty"`
	Mode      string  `json:"mode"`
	Target    float64 `json:"target"`
	PressureB float64 `json:"pressure"`
	FlowMLs   float64 `json:"flow"`
	WeightG   float64 `json:"weight"`
	Command   float64 `json:"cmd"`
}

// HealthTier buckets the overall score.
type HealthTier string

const (
	TierExcellent HealthTier = "excellent" // >= 90
	TierGood      HealthTier = "good"      // 70-89
	TierWarning   HealthTier = "warning"   // 50-69
	TierError     HealthTier = "error"     // < 50
)

// TierFor maps a 0-100 score onto its tier.
func TierFor(score int) HealthTier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 70:
		return TierGood
	case score >= 50:
		return TierWarning
	default:
		return TierError
	}
}

// SubScore is one component of a health snapshot.
type SubScore struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Message string `json:"message,omitempty"`
}

// HealthSnapshot is the on-demand aggregate of subsystem health. Always
// derived fresh; never persisted.
type HealthSnapshot struct {
	At      time.Time  `json:"at"`
	Score   int        `json:"score"`
	Tier    HealthTier `json:"tier"`
	Subs    []SubScore `json:"components"`
	FatalOn bool       `json:"fatalOverride,omitempty"`
}
