package engine

import "github.com/brewforge/brewd/models"

// BreakoutInputs are the measurements a phase's termination criteria are
// checked against on one tick. WeightDeltaG is weight gained since phase
// start; Target is the current setpoint (needed for percentage criteria).
type BreakoutInputs struct {
	PhaseElapsedS float64
	WeightDeltaG  float64
	FlowMLs       float64
	PressureB     float64
	Target        float64
}

// Breakout is the criterion that ended a phase. Synthetic marks the
// hard-maximum-duration fallback rather than a declared criterion.
type Breakout struct {
	Kind      models.CriterionKind
	Threshold float64
	Synthetic bool
}

// Evaluator checks a phase's breakout criteria in a fixed priority order so
// that several criteria firing on the same tick always resolve the same way.
type Evaluator struct {
	priority []models.CriterionKind
}

// NewEvaluator builds an evaluator with the given tie-break order. Kinds
// missing from the order are appended in default-priority order, so a partial
// configuration still covers every criterion.
func NewEvaluator(priority []models.CriterionKind) *Evaluator {
	seen := make(map[models.CriterionKind]bool, len(priority))
	order := make([]models.CriterionKind, 0, len(models.DefaultBreakoutPriority))
	for _, k := range priority {
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}
	for _, k := range models.DefaultBreakoutPriority {
		if !seen[k] {
			order = append(order, k)
		}
	}
	return &Evaluator{priority: order}
}

// Evaluate reports whether the phase should end on this tick. Declared
// criteria are checked in priority order; the phase's hard maximum duration
// acts as a final synthetic time criterion regardless of what the profile
// declares.
func (e *Evaluator) Evaluate(ph *models.Phase, in BreakoutInputs) (Breakout, bool) {
	for _, kind := range e.priority {
		for _, c := range ph.Breakouts {
			if c.Kind == kind && satisfied(c, in) {
				return Breakout{Kind: c.Kind, Threshold: c.Threshold}, true
			}
		}
	}
	if in.PhaseElapsedS >= ph.MaxSeconds {
		return Breakout{Kind: models.BreakTime, Threshold: ph.MaxSeconds, Synthetic: true}, true
	}
	return Breakout{}, false
}

func satisfied(c models.BreakoutCriterion, in BreakoutInputs) bool {
	switch c.Kind {
	case models.BreakTime:
		return in.PhaseElapsedS >= c.Threshold
	case models.BreakWeight:
		return in.WeightDeltaG >= c.Threshold
	case models.BreakFlow:
		return in.FlowMLs >= c.Threshold
	case models.BreakPressurePercent:
		return in.Target > 0 && in.PressureB/in.Target*100 >= c.Threshold
	default:
		return false
	}
}
