package recorder

import (
	"fmt"

	"github.com/brewforge/brewd/models"
)

// quality condenses a shot summary into a 0-100 score and a class label.
// Pressure steadiness dominates, overshoot and settling speed fill in the
// rest; aborted shots are halved because the extraction never finished.
func quality(s models.ShotSummary, completed bool) (float64, string) {
	overshootScore := 100 - clampScore(s.MeanOvershoot*200)
	settlingScore := 100.0
	if s.MeanSettlingS > 1 {
		settlingScore = 100 - clampScore((s.MeanSettlingS-1)*25)
	}

	score := 0.35*s.PressureStab +
		0.15*s.FlowStab +
		0.30*overshootScore +
		0.20*settlingScore
	if !completed {
		score *= 0.5
	}
	score = clampScore(score)

	var class string
	switch {
	case score >= 85:
		class = "excellent"
	case score >= 70:
		class = "good"
	case score >= 50:
		class = "fair"
	default:
		class = "poor"
	}
	return score, class
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Recommendations suggests operator-facing adjustments from a shot summary.
// Mirrors what a barista would read off the trace: unstable pressure points
// at the pump or puck prep, heavy overshoot at the control gains, and a big
// weight miss at dose or grind.
func Recommendations(s models.ShotSummary) []string {
	var recs []string
	if s.PressureStab > 0 && s.PressureStab < 85 {
		recs = append(recs, "pressure was unstable; check puck prep and pump condition")
	}
	if s.MeanOvershoot > 0.5 {
		recs = append(recs, fmt.Sprintf("pressure overshot by %.1f bar on average; consider lowering Kp", s.MeanOvershoot))
	}
	if s.MeanSettlingS > 3 {
		recs = append(recs, fmt.Sprintf("slow to settle (%.1fs); consider raising Ki slightly", s.MeanSettlingS))
	}
	if s.TargetWeightG > 0 {
		dev := s.WeightDeviation
		if dev > 2 {
			recs = append(recs, fmt.Sprintf("shot ran %.1fg heavy; stop earlier or grind finer", dev))
		} else if dev < -2 {
			recs = append(recs, fmt.Sprintf("shot ran %.1fg light; check the scale or extend the final phase", -dev))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "extraction looks consistent; no changes suggested")
	}
	return recs
}
