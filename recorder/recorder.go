// Package recorder captures the per-tick trace of a running shot, derives
// per-phase and whole-shot statistics when phases and shots end, and keeps a
// bounded in-memory history of recent shot summaries.
package recorder

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/brewforge/brewd/models"
)

// Recorder accumulates one shot at a time. All methods are safe for
// concurrent use; the sequencer drives Begin/Append/EndPhase/Finalize while
// readers pull History and Last from other goroutines.
type Recorder struct {
	mu sync.Mutex

	historyCap int
	tolFrac    float64

	cur     *models.ShotRecord
	targetW float64

	phaseStartIdx  int
	phaseStartT    float64
	phaseStartW    float64
	phaseIdx       int
	phase          models.Phase
	phaseOpen      bool
	history        []models.ShotSummary
	lastRecord     *models.ShotRecord
}

// New returns a recorder keeping at most historyCap shot summaries.
// tolerancePct is the settling band as a fraction of the phase target
// (0.02 means within 2%).
func New(historyCap int, tolerancePct float64) *Recorder {
	if historyCap <= 0 {
		historyCap = 50
	}
	if tolerancePct <= 0 {
		tolerancePct = 0.02
	}
	return &Recorder{historyCap: historyCap, tolFrac: tolerancePct}
}

// Begin opens a new shot record. Any unfinalized previous shot is discarded.
func (r *Recorder) Begin(shotID string, p *models.Profile, gains models.ControlGains, targetWeightG float64, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = &models.ShotRecord{
		ShotID:    shotID,
		ProfileID: p.ID,
		Profile:   p.Name,
		StartedAt: startedAt,
		Gains:     gains,
	}
	r.targetW = targetWeightG
	r.phaseOpen = false
}

// BeginPhase marks the start of phase idx at the given shot-elapsed time and
// scale reading.
func (r *Recorder) BeginPhase(idx int, ph models.Phase, elapsedS, weightG float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return
	}
	r.phaseIdx = idx
	r.phase = ph
	r.phaseStartIdx = len(r.cur.Trace)
	r.phaseStartT = elapsedS
	r.phaseStartW = weightG
	r.phaseOpen = true
}

// Append adds one trace point for the current tick.
func (r *Recorder) Append(pt models.TracePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return
	}
	r.cur.Trace = append(r.cur.Trace, pt)
}

// EndPhase closes the current phase and derives its summary. breakout names
// the criterion that fired; synthetic marks the hard-maximum fallback.
func (r *Recorder) EndPhase(breakout string, synthetic bool, elapsedS, weightG float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endPhaseLocked(breakout, synthetic, elapsedS, weightG)
}

func (r *Recorder) endPhaseLocked(breakout string, synthetic bool, elapsedS, weightG float64) {
	if r.cur == nil || !r.phaseOpen {
		return
	}
	r.phaseOpen = false

	seg := r.cur.Trace[r.phaseStartIdx:]
	sum := models.PhaseSummary{
		Index:       r.phaseIdx,
		Name:        r.phase.Name,
		Mode:        r.phase.Mode.String(),
		DurationS:   elapsedS - r.phaseStartT,
		Breakout:    breakout,
		Synthetic:   synthetic,
		WeightGainG: weightG - r.phaseStartW,
	}
	if len(seg) > 0 {
		pressures := make([]float64, len(seg))
		flows := make([]float64, len(seg))
		for i, p := range seg {
			pressures[i] = p.PressureB
			flows[i] = p.FlowMLs
		}
		sum.AvgPressureB = stat.Mean(pressures, nil)
		sum.AvgFlowMLs = stat.Mean(flows, nil)
	}
	// Overshoot and settling are only meaningful against a constant setpoint.
	if r.phase.ConstantTarget() && len(seg) > 0 {
		sum.Target = r.phase.Target
		sum.PeakOvershoot, sum.SettlingS, sum.Settled = settlingStats(seg, r.phase.Target, r.tolFrac)
	}
	r.cur.Phases = append(r.cur.Phases, sum)
}

// settlingStats walks one phase's trace segment and reports the peak
// overshoot above the target, the time until the measurement entered the
// tolerance band for good, and whether it stayed there through phase end.
func settlingStats(seg []models.TracePoint, target, tolFrac float64) (peak, settlingS float64, settled bool) {
	tol := tolFrac * target
	lastOutside := -1
	for i, p := range seg {
		if over := p.Actual - target; over > peak {
			peak = over
		}
		if math.Abs(p.Actual-target) > tol {
			lastOutside = i
		}
	}
	start := seg[0].ElapsedS
	switch {
	case lastOutside == len(seg)-1:
		// Never held the band through the end of the phase.
		return peak, seg[len(seg)-1].ElapsedS - start, false
	case lastOutside < 0:
		return peak, 0, true
	default:
		return peak, seg[lastOutside+1].ElapsedS - start, true
	}
}

// Finalize closes the shot, derives the whole-shot summary, pushes it into
// the bounded history, and returns the complete immutable record. If a phase
// is still open it is closed with the given breakout label first.
func (r *Recorder) Finalize(completed bool, reason models.AbortReason, endedAt time.Time) *models.ShotRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	if r.phaseOpen {
		var t, w float64
		if n := len(r.cur.Trace); n > 0 {
			t = r.cur.Trace[n-1].ElapsedS
			w = r.cur.Trace[n-1].WeightG
		}
		r.endPhaseLocked(reason.String(), false, t, w)
	}

	rec := r.cur
	r.cur = nil
	rec.EndedAt = endedAt
	rec.Completed = completed
	rec.Reason = reason
	rec.Summary = r.summarize(rec, completed)

	if len(r.history) == r.historyCap {
		copy(r.history, r.history[1:])
		r.history = r.history[:r.historyCap-1]
	}
	r.history = append(r.history, rec.Summary)
	r.lastRecord = rec
	return rec
}

func (r *Recorder) summarize(rec *models.ShotRecord, completed bool) models.ShotSummary {
	s := models.ShotSummary{
		ShotID:      rec.ShotID,
		ProfileName: rec.Profile,
		Completed:   completed,
	}
	if n := len(rec.Trace); n > 0 {
		s.DurationS = rec.Trace[n-1].ElapsedS
		s.FinalWeightG = rec.Trace[n-1].WeightG

		pressures := make([]float64, n)
		flows := make([]float64, n)
		for i, p := range rec.Trace {
			pressures[i] = p.PressureB
			flows[i] = p.FlowMLs
			if p.PressureB > s.PeakPressureB {
				s.PeakPressureB = p.PressureB
			}
			if p.FlowMLs > s.PeakFlowMLs {
				s.PeakFlowMLs = p.FlowMLs
			}
		}
		var pStd, fStd float64
		s.AvgPressureB, pStd = stat.MeanStdDev(pressures, nil)
		s.AvgFlowMLs, fStd = stat.MeanStdDev(flows, nil)
		s.PressureStab = stability(s.AvgPressureB, pStd)
		s.FlowStab = stability(s.AvgFlowMLs, fStd)
	}

	var overshoots, settlings []float64
	for _, ph := range rec.Phases {
		if ph.Target <= 0 {
			continue
		}
		overshoots = append(overshoots, ph.PeakOvershoot)
		settlings = append(settlings, ph.SettlingS)
	}
	if len(overshoots) > 0 {
		s.MeanOvershoot = stat.Mean(overshoots, nil)
		s.MeanSettlingS = stat.Mean(settlings, nil)
	}

	if r.targetW > 0 {
		s.TargetWeightG = r.targetW
		s.WeightDeviation = s.FinalWeightG - r.targetW
	}
	s.QualityScore, s.QualityClass = quality(s, completed)
	return s
}

// stability maps a mean/stddev pair onto a 0-100 steadiness score:
// 100 minus the coefficient of variation in percent, floored at zero.
func stability(mean, std float64) float64 {
	if mean <= 1e-9 {
		return 0
	}
	v := 100 - 100*std/mean
	if v < 0 {
		return 0
	}
	return v
}

// History returns a copy of the retained shot summaries, oldest first.
func (r *Recorder) History() []models.ShotSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ShotSummary, len(r.history))
	copy(out, r.history)
	return out
}

// Last returns the most recently finalized full record, or nil.
func (r *Recorder) Last() *models.ShotRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRecord
}

// Active reports whether a shot is currently being recorded.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}
