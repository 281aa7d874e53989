// Package engine drives a brew profile from start to finish: a fixed-period
// tick loop reads the newest sensor sample, computes the actuator command for
// the active phase, records the trace, and arbitrates phase breakouts.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brewforge/brewd/control"
	"github.com/brewforge/brewd/health"
	"github.com/brewforge/brewd/models"
	"github.com/brewforge/brewd/recorder"
)

// State is the sequencer lifecycle position. ShotComplete and Aborted are
// terminal for the shot; starting a new shot passes back through Idle.
type State int

const (
	StateIdle State = iota
	StatePhaseActive
	StateShotComplete
	StateAborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePhaseActive:
		return "phaseActive"
	case StateShotComplete:
		return "shotComplete"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sampler supplies the newest sensor reading. ok is false when no valid
// reading is available for this tick (stale, disconnected, or faulted).
type Sampler interface {
	Latest() (models.Sample, bool)
}

// Actuator receives the normalized pump command in [0,1].
type Actuator interface {
	SetPower(level float64) error
}

// GainSource provides the control gains snapshot taken at shot start.
type GainSource interface {
	Snapshot() models.ControlGains
}

// Callbacks are the sequencer's outbound notifications. OnTick and OnPhase
// run inline on the tick goroutine and must return quickly; OnComplete runs
// on its own goroutine so consumers can persist and learn without delaying
// control.
type Callbacks struct {
	OnTick     func(models.TickTelemetry)
	OnPhase    func(shotID string, phase int, name string)
	OnComplete func(*models.ShotRecord)
}

// Config tunes the tick loop.
type Config struct {
	// TickPeriod is the control loop interval. Defaults to 100ms.
	TickPeriod time.Duration
	// GraceSamples is how many consecutive missing or faulted samples are
	// tolerated (holding the last command) before the shot aborts. Defaults
	// to 3.
	GraceSamples int
	// Priority overrides the breakout tie-break order.
	Priority []models.CriterionKind
}

func (c *Config) normalize() {
	if c.TickPeriod <= 0 {
		c.TickPeriod = 100 * time.Millisecond
	}
	if c.GraceSamples <= 0 {
		c.GraceSamples = 3
	}
}

// Deps are the collaborators the sequencer drives.
type Deps struct {
	Sampler  Sampler
	Actuator Actuator
	Gains    GainSource
	Recorder *recorder.Recorder
	Errors   *health.Log
	Log      *zap.Logger
	Callbacks
}

// Sequencer owns the shot state machine. One instance per machine; all
// transitions are serialized under its mutex, so an Abort issued mid-tick
// takes effect before the next tick begins.
type Sequencer struct {
	cfg  Config
	deps Deps
	eval *Evaluator
	log  *zap.Logger

	mu            sync.Mutex
	state         State
	profile       *models.Profile
	shotID        string
	phaseIdx      int
	bank          *control.Bank
	gains         models.ControlGains
	elapsedS      float64
	phaseElapsedS float64
	phaseBaseW    float64
	shotBaseW     float64
	targetW       float64
	lastSample    models.Sample
	haveSample    bool
	missed        int
	lastCmd       float64
}

// New builds a sequencer in the Idle state.
func New(cfg Config, deps Deps) *Sequencer {
	cfg.normalize()
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Sequencer{
		cfg:  cfg,
		deps: deps,
		eval: NewEvaluator(cfg.Priority),
		log:  deps.Log.Named("engine"),
	}
}

// StartShot validates the profile, snapshots the control gains, and enters
// PhaseActive. targetWeightG > 0 overrides the final phase's weight breakout
// for this shot only. Returns the new shot ID.
func (s *Sequencer) StartShot(p *models.Profile, targetWeightG float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePhaseActive {
		return "", ErrShotInProgress
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProfileInvalid, err)
	}

	prof := cloneProfile(p)
	if targetWeightG > 0 {
		overrideTargetWeight(prof, targetWeightG)
	}

	s.profile = prof
	s.shotID = uuid.NewString()
	s.phaseIdx = 0
	s.elapsedS = 0
	s.phaseElapsedS = 0
	s.missed = 0
	s.lastCmd = 0
	s.haveSample = false
	s.targetW = targetWeightG
	s.shotBaseW = 0
	s.gains = s.deps.Gains.Snapshot()
	s.bank = control.NewBank(s.gains, control.Algorithm(prof.Algorithm))
	s.state = StatePhaseActive

	if sample, ok := s.deps.Sampler.Latest(); ok {
		s.lastSample = sample
		s.haveSample = true
		s.phaseBaseW = sample.WeightG
		s.shotBaseW = sample.WeightG
	}
	s.deps.Recorder.Begin(s.shotID, prof, s.gains, targetWeightG, time.Now())
	s.deps.Recorder.BeginPhase(0, prof.Phases[0], 0, s.phaseBaseW)

	s.log.Info("shot started",
		zap.String("shot", s.shotID),
		zap.String("profile", prof.Name),
		zap.Int("phases", len(prof.Phases)),
		zap.Float64("kp", s.gains.Kp),
		zap.Float64("ki", s.gains.Ki),
		zap.Float64("kd", s.gains.Kd))
	if s.deps.OnPhase != nil {
		s.deps.OnPhase(s.shotID, 0, prof.Phases[0].Name)
	}
	return s.shotID, nil
}

// Abort stops the running shot with the operator reason. The actuator is
// forced to zero before Abort returns.
func (s *Sequencer) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePhaseActive {
		return ErrNoActiveShot
	}
	s.log.Warn("shot aborted by operator", zap.String("shot", s.shotID))
	s.finalizeLocked(false, models.ReasonOperator)
	return nil
}

// Run drives the tick loop until ctx is cancelled. A shot left active at
// cancellation is aborted so the pump never stays energized.
func (s *Sequencer) Run(ctx context.Context) {
	timer := time.NewTimer(s.cfg.TickPeriod)
	defer timer.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.state == StatePhaseActive {
				s.log.Warn("shutdown during shot", zap.String("shot", s.shotID))
				s.finalizeLocked(false, models.ReasonOperator)
			}
			s.mu.Unlock()
			return
		case now := <-timer.C:
			s.Tick(now.Sub(last).Seconds())
			last = now
			timer.Reset(s.cfg.TickPeriod)
		}
	}
}

// Tick advances the shot by dt seconds. Exposed so simulations and tests can
// drive the sequencer deterministically without the wall clock.
func (s *Sequencer) Tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePhaseActive {
		return
	}
	if dt <= 0 {
		dt = s.cfg.TickPeriod.Seconds()
	}
	s.elapsedS += dt
	s.phaseElapsedS += dt

	ph := &s.profile.Phases[s.phaseIdx]

	sample, ok := s.deps.Sampler.Latest()
	if !ok || sample.Fault {
		s.missed++
		if s.missed > s.cfg.GraceSamples {
			s.log.Error("sensor fault past grace window",
				zap.String("shot", s.shotID), zap.Int("missed", s.missed))
			// Fatal: losing the sensors mid-shot latches the health override
			// until the operator acknowledges it.
			if s.deps.Errors != nil {
				s.deps.Errors.Record(health.SevFatal, "engine",
					"shot aborted: sensor readings lost")
			}
			s.finalizeLocked(false, models.ReasonSensorFault)
			return
		}
		// Grace window: hold the last command, keep time-based criteria and
		// the hard maximum armed against the last known measurements.
		s.applyPower(s.lastCmd)
		if s.haveSample {
			target := control.PhaseTarget(ph, s.phaseElapsedS)
			s.record(ph, target, s.lastSample, s.lastCmd)
			s.checkBreakoutsLocked(ph, target, s.lastSample)
		}
		return
	}
	s.missed = 0
	s.lastSample = sample
	if !s.haveSample {
		s.haveSample = true
		s.phaseBaseW = sample.WeightG
		s.shotBaseW = sample.WeightG
	}

	target := control.PhaseTarget(ph, s.phaseElapsedS)
	actual := measured(ph.Mode, sample)
	cmd := s.bank.Compute(ph.Mode, target-actual, dt)
	s.applyPower(cmd)
	s.record(ph, target, sample, cmd)
	s.checkBreakoutsLocked(ph, target, sample)
}

// measured picks the controlled quantity for the phase mode. Pause phases
// have no setpoint; pressure is recorded as the actual for trace continuity.
func measured(mode models.ControlMode, sample models.Sample) float64 {
	if mode == models.ModeFlow {
		return sample.FlowMLs
	}
	return sample.PressureB
}

func (s *Sequencer) applyPower(level float64) {
	s.lastCmd = level
	if err := s.deps.Actuator.SetPower(level); err != nil {
		s.log.Warn("actuator write failed", zap.Error(err))
		if s.deps.Errors != nil {
			s.deps.Errors.Record(health.SevWarning, "actuator", err.Error())
		}
	}
}

func (s *Sequencer) record(ph *models.Phase, target float64, sample models.Sample, cmd float64) {
	pt := models.TracePoint{
		ElapsedS:  s.elapsedS,
		Phase:     s.phaseIdx,
		Target:    target,
		Actual:    measured(ph.Mode, sample),
		PressureB: sample.PressureB,
		FlowMLs:   sample.FlowMLs,
		WeightG:   sample.WeightG,
		Command:   cmd,
	}
	s.deps.Recorder.Append(pt)
	if s.deps.OnTick != nil {
		s.deps.OnTick(models.TickTelemetry{
			ShotID:    s.shotID,
			ElapsedS:  s.elapsedS,
			Phase:     s.phaseIdx,
			PhaseName: ph.Name,
			Mode:      ph.Mode.String(),
			Target:    target,
			PressureB: sample.PressureB,
			FlowMLs:   sample.FlowMLs,
			WeightG:   sample.WeightG,
			Command:   cmd,
		})
	}
}

func (s *Sequencer) checkBreakoutsLocked(ph *models.Phase, target float64, sample models.Sample) {
	bo, fired := s.eval.Evaluate(ph, BreakoutInputs{
		PhaseElapsedS: s.phaseElapsedS,
		WeightDeltaG:  sample.WeightG - s.phaseBaseW,
		FlowMLs:       sample.FlowMLs,
		PressureB:     sample.PressureB,
		Target:        target,
	})
	if !fired {
		return
	}
	s.deps.Recorder.EndPhase(bo.Kind.String(), bo.Synthetic, s.elapsedS, sample.WeightG)
	s.log.Info("phase ended",
		zap.String("shot", s.shotID),
		zap.Int("phase", s.phaseIdx),
		zap.Stringer("breakout", bo.Kind),
		zap.Bool("synthetic", bo.Synthetic),
		zap.Float64("t", s.elapsedS))

	if s.phaseIdx+1 >= len(s.profile.Phases) {
		s.finalizeLocked(true, models.ReasonNone)
		return
	}
	s.phaseIdx++
	s.phaseElapsedS = 0
	s.phaseBaseW = sample.WeightG
	// The target weight is total cup weight: entering the final phase, the
	// criterion drops to whatever is still left to pour.
	if s.targetW > 0 && s.phaseIdx == len(s.profile.Phases)-1 {
		overrideTargetWeight(s.profile, s.targetW-(sample.WeightG-s.shotBaseW))
	}
	s.bank.ResetPhase()
	s.deps.Recorder.BeginPhase(s.phaseIdx, s.profile.Phases[s.phaseIdx], s.elapsedS, sample.WeightG)
	if s.deps.OnPhase != nil {
		s.deps.OnPhase(s.shotID, s.phaseIdx, s.profile.Phases[s.phaseIdx].Name)
	}
}

// finalizeLocked ends the shot in either terminal state. The actuator is
// zeroed first so no code path can leave the pump running.
func (s *Sequencer) finalizeLocked(completed bool, reason models.AbortReason) {
	s.applyPower(0)
	if completed {
		s.state = StateShotComplete
	} else {
		s.state = StateAborted
	}
	rec := s.deps.Recorder.Finalize(completed, reason, time.Now())
	s.log.Info("shot finished",
		zap.String("shot", s.shotID),
		zap.Bool("completed", completed),
		zap.Stringer("reason", reason))
	if s.deps.OnComplete != nil && rec != nil {
		go s.deps.OnComplete(rec)
	}
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status is a point-in-time diagnostic view of the sequencer.
type Status struct {
	State     string              `json:"state"`
	ShotID    string              `json:"shotId,omitempty"`
	Profile   string              `json:"profile,omitempty"`
	Phase     int                 `json:"phase"`
	PhaseName string              `json:"phaseName,omitempty"`
	ElapsedS  float64             `json:"elapsed"`
	Gains     models.ControlGains `json:"gains"`
}

// Status reports the sequencer's current position for diagnostics.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state.String(),
		Phase:    s.phaseIdx,
		ElapsedS: s.elapsedS,
		Gains:    s.gains,
	}
	if s.profile != nil {
		st.ShotID = s.shotID
		st.Profile = s.profile.Name
		if s.phaseIdx < len(s.profile.Phases) {
			st.PhaseName = s.profile.Phases[s.phaseIdx].Name
		}
	}
	return st
}

// cloneProfile deep-copies a profile so mid-shot edits to the stored profile
// cannot leak into the running shot.
func cloneProfile(p *models.Profile) *models.Profile {
	out := *p
	out.Phases = make([]models.Phase, len(p.Phases))
	for i, ph := range p.Phases {
		out.Phases[i] = ph
		out.Phases[i].Breakouts = append([]models.BreakoutCriterion(nil), ph.Breakouts...)
	}
	return &out
}

// overrideTargetWeight sets the final phase's weight breakout; a profile
// without a weight criterion in its final phase gains one. Criteria compare
// weight gained since phase start, so callers pass the amount still to pour:
// the full target at shot start, the remainder on entry to the final phase.
func overrideTargetWeight(p *models.Profile, weightG float64) {
	last := &p.Phases[len(p.Phases)-1]
	for i := range last.Breakouts {
		if last.Breakouts[i].Kind == models.BreakWeight {
			last.Breakouts[i].Threshold = weightG
			return
		}
	}
	last.Breakouts = append(last.Breakouts, models.BreakoutCriterion{
		Kind: models.BreakWeight, Threshold: weightG,
	})
}
