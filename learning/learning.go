// Package learning adjusts the control gains across shots. It is the slow
// loop: one bounded adjustment step per completed shot, derived from the
// recent shot history, never touching a shot in progress.
package learning

import (
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/brewforge/brewd/models"
)

// Config tunes the cross-shot adaptation. Zero values take the defaults.
type Config struct {
	// Window is how many recent completed shots feed the statistics.
	Window int
	// KpStep/KiStep/KdStep are the per-shot adjustment magnitudes.
	KpStep float64
	KiStep float64
	KdStep float64
	// OvershootHigh (bar) triggers the Kp-down/Kd-up rule.
	OvershootHigh float64
	// SettlingSlow (seconds) with overshoot below OvershootLow triggers the
	// Ki-up rule.
	SettlingSlow float64
	OvershootLow float64
	// Bounds is the safe envelope adjustments may never leave.
	Bounds models.GainBounds
}

func (c *Config) normalize() {
	if c.Window <= 0 {
		c.Window = 10
	}
	if c.KpStep <= 0 {
		c.KpStep = 0.05
	}
	if c.KiStep <= 0 {
		c.KiStep = 0.01
	}
	if c.KdStep <= 0 {
		c.KdStep = 0.02
	}
	if c.OvershootHigh <= 0 {
		c.OvershootHigh = 0.3
	}
	if c.SettlingSlow <= 0 {
		c.SettlingSlow = 2.0
	}
	if c.OvershootLow <= 0 {
		c.OvershootLow = 0.1
	}
	if c.Bounds == (models.GainBounds{}) {
		c.Bounds = models.GainBounds{
			KpMin: 0.05, KpMax: 2.0,
			KiMin: 0, KiMax: 0.5,
			KdMin: 0, KdMax: 1.0,
		}
	}
}

// Tuner owns the control gains. The sequencer snapshots them at shot start;
// Observe is the only writer, so the control loop never takes this lock
// inside a tick.
type Tuner struct {
	mu      sync.Mutex
	cfg     Config
	log     *zap.Logger
	gains   models.ControlGains
	enabled bool
}

// New builds a tuner starting from the given gains, clamped into bounds.
func New(initial models.ControlGains, cfg Config, log *zap.Logger) *Tuner {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Tuner{
		cfg:     cfg,
		log:     log.Named("learning"),
		gains:   cfg.Bounds.Clamp(initial),
		enabled: true,
	}
}

// Snapshot returns the current gains. Satisfies the sequencer's gain source.
func (t *Tuner) Snapshot() models.ControlGains {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gains
}

// Enabled reports whether cross-shot adaptation is active.
func (t *Tuner) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled toggles adaptation. Disabling freezes the gains at their
// current values; recording continues elsewhere regardless.
func (t *Tuner) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled != on {
		t.log.Info("learning toggled", zap.Bool("enabled", on))
	}
	t.enabled = on
}

// SetGains applies an operator override, clamped to the safe envelope.
func (t *Tuner) SetGains(g models.ControlGains) models.ControlGains {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gains = t.cfg.Bounds.Clamp(g)
	t.log.Info("gains overridden",
		zap.Float64("kp", t.gains.Kp),
		zap.Float64("ki", t.gains.Ki),
		zap.Float64("kd", t.gains.Kd))
	return t.gains
}

// Observe runs once after a shot ends. Aborted shots never adjust anything.
// At most one adjustment step is applied per shot, clamped into bounds.
func (t *Tuner) Observe(rec *models.ShotRecord, history []models.ShotSummary) {
	if rec == nil || !rec.Completed {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}

	var overshoots, settlings []float64
	for i := len(history) - 1; i >= 0 && len(overshoots) < t.cfg.Window; i-- {
		if !history[i].Completed {
			continue
		}
		overshoots = append(overshoots, history[i].MeanOvershoot)
		settlings = append(settlings, history[i].MeanSettlingS)
	}
	if len(overshoots) == 0 {
		return
	}
	meanOver := stat.Mean(overshoots, nil)
	meanSettle := stat.Mean(settlings, nil)

	before := t.gains
	g := t.gains
	switch {
	case meanOver > t.cfg.OvershootHigh:
		g.Kp -= t.cfg.KpStep
		g.Kd += t.cfg.KdStep
	case meanSettle > t.cfg.SettlingSlow && meanOver < t.cfg.OvershootLow:
		g.Ki += t.cfg.KiStep
	default:
		return
	}
	t.gains = t.cfg.Bounds.Clamp(g)

	if t.gains != before {
		t.log.Info("gains adjusted",
			zap.String("shot", rec.ShotID),
			zap.Float64("meanOvershoot", meanOver),
			zap.Float64("meanSettling", meanSettle),
			zap.Float64("kp", t.gains.Kp),
			zap.Float64("ki", t.gains.Ki),
			zap.Float64("kd", t.gains.Kd))
	}
}
