package control

import (
	"gonum.org/v1/gonum/stat"

	"github.com/brewforge/brewd/models"
)

// adaptiveWindow is the number of recent in-shot errors used to estimate the
// short-term trend. At a 100 ms tick this is two seconds of history.
const adaptiveWindow = 20

// Scale factor bounds; the adaptation can at most halve or double the
// underlying PID response.
const (
	adaptiveScaleMin = 0.5
	adaptiveScaleMax = 2.0
)

// Adaptive wraps PID and continuously rescales its output from the
// short-term trend of the error signal within the current shot. This is the
// fast, local counterpart to the learning engine's slower cross-shot tuning:
// the scale factor lives only for the shot and is never persisted.
type Adaptive struct {
	pid   *PID
	scale float64

	errs  []float64
	times []float64
	t     float64
}

// NewAdaptive creates an adaptive controller around a PID gains snapshot.
func NewAdaptive(gains models.ControlGains) *Adaptive {
	return &Adaptive{
		pid:   NewPID(gains),
		scale: 1.0,
		errs:  make([]float64, 0, adaptiveWindow),
		times: make([]float64, 0, adaptiveWindow),
	}
}

// Reset clears the wrapped PID and the trend window; the scale factor resets
// to neutral on phase entry.
func (c *Adaptive) Reset() {
	c.pid.Reset()
	c.scale = 1.0
	c.errs = c.errs[:0]
	c.times = c.times[:0]
	c.t = 0
}

// Compute runs the wrapped PID and applies the current scale factor, then
// updates the trend estimate for the next tick.
func (c *Adaptive) Compute(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1e-3
	}
	raw := c.pid.Compute(err, dt)
	out := clamp01(raw * c.scale)

	c.t += dt
	c.errs = append(c.errs, err)
	c.times = append(c.times, c.t)
	if len(c.errs) > adaptiveWindow {
		c.errs = c.errs[1:]
		c.times = c.times[1:]
	}
	c.updateScale()

	return out
}

// Scale exposes the current gain scale factor for telemetry.
func (c *Adaptive) Scale() float64 { return c.scale }

// updateScale re-estimates the scale factor from the windowed error trend.
// A persistently positive error with a flat slope means the response is too
// weak: scale up. An oscillating error (high variance around a near-zero
// mean) means it is too hot: scale down. Adjustments are small per tick so
// the factor drifts rather than jumps.
func (c *Adaptive) updateScale() {
	if len(c.errs) < adaptiveWindow/2 {
		return
	}
	mean, std := stat.MeanStdDev(c.errs, nil)
	_, slope := stat.LinearRegression(c.times, c.errs, nil, false)

	const step = 0.02
	switch {
	case mean > 0.05 && slope > -0.01:
		// Error holding above the setpoint band and not decaying.
		c.scale += step
	case std > 0.15 && mean < 0.05 && mean > -0.05:
		// Bouncing around the setpoint.
		c.scale -= step
	case mean < -0.05:
		// Persistent overshoot.
		c.scale -= step
	}
	c.scale = clampRange(c.scale, adaptiveScaleMin, adaptiveScaleMax)
}
