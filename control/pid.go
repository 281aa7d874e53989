package control

import "github.com/brewforge/brewd/models"

// PID is a discrete PID controller with anti-windup. The integral term is
// clamped so its contribution alone can never exceed the actuator range,
// which stops runaway accumulation while the output is saturated.
type PID struct {
	gains models.ControlGains

	integral float64
	prevErr  float64
	primed   bool
}

// NewPID creates a PID controller with a frozen gains snapshot.
func NewPID(gains models.ControlGains) *PID {
	return &PID{gains: gains}
}

// Gains returns the snapshot this controller was built with.
func (c *PID) Gains() models.ControlGains { return c.gains }

// Reset clears the integral and derivative history.
func (c *PID) Reset() {
	c.integral = 0
	c.prevErr = 0
	c.primed = false
}

// Compute returns clamp(Kp*e + Ki*∫e dt + Kd*de/dt, 0, 1).
func (c *PID) Compute(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1e-3
	}

	p := c.gains.Kp * err

	c.integral += err * dt
	// Anti-windup: keep the integral's contribution within the actuator range.
	if c.gains.Ki > 0 {
		limit := 1.0 / c.gains.Ki
		c.integral = clampRange(c.integral, -limit, limit)
	}
	i := c.gains.Ki * c.integral

	// Derivative on error; skipped on the first tick after a reset so a phase
	// entry does not produce a derivative kick.
	var d float64
	if c.primed {
		d = c.gains.Kd * (err - c.prevErr) / dt
	}
	c.prevErr = err
	c.primed = true

	return clamp01(p + i + d)
}
