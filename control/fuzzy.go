package control

// Fuzzy maps (error, error rate) through a fixed rule table into an actuator
// command. It has no learned parameters; profile authors select it when they
// want smoother, less oscillatory behavior than PID near the setpoint.
//
// Five triangular membership classes per input (NB NS ZE PS PB) and singleton
// outputs per rule, defuzzified by weighted average.
type Fuzzy struct {
	// Input scaling: error of +-errSpan and rate of +-rateSpan map onto the
	// full membership range.
	errSpan  float64
	rateSpan float64

	prevErr float64
	primed  bool
}

// membership class indices
const (
	nb = iota // negative big
	ns        // negative small
	ze        // zero
	ps        // positive small
	pb        // positive big
)

// ruleTable[e][de] is the output singleton for the given error / error-rate
// classes. Positive error (actual below target) pushes the command up;
// a rising error rate reinforces, a falling one backs off.
var ruleTable = [5][5]float64{
	//          de: NB     NS     ZE     PS     PB
	/* e NB */ {0.00, 0.00, 0.00, 0.10, 0.20},
	/* e NS */ {0.00, 0.10, 0.20, 0.30, 0.40},
	/* e ZE */ {0.20, 0.35, 0.50, 0.65, 0.80},
	/* e PS */ {0.60, 0.70, 0.80, 0.90, 1.00},
	/* e PB */ {0.80, 0.90, 1.00, 1.00, 1.00},
}

// NewFuzzy creates a fuzzy controller with default input spans suited to
// espresso pressure/flow errors (a few bar / a few ml/s).
func NewFuzzy() *Fuzzy {
	return &Fuzzy{errSpan: 3.0, rateSpan: 6.0}
}

// Reset clears the error-rate history.
func (c *Fuzzy) Reset() {
	c.prevErr = 0
	c.primed = false
}

// Compute fuzzifies the inputs, fires the rule table, and defuzzifies to a
// command in [0,1].
func (c *Fuzzy) Compute(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1e-3
	}
	var rate float64
	if c.primed {
		rate = (err - c.prevErr) / dt
	}
	c.prevErr = err
	c.primed = true

	em := memberships(err / c.errSpan)
	rm := memberships(rate / c.rateSpan)

	var num, den float64
	for i := 0; i < 5; i++ {
		if em[i] == 0 {
			continue
		}
		for j := 0; j < 5; j++ {
			if rm[j] == 0 {
				continue
			}
			// Rule strength: min of the two antecedent memberships.
			w := em[i]
			if rm[j] < w {
				w = rm[j]
			}
			num += w * ruleTable[i][j]
			den += w
		}
	}
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// memberships evaluates the five triangular membership functions at x, where
// x is the input normalized so that +-1 spans the full range. Centers sit at
// -1, -0.5, 0, 0.5, 1 with half-width 0.5; inputs beyond the ends saturate.
func memberships(x float64) [5]float64 {
	x = clampRange(x, -1, 1)
	centers := [5]float64{-1, -0.5, 0, 0.5, 1}
	const halfWidth = 0.5
	var out [5]float64
	for i, cen := range centers {
		d := x - cen
		if d < 0 {
			d = -d
		}
		if d < halfWidth {
			out[i] = 1 - d/halfWidth
		}
	}
	// Saturate the outermost classes so extreme inputs keep full membership.
	if x <= -1 {
		out[nb] = 1
	}
	if x >= 1 {
		out[pb] = 1
	}
	return out
}
