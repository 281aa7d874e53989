package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyClampedAndMonotonicAtExtremes(t *testing.T) {
	f := NewFuzzy()

	// Large positive error (far below target) drives full power.
	f.Compute(10, 0.1) // prime the rate estimate
	assert.Equal(t, 1.0, f.Compute(10, 0.1))

	// Large negative error (far above target) cuts power entirely.
	f.Reset()
	f.Compute(-10, 0.1)
	assert.Equal(t, 0.0, f.Compute(-10, 0.1))
}

func TestFuzzyHoldsMidCommandAtSetpoint(t *testing.T) {
	f := NewFuzzy()
	f.Compute(0, 0.1)
	out := f.Compute(0, 0.1)
	assert.InDelta(t, 0.5, out, 1e-9)
}

func TestFuzzyRateTermBacksOff(t *testing.T) {
	// Same error, but approaching the target fast (error falling) should
	// command less power than approaching slowly.
	fast := NewFuzzy()
	fast.Compute(2.0, 0.1)
	fastOut := fast.Compute(0.5, 0.1) // error dropped quickly

	slow := NewFuzzy()
	slow.Compute(0.6, 0.1)
	slowOut := slow.Compute(0.5, 0.1) // nearly steady

	assert.Less(t, fastOut, slowOut)
}

func TestFuzzyDeterministic(t *testing.T) {
	a, b := NewFuzzy(), NewFuzzy()
	for _, e := range []float64{1.5, 1.0, 0.4, -0.2, 0.0, 0.1} {
		assert.Equal(t, a.Compute(e, 0.1), b.Compute(e, 0.1))
	}
}

func TestMembershipsPartition(t *testing.T) {
	// Inside the span, memberships of adjacent classes sum to 1.
	for _, x := range []float64{-0.9, -0.6, -0.25, 0.0, 0.3, 0.75, 0.99} {
		m := memberships(x)
		sum := 0.0
		for _, v := range m {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "x=%v", x)
	}
}
