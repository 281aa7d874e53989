// Package machine provides the simulated espresso machine used for bench
// runs: first-order pump/puck dynamics behind the same sampler and actuator
// contracts the serial link satisfies, so the whole stack runs without
// hardware.
package machine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/brewforge/brewd/models"
)

// Simulator plays the machine: the commanded pump level drives pressure
// toward its share of the pump's maximum with a first-order lag, flow follows
// pressure through the puck, and the scale integrates flow.
type Simulator struct {
	mu sync.Mutex

	cmd      float64
	pressure float64
	flow     float64
	weight   float64
	temp     float64

	rng *rand.Rand
}

const (
	simMaxPressureB = 12.0 // dead-headed pump at full drive
	simTauS         = 1.2  // pressure lag time constant
	simDripBar      = 1.0  // below this the puck passes nothing
	simPuckFlow     = 0.25 // ml/s per bar above the drip threshold
	simBrewTempC    = 92.5
)

// NewSimulator returns a simulator with a seeded noise source so runs are
// reproducible.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		temp: simBrewTempC,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SetPower implements the actuator contract.
func (s *Simulator) SetPower(level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	s.mu.Lock()
	s.cmd = level
	s.mu.Unlock()
	return nil
}

// Latest implements the sampler contract. The simulator always has a fresh
// reading.
func (s *Simulator) Latest() (models.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Sample{
		At:        time.Now(),
		PressureB: s.pressure,
		FlowMLs:   s.flow,
		TempC:     s.temp,
		WeightG:   s.weight,
	}, true
}

// Step advances the physics by dt seconds. Deterministic apart from the
// seeded measurement noise.
func (s *Simulator) Step(dt float64) {
	if dt <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.cmd * simMaxPressureB
	s.pressure += (target - s.pressure) * dt / simTauS
	if s.pressure < 0 {
		s.pressure = 0
	}

	s.flow = 0
	if s.pressure > simDripBar {
		s.flow = (s.pressure - simDripBar) * simPuckFlow
		s.flow += s.rng.NormFloat64() * 0.01
		if s.flow < 0 {
			s.flow = 0
		}
	}
	s.weight += s.flow * dt
	s.temp = simBrewTempC + s.rng.NormFloat64()*0.05
}

// Run steps the physics on a wall-clock ticker until ctx is cancelled, for
// serve mode where the control loop runs on its own timer.
func (s *Simulator) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Tare zeroes the simulated scale, mirroring the hardware link.
func (s *Simulator) Tare() error {
	s.mu.Lock()
	s.weight = 0
	s.mu.Unlock()
	return nil
}

// Connect and Close are no-ops; the simulator is always reachable. They
// exist so the server can treat it exactly like the serial link.
func (s *Simulator) Connect() error { return nil }

// Close implements the machine lifecycle contract.
func (s *Simulator) Close() error { return nil }

// Port names the simulated device for diagnostics.
func (s *Simulator) Port() string { return "simulator" }

// Version reports the simulated firmware banner.
func (s *Simulator) Version() string { return "brewctl-sim" }

// Connected always holds for the simulator's health probe.
func (s *Simulator) Connected() bool { return true }

// SensorStatus reports an always-fresh, never-faulted sensor set.
func (s *Simulator) SensorStatus() (fresh, faulted bool) { return true, false }
