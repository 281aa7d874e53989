package health

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/brewforge/brewd/models"
)

// Sub-score weights. Sensor condition dominates because every control
// decision rides on it; the error log is next; process and link health round
// out the score.
const (
	weightSensors = 0.35
	weightErrors  = 0.30
	weightSystem  = 0.20
	weightNetwork = 0.15
)

// errorWindow bounds how far back the error sub-score looks.
const errorWindow = 10 * time.Minute

// Probes are the live-condition callbacks the aggregator polls on each
// snapshot. A nil probe scores its component as healthy.
type Probes struct {
	// Sensors reports whether a valid sample arrived recently and whether the
	// newest reading carried a fault flag.
	Sensors func() (fresh, faulted bool)
	// Network reports machine link state.
	Network func() (connected bool, detail string)
}

// Aggregator computes on-demand health snapshots. It keeps no state of its
// own beyond the error log it reads.
type Aggregator struct {
	errs   *Log
	probes Probes
}

// NewAggregator builds an aggregator over the given error log.
func NewAggregator(errs *Log, probes Probes) *Aggregator {
	if errs == nil {
		errs = NewLog(0)
	}
	return &Aggregator{errs: errs, probes: probes}
}

// Snapshot recomputes every sub-score synchronously and combines them. An
// unacknowledged fatal error caps the overall score inside the error tier no
// matter what the weighted combination says.
func (a *Aggregator) Snapshot() models.HealthSnapshot {
	sensors := a.sensorScore()
	errs := a.errorScore()
	system := a.systemScore()
	network := a.networkScore()

	weighted := weightSensors*float64(sensors.Score) +
		weightErrors*float64(errs.Score) +
		weightSystem*float64(system.Score) +
		weightNetwork*float64(network.Score)
	score := int(math.Round(weighted))

	fatal := a.errs.FatalSeen()
	if fatal && score > 49 {
		score = 49
	}

	return models.HealthSnapshot{
		At:      time.Now(),
		Score:   score,
		Tier:    models.TierFor(score),
		Subs:    []models.SubScore{sensors, errs, system, network},
		FatalOn: fatal,
	}
}

func (a *Aggregator) sensorScore() models.SubScore {
	s := models.SubScore{Name: "sensors", Score: 100, Message: "ok"}
	if a.probes.Sensors == nil {
		return s
	}
	fresh, faulted := a.probes.Sensors()
	switch {
	case !fresh:
		s.Score, s.Message = 10, "no recent samples"
	case faulted:
		s.Score, s.Message = 40, "sensor reporting faults"
	}
	return s
}

func (a *Aggregator) errorScore() models.SubScore {
	counts := a.errs.CountSince(errorWindow)
	score := 100 - 5*counts[SevWarning] - 15*counts[SevCritical] - 40*counts[SevFatal]
	if score < 0 {
		score = 0
	}
	s := models.SubScore{Name: "errors", Score: score}
	if total := counts[SevWarning] + counts[SevCritical] + counts[SevFatal]; total > 0 {
		s.Message = fmt.Sprintf("%d recent error(s)", total)
	}
	return s
}

func (a *Aggregator) systemScore() models.SubScore {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	score := 100
	if m.HeapSys > 0 {
		frac := float64(m.HeapAlloc) / float64(m.HeapSys)
		switch {
		case frac > 0.90:
			score -= 30
		case frac > 0.75:
			score -= 15
		}
	}
	return models.SubScore{
		Name:    "system",
		Score:   score,
		Message: fmt.Sprintf("heap %dMB, %d goroutines", m.HeapAlloc>>20, runtime.NumGoroutine()),
	}
}

func (a *Aggregator) networkScore() models.SubScore {
	s := models.SubScore{Name: "network", Score: 100, Message: "ok"}
	if a.probes.Network == nil {
		return s
	}
	connected, detail := a.probes.Network()
	if !connected {
		s.Score = 0
		s.Message = "machine link down"
		if detail != "" {
			s.Message = detail
		}
	} else if detail != "" {
		s.Message = detail
	}
	return s
}
