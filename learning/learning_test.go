package learning

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func completedRecord(id string) *models.ShotRecord {
	return &models.ShotRecord{ShotID: id, Completed: true}
}

func historyOf(n int, overshoot, settling float64) []models.ShotSummary {
	h := make([]models.ShotSummary, n)
	for i := range h {
		h[i] = models.ShotSummary{
			ShotID:        fmt.Sprintf("shot-%d", i),
			Completed:     true,
			MeanOvershoot: overshoot,
			MeanSettlingS: settling,
		}
	}
	return h
}

func TestOvershootLowersKpRaisesKd(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5, Ki: 0.05, Kd: 0.1}, Config{}, nil)

	tn.Observe(completedRecord("a"), historyOf(10, 0.6, 1.0))
	g := tn.Snapshot()
	assert.InDelta(t, 0.45, g.Kp, 1e-9)
	assert.InDelta(t, 0.12, g.Kd, 1e-9)
	assert.InDelta(t, 0.05, g.Ki, 1e-9, "settling rule must not also fire")
}

func TestSlowSettlingRaisesKi(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5, Ki: 0.05, Kd: 0.1}, Config{}, nil)

	tn.Observe(completedRecord("a"), historyOf(10, 0.02, 4.0))
	g := tn.Snapshot()
	assert.InDelta(t, 0.06, g.Ki, 1e-9)
	assert.InDelta(t, 0.5, g.Kp, 1e-9)
}

func TestTenBadShotsWalkKpToLowerBound(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.4, Ki: 0.05, Kd: 0.1}, Config{
		Bounds: models.GainBounds{KpMin: 0.2, KpMax: 2, KiMax: 0.5, KdMax: 1},
	}, nil)

	for i := 0; i < 10; i++ {
		tn.Observe(completedRecord(fmt.Sprintf("s%d", i)), historyOf(10, 0.8, 1.0))
	}
	g := tn.Snapshot()
	assert.Equal(t, 0.2, g.Kp, "clamped at the bound, never below")
	assert.LessOrEqual(t, g.Kd, 1.0)
}

func TestAbortedShotNeverAdjusts(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5, Ki: 0.05, Kd: 0.1}, Config{}, nil)
	before := tn.Snapshot()

	tn.Observe(&models.ShotRecord{ShotID: "x", Completed: false}, historyOf(10, 0.9, 5))
	assert.Equal(t, before, tn.Snapshot())
}

func TestDisabledFreezesGains(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5, Ki: 0.05, Kd: 0.1}, Config{}, nil)
	tn.SetEnabled(false)
	before := tn.Snapshot()

	for i := 0; i < 5; i++ {
		tn.Observe(completedRecord(fmt.Sprintf("s%d", i)), historyOf(10, 0.9, 5))
	}
	assert.Equal(t, before, tn.Snapshot())
	assert.False(t, tn.Enabled())

	tn.SetEnabled(true)
	tn.Observe(completedRecord("again"), historyOf(10, 0.9, 5))
	assert.NotEqual(t, before, tn.Snapshot())
}

func TestAbortedHistoryEntriesAreSkipped(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5, Ki: 0.05, Kd: 0.1}, Config{}, nil)

	// Only aborted entries: nothing to learn from.
	h := historyOf(5, 0.9, 5)
	for i := range h {
		h[i].Completed = false
	}
	before := tn.Snapshot()
	tn.Observe(completedRecord("a"), h)
	assert.Equal(t, before, tn.Snapshot())
}

func TestOperatorOverrideClamped(t *testing.T) {
	tn := New(models.ControlGains{Kp: 0.5}, Config{}, nil)

	g := tn.SetGains(models.ControlGains{Kp: 99, Ki: -1, Kd: 0.3})
	require.Equal(t, g, tn.Snapshot())
	assert.Equal(t, 2.0, g.Kp)
	assert.Equal(t, 0.0, g.Ki)
	assert.Equal(t, 0.3, g.Kd)
}
