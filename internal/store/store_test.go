package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleProfile() *models.Profile {
	return &models.Profile{
		Name:      "classic 9 bar",
		Technique: "flat",
		DoseG:     18, YieldG: 36, Ratio: 2,
		Enabled: true,
		Phases: []models.Phase{
			{
				Name: "preinfuse", Mode: models.ModePressure, Target: 3,
				Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakTime, Threshold: 8}},
				MaxSeconds: 15,
			},
			{
				Name: "extract", Mode: models.ModePressure, Target: 9,
				Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakWeight, Threshold: 36}},
				MaxSeconds: 45,
			},
		},
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTest(t)

	id, err := s.SaveProfile(sampleProfile())
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.Profile(id)
	require.NoError(t, err)
	assert.Equal(t, "classic 9 bar", got.Name)
	require.Len(t, got.Phases, 2)
	assert.Equal(t, models.ModePressure, got.Phases[1].Mode)
	assert.Equal(t, 36.0, got.Phases[1].Breakouts[0].Threshold)

	got.Phases[1].Target = 8.5
	_, err = s.SaveProfile(got)
	require.NoError(t, err)

	again, err := s.Profile(id)
	require.NoError(t, err)
	assert.Equal(t, 8.5, again.Phases[1].Target)
}

func TestProfileValidationEnforcedOnSave(t *testing.T) {
	s := openTest(t)
	_, err := s.SaveProfile(&models.Profile{Name: "broken"})
	assert.Error(t, err)
}

func TestDeleteProfile(t *testing.T) {
	s := openTest(t)
	id, err := s.SaveProfile(sampleProfile())
	require.NoError(t, err)

	require.NoError(t, s.DeleteProfile(id))
	_, err = s.Profile(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteProfile(id), ErrNotFound)
}

func TestShotRoundTrip(t *testing.T) {
	s := openTest(t)

	started := time.Now().Add(-30 * time.Second)
	rec := &models.ShotRecord{
		ShotID:    "shot-abc",
		ProfileID: 1,
		Profile:   "classic 9 bar",
		StartedAt: started,
		EndedAt:   time.Now(),
		Completed: true,
		Gains:     models.ControlGains{Kp: 0.12, Ki: 0.02, Kd: 0.04},
		Trace: []models.TracePoint{
			{ElapsedS: 0.1, Target: 9, Actual: 4, PressureB: 4, Command: 0.5},
			{ElapsedS: 0.2, Target: 9, Actual: 6, PressureB: 6, Command: 0.45},
		},
		Phases: []models.PhaseSummary{{Index: 0, Mode: "pressure", Breakout: "weight"}},
		Summary: models.ShotSummary{
			ShotID: "shot-abc", ProfileName: "classic 9 bar", Completed: true,
			QualityScore: 88, QualityClass: "excellent",
		},
	}
	require.NoError(t, s.SaveShot(rec))

	got, err := s.Shot("shot-abc")
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, models.ReasonNone, got.Reason)
	assert.Len(t, got.Trace, 2)
	assert.Equal(t, 88.0, got.Summary.QualityScore)

	_, err = s.Shot("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShotsNewestFirstWithPaging(t *testing.T) {
	s := openTest(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		rec := &models.ShotRecord{
			ShotID:    string(rune('a' + i)),
			Profile:   "p",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Summary:   models.ShotSummary{ShotID: string(rune('a' + i))},
		}
		require.NoError(t, s.SaveShot(rec))
	}

	sums, err := s.Shots(2, 0, "")
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "c", sums[0].ShotID)
	assert.Equal(t, "b", sums[1].ShotID)

	sums, err = s.Shots(2, 2, "")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "a", sums[0].ShotID)
}

func TestShotsFilteredByProfile(t *testing.T) {
	s := openTest(t)
	base := time.Now()
	for i, name := range []string{"classic", "lever", "classic"} {
		rec := &models.ShotRecord{
			ShotID:    string(rune('a' + i)),
			Profile:   name,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i) * time.Minute),
			Summary:   models.ShotSummary{ShotID: string(rune('a' + i)), ProfileName: name},
		}
		require.NoError(t, s.SaveShot(rec))
	}

	sums, err := s.Shots(10, 0, "classic")
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "c", sums[0].ShotID)
	assert.Equal(t, "a", sums[1].ShotID)
}

func TestStatsAggregates(t *testing.T) {
	s := openTest(t)
	base := time.Now()
	durations := []float64{20, 30}
	for i, d := range durations {
		rec := &models.ShotRecord{
			ShotID:    string(rune('a' + i)),
			Profile:   "classic",
			StartedAt: base,
			EndedAt:   base,
			Completed: i == 0,
			Summary: models.ShotSummary{
				ShotID:        string(rune('a' + i)),
				DurationS:     d,
				FinalWeightG:  36,
				PeakPressureB: 9,
			},
		}
		require.NoError(t, s.SaveShot(rec))
	}

	st, err := s.Stats("")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1, st.Completed)
	assert.InDelta(t, 25.0, st.AvgDurationS, 1e-9)
	assert.InDelta(t, 36.0, st.AvgWeightG, 1e-9)
	assert.InDelta(t, 9.0, st.AvgPeakPressureB, 1e-9)

	empty, err := s.Stats("missing")
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.AvgDurationS)
}

func TestSettings(t *testing.T) {
	s := openTest(t)

	_, err := s.Setting("selectedProfile")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSetting("selectedProfile", "3"))
	require.NoError(t, s.SetSetting("selectedProfile", "5"))

	v, err := s.Setting("selectedProfile")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}
