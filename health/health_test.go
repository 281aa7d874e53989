package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func healthyProbes() Probes {
	return Probes{
		Sensors: func() (bool, bool) { return true, false },
		Network: func() (bool, string) { return true, "" },
	}
}

func TestSnapshotHealthySystem(t *testing.T) {
	a := NewAggregator(NewLog(16), healthyProbes())

	snap := a.Snapshot()
	assert.GreaterOrEqual(t, snap.Score, 90)
	assert.Equal(t, models.TierExcellent, snap.Tier)
	assert.False(t, snap.FatalOn)
	require.Len(t, snap.Subs, 4)
}

func TestFatalErrorForcesErrorTier(t *testing.T) {
	log := NewLog(16)
	a := NewAggregator(log, healthyProbes())

	log.Record(SevFatal, "machine", "boiler thermal runaway")
	snap := a.Snapshot()
	assert.True(t, snap.FatalOn)
	assert.LessOrEqual(t, snap.Score, 49)
	assert.Equal(t, models.TierError, snap.Tier)

	// Acknowledging the fatal restores the weighted score.
	log.ClearFatal()
	snap = a.Snapshot()
	assert.False(t, snap.FatalOn)
	assert.Greater(t, snap.Score, 49)
}

func TestSensorAndNetworkProbesPullScoreDown(t *testing.T) {
	a := NewAggregator(NewLog(16), Probes{
		Sensors: func() (bool, bool) { return false, false },
		Network: func() (bool, string) { return false, "" },
	})

	snap := a.Snapshot()
	assert.Less(t, snap.Score, 90)

	var sensors, network models.SubScore
	for _, s := range snap.Subs {
		switch s.Name {
		case "sensors":
			sensors = s
		case "network":
			network = s
		}
	}
	assert.Equal(t, 10, sensors.Score)
	assert.Equal(t, 0, network.Score)
}

func TestErrorLogRingEvictsOldest(t *testing.T) {
	log := NewLog(3)
	log.Record(SevInfo, "a", "first")
	log.Record(SevWarning, "b", "second")
	log.Record(SevWarning, "c", "third")
	log.Record(SevCritical, "d", "fourth")

	entries := log.Recent(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "fourth", entries[2].Message)
}

func TestErrorScoreDegradesWithSeverity(t *testing.T) {
	log := NewLog(16)
	a := NewAggregator(log, healthyProbes())
	base := a.Snapshot().Score

	log.Record(SevCritical, "engine", "shot aborted: sensor readings lost")
	assert.Less(t, a.Snapshot().Score, base)
}
