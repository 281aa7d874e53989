package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewforge/brewd/models"
)

func TestMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Engine.Simulate)
}

func TestLoadOverridesOnTopOfDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brewd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[serial]
port = "/dev/ttyUSB0"

[engine]
tick_ms = 50
simulate = false
breakout_priority = ["time", "weight", "flow", "pressurePercent"]

[learning]
enabled = false
kp = 0.3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 50, cfg.Engine.TickMS)
	assert.False(t, cfg.Engine.Simulate)
	assert.False(t, cfg.Learning.Enabled)
	assert.Equal(t, 0.3, cfg.Gains().Kp)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8093", cfg.Server.Listen)
	assert.Equal(t, 3, cfg.Engine.GraceSamples)

	prio, err := cfg.BreakoutPriority()
	require.NoError(t, err)
	assert.Equal(t, models.BreakTime, prio[0])
}

func TestLearningStepsAndThresholdsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brewd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[learning]
kp_step = 0.1
overshoot_high = 0.5
settling_slow = 3.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Learning.KpStep)
	assert.Equal(t, 0.5, cfg.Learning.OvershootHigh)
	assert.Equal(t, 3.5, cfg.Learning.SettlingSlow)

	// Steps and thresholds the file leaves out keep their defaults.
	assert.Equal(t, 0.01, cfg.Learning.KiStep)
	assert.Equal(t, 0.02, cfg.Learning.KdStep)
	assert.Equal(t, 0.1, cfg.Learning.OvershootLow)
}

func TestRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad-tick.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[engine]\ntick_ms = -5\n"), 0o644))
	_, err := Load(bad)
	assert.ErrorContains(t, err, "tick_ms")

	badPrio := filepath.Join(dir, "bad-prio.toml")
	require.NoError(t, os.WriteFile(badPrio, []byte("[engine]\nbreakout_priority = [\"volume\"]\n"), 0o644))
	_, err = Load(badPrio)
	assert.ErrorContains(t, err, "breakout_priority")
}
