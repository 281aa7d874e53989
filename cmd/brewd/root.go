package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brewforge/brewd/internal/config"
	"github.com/brewforge/brewd/learning"
	"github.com/brewforge/brewd/models"
	"github.com/brewforge/brewd/recorder"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "brewd",
	Short: "Espresso brew controller daemon",
	Long: `brewd drives an espresso machine through multi-phase brew profiles:
closed-loop pressure and flow control, per-shot recording and analytics,
and slow cross-shot gain learning. Runs against real hardware over a
serial link or against a built-in simulator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "brewd.toml", "path to TOML config")
	rootCmd.AddCommand(serveCmd, simulateCmd, consoleCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgPath)
}

// recorderFromConfig builds the shot recorder every command shares.
func recorderFromConfig(cfg config.Config) *recorder.Recorder {
	return recorder.New(cfg.Engine.HistorySize, cfg.Engine.SettleTolerance/100)
}

// tunerFromConfig builds the gain tuner with every step and threshold the
// [learning] section carries.
func tunerFromConfig(cfg config.Config, log *zap.Logger) *learning.Tuner {
	t := learning.New(cfg.Gains(), learning.Config{
		Window:        cfg.Learning.Window,
		KpStep:        cfg.Learning.KpStep,
		KiStep:        cfg.Learning.KiStep,
		KdStep:        cfg.Learning.KdStep,
		OvershootHigh: cfg.Learning.OvershootHigh,
		SettlingSlow:  cfg.Learning.SettlingSlow,
		OvershootLow:  cfg.Learning.OvershootLow,
		Bounds:        cfg.GainBounds(),
	}, log)
	t.SetEnabled(cfg.Learning.Enabled)
	return t
}

// benchProfile is the built-in profile the simulate and console commands run
// when the store has nothing selected: a gentle preinfusion, a ramp to nine
// bar, then a flat extraction to 36 grams.
func benchProfile() *models.Profile {
	return &models.Profile{
		ID: 0, Name: "bench classic", Technique: "9 bar flat", Enabled: true,
		DoseG: 18, YieldG: 36, Ratio: 2,
		Phases: []models.Phase{
			{
				Name: "preinfuse", Mode: models.ModePressure, Target: 3,
				Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakTime, Threshold: 6}},
				MaxSeconds: 10,
			},
			{
				Name: "ramp", Mode: models.ModeRamp, TargetStart: 3, TargetEnd: 9, RampSeconds: 4,
				Breakouts:  []models.BreakoutCriterion{{Kind: models.BreakTime, Threshold: 4}},
				MaxSeconds: 8,
			},
			{
				Name: "extract", Mode: models.ModePressure, Target: 9,
				Breakouts: []models.BreakoutCriterion{
					{Kind: models.BreakWeight, Threshold: 36},
					{Kind: models.BreakTime, Threshold: 35},
				},
				MaxSeconds: 45,
			},
		},
	}
}
