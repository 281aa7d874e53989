// Package config loads brewd's TOML configuration, filling in defaults for
// anything the file leaves out. A missing file is not an error; the defaults
// run a simulated machine out of the box.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/brewforge/brewd/models"
)

type Config struct {
	Server   Server   `toml:"server"`
	Serial   Serial   `toml:"serial"`
	Engine   Engine   `toml:"engine"`
	Learning Learning `toml:"learning"`
	Store    Store    `toml:"store"`
	Logging  Logging  `toml:"logging"`
}

type Server struct {
	Listen string `toml:"listen"`
	WebDir string `toml:"web_dir"`
}

type Serial struct {
	Port     string `toml:"port"`
	Baud     int    `toml:"baud"`
	DeviceID int    `toml:"device_id"`
	PollMS   int    `toml:"poll_ms"`
}

type Engine struct {
	TickMS           int      `toml:"tick_ms"`
	GraceSamples     int      `toml:"grace_samples"`
	BreakoutPriority []string `toml:"breakout_priority"`
	SettleTolerance  float64  `toml:"settle_tolerance_pct"`
	HistorySize      int      `toml:"history_size"`
	Simulate         bool     `toml:"simulate"`
	SimSeed          int64    `toml:"sim_seed"`
}

type Learning struct {
	Enabled bool `toml:"enabled"`
	Window  int  `toml:"window"`

	// Per-shot adjustment steps and the thresholds that trigger them.
	KpStep        float64 `toml:"kp_step"`
	KiStep        float64 `toml:"ki_step"`
	KdStep        float64 `toml:"kd_step"`
	OvershootHigh float64 `toml:"overshoot_high"`
	SettlingSlow  float64 `toml:"settling_slow"`
	OvershootLow  float64 `toml:"overshoot_low"`

	Kp float64 `toml:"kp"`
	Ki float64 `toml:"ki"`
	Kd float64 `toml:"kd"`
	KpMin   float64 `toml:"kp_min"`
	KpMax   float64 `toml:"kp_max"`
	KiMin   float64 `toml:"ki_min"`
	KiMax   float64 `toml:"ki_max"`
	KdMin   float64 `toml:"kd_min"`
	KdMax   float64 `toml:"kd_max"`
}

type Store struct {
	Path string `toml:"path"`
}

type Logging struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Console    bool   `toml:"console"`
}

// Default is the configuration used when no file is present: simulated
// machine, local server, conservative gains.
func Default() Config {
	return Config{
		Server: Server{Listen: ":8093", WebDir: "web"},
		Serial: Serial{Baud: 115200, DeviceID: 1, PollMS: 50},
		Engine: Engine{
			TickMS:          100,
			GraceSamples:    3,
			SettleTolerance: 2.0,
			HistorySize:     50,
			Simulate:        true,
			SimSeed:         1,
		},
		Learning: Learning{
			Enabled: true,
			Window:  10,
			KpStep:  0.05, KiStep: 0.01, KdStep: 0.02,
			OvershootHigh: 0.3, SettlingSlow: 2.0, OvershootLow: 0.1,
			Kp: 0.12, Ki: 0.02, Kd: 0.04,
			KpMin: 0.05, KpMax: 2.0,
			KiMin: 0, KiMax: 0.5,
			KdMin: 0, KdMax: 1.0,
		},
		Store: Store{Path: "brewd.db"},
		Logging: Logging{
			Level: "info", MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 14,
			Console: true,
		},
	}
}

// Load reads the TOML file at path on top of the defaults. An empty path or
// a missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.TickMS <= 0 {
		return fmt.Errorf("engine.tick_ms must be positive")
	}
	if c.Engine.SettleTolerance <= 0 || c.Engine.SettleTolerance >= 100 {
		return fmt.Errorf("engine.settle_tolerance_pct must be in (0,100)")
	}
	if _, err := c.BreakoutPriority(); err != nil {
		return err
	}
	return nil
}

// TickPeriod returns the control loop interval.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Engine.TickMS) * time.Millisecond
}

// BreakoutPriority parses the configured criterion order. Empty means the
// built-in default.
func (c *Config) BreakoutPriority() ([]models.CriterionKind, error) {
	if len(c.Engine.BreakoutPriority) == 0 {
		return nil, nil
	}
	out := make([]models.CriterionKind, 0, len(c.Engine.BreakoutPriority))
	for _, s := range c.Engine.BreakoutPriority {
		k, err := models.ParseCriterionKind(s)
		if err != nil {
			return nil, fmt.Errorf("engine.breakout_priority: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Gains returns the configured starting gains.
func (c *Config) Gains() models.ControlGains {
	return models.ControlGains{Kp: c.Learning.Kp, Ki: c.Learning.Ki, Kd: c.Learning.Kd}
}

// GainBounds returns the safe envelope for the learning engine.
func (c *Config) GainBounds() models.GainBounds {
	return models.GainBounds{
		KpMin: c.Learning.KpMin, KpMax: c.Learning.KpMax,
		KiMin: c.Learning.KiMin, KiMax: c.Learning.KiMax,
		KdMin: c.Learning.KdMin, KdMax: c.Learning.KdMax,
	}
}
