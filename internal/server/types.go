package server

import (
	"github.com/brewforge/brewd/models"
)

// APIError is the canonical error envelope for JSON endpoints.
type APIError struct {
	Error string `json:"error"`
}

// ConnectResponse is returned by /api/connect.
type ConnectResponse struct {
	Connected bool     `json:"connected"`
	Port      string   `json:"port"`
	Firmware  string   `json:"firmware,omitempty"`
	DetectLog []string `json:"detectLog,omitempty"`
}

// ProfileIDRequest addresses one profile by id (select/delete).
type ProfileIDRequest struct {
	ID int64 `json:"id"`
}

// ProfilesResponse lists stored profiles plus the active selection.
type ProfilesResponse struct {
	Profiles []models.Profile `json:"profiles"`
	Selected int64            `json:"selected,omitempty"`
}

// ShotStartRequest starts a shot. ProfileID zero uses the selected profile;
// TargetWeightG > 0 overrides the final weight breakout for this shot.
type ShotStartRequest struct {
	ProfileID     int64   `json:"profileId,omitempty"`
	TargetWeightG float64 `json:"targetWeight,omitempty"`
}

// ShotStartResponse reports the started shot.
type ShotStartResponse struct {
	ShotID  string `json:"shotId"`
	Profile string `json:"profile"`
}

// LearningState is both the GET response and POST body of /api/learning.
type LearningState struct {
	Enabled bool                `json:"enabled"`
	Gains   models.ControlGains `json:"gains"`
}

// GainsRequest is an operator gains override.
type GainsRequest struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// ShotStatsResponse is the analytics view of one recorded shot.
type ShotStatsResponse struct {
	Summary         models.ShotSummary    `json:"summary"`
	Phases          []models.PhaseSummary `json:"phases"`
	Recommendations []string              `json:"recommendations"`
}

// DiagnosticsResponse is the one-stop operator debugging snapshot.
type DiagnosticsResponse struct {
	Sequencer any                   `json:"sequencer"`
	Machine   MachineStatus         `json:"machine"`
	Learning  LearningState         `json:"learning"`
	Health    models.HealthSnapshot `json:"health"`
	Errors    any                   `json:"recentErrors"`
	DetectLog []string              `json:"detectLog,omitempty"`
}

// MachineStatus describes the machine link.
type MachineStatus struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	Firmware  string `json:"firmware,omitempty"`
}
