// Package store persists brew profiles and shot records in a local SQLite
// database. Profiles' phase lists and shots' traces are stored as JSON
// columns; queries that need them decode on the way out.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/brewforge/brewd/models"
)

// ErrNotFound is returned when a profile or shot id has no row.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	technique  TEXT NOT NULL DEFAULT '',
	algorithm  TEXT NOT NULL DEFAULT '',
	dose_g     REAL NOT NULL DEFAULT 0,
	yield_g    REAL NOT NULL DEFAULT 0,
	ratio      REAL NOT NULL DEFAULT 0,
	enabled    INTEGER NOT NULL DEFAULT 1,
	phases     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS shots (
	id           TEXT PRIMARY KEY,
	profile_id   INTEGER NOT NULL,
	profile_name TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	ended_at     TEXT NOT NULL,
	completed    INTEGER NOT NULL,
	abort_reason TEXT NOT NULL DEFAULT 'none',
	gains        TEXT NOT NULL,
	summary      TEXT NOT NULL,
	phases       TEXT NOT NULL,
	trace        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shots_started ON shots(started_at DESC);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store wraps the database handle. Safe for concurrent use; database/sql
// serializes access to the single SQLite connection pool.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" gives an
// ephemeral store for tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log.Named("store")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveProfile inserts a new profile (ID zero) or updates an existing one.
// Returns the profile's ID.
func (s *Store) SaveProfile(p *models.Profile) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	phases, err := json.Marshal(p.Phases)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if p.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO profiles (name, technique, algorithm, dose_g, yield_g, ratio, enabled, phases, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			p.Name, p.Technique, p.Algorithm, p.DoseG, p.YieldG, p.Ratio, boolInt(p.Enabled), string(phases), now, now)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	res, err := s.db.Exec(`
		UPDATE profiles SET name=?, technique=?, algorithm=?, dose_g=?, yield_g=?, ratio=?, enabled=?, phases=?, updated_at=?
		WHERE id=?`,
		p.Name, p.Technique, p.Algorithm, p.DoseG, p.YieldG, p.Ratio, boolInt(p.Enabled), string(phases), now, p.ID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return p.ID, nil
}

// Profile loads one profile by id.
func (s *Store) Profile(id int64) (*models.Profile, error) {
	row := s.db.QueryRow(`
		SELECT id, name, technique, algorithm, dose_g, yield_g, ratio, enabled, phases
		FROM profiles WHERE id=?`, id)
	return scanProfile(row)
}

// Profiles lists every stored profile, ordered by name.
func (s *Store) Profiles() ([]models.Profile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, technique, algorithm, dose_g, yield_g, ratio, enabled, phases
		FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile. Recorded shots keep the profile name.
func (s *Store) DeleteProfile(id int64) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var enabled int
	var phases string
	err := row.Scan(&p.ID, &p.Name, &p.Technique, &p.Algorithm, &p.DoseG, &p.YieldG, &p.Ratio, &enabled, &phases)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(phases), &p.Phases); err != nil {
		return nil, fmt.Errorf("profile %d phases: %w", p.ID, err)
	}
	return &p, nil
}

// SaveShot persists a finalized shot record.
func (s *Store) SaveShot(rec *models.ShotRecord) error {
	gains, err := json.Marshal(rec.Gains)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return err
	}
	phases, err := json.Marshal(rec.Phases)
	if err != nil {
		return err
	}
	trace, err := json.Marshal(rec.Trace)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO shots (id, profile_id, profile_name, started_at, ended_at, completed, abort_reason, gains, summary, phases, trace)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ShotID, rec.ProfileID, rec.Profile,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.EndedAt.UTC().Format(time.RFC3339Nano),
		boolInt(rec.Completed), rec.Reason.String(),
		string(gains), string(summary), string(phases), string(trace))
	return err
}

// Shots returns recent shot summaries, newest first. profile filters by
// profile name when non-empty; offset skips past the newest entries for
// paging.
func (s *Store) Shots(limit, offset int, profile string) ([]models.ShotSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT summary FROM shots`
	args := []any{}
	if profile != "" {
		q += ` WHERE profile_name=?`
		args = append(args, profile)
	}
	q += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ShotSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var sum models.ShotSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Shot loads a full shot record, trace included.
func (s *Store) Shot(id string) (*models.ShotRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, profile_id, profile_name, started_at, ended_at, completed, abort_reason, gains, summary, phases, trace
		FROM shots WHERE id=?`, id)

	var rec models.ShotRecord
	var started, ended, reason, gains, summary, phases, trace string
	var completed int
	err := row.Scan(&rec.ShotID, &rec.ProfileID, &rec.Profile, &started, &ended, &completed, &reason, &gains, &summary, &phases, &trace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Completed = completed != 0
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rec.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
	switch reason {
	case "operator":
		rec.Reason = models.ReasonOperator
	case "sensorFault":
		rec.Reason = models.ReasonSensorFault
	default:
		rec.Reason = models.ReasonNone
	}
	if err := json.Unmarshal([]byte(gains), &rec.Gains); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(phases), &rec.Phases); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(trace), &rec.Trace); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ShotStats are aggregate figures over the recorded shot history.
type ShotStats struct {
	Count            int     `json:"count"`
	Completed        int     `json:"completed"`
	AvgDurationS     float64 `json:"avgDuration"`
	AvgWeightG       float64 `json:"avgWeight"`
	AvgPeakPressureB float64 `json:"avgPeakPressure"`
}

// Stats aggregates over all recorded shots, or over one profile's shots when
// profile is non-empty. Averages come from the summary JSON column.
func (s *Store) Stats(profile string) (ShotStats, error) {
	q := `
		SELECT COUNT(*),
		       COALESCE(SUM(completed), 0),
		       COALESCE(AVG(json_extract(summary, '$.duration')), 0),
		       COALESCE(AVG(json_extract(summary, '$.finalWeight')), 0),
		       COALESCE(AVG(json_extract(summary, '$.peakPressure')), 0)
		FROM shots`
	args := []any{}
	if profile != "" {
		q += ` WHERE profile_name=?`
		args = append(args, profile)
	}
	var st ShotStats
	err := s.db.QueryRow(q, args...).Scan(
		&st.Count, &st.Completed, &st.AvgDurationS, &st.AvgWeightG, &st.AvgPeakPressureB)
	return st, err
}

// SetSetting upserts a key/value pair (selected profile, persisted gains).
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// Setting reads a settings value; ErrNotFound when unset.
func (s *Store) Setting(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
