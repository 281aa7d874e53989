// Package server exposes the brew controller to the operator: a JSON API
// for profiles, shots, learning, and health, plus WebSocket streams for live
// shot telemetry.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/health"
	"github.com/brewforge/brewd/internal/store"
	"github.com/brewforge/brewd/learning"
	"github.com/brewforge/brewd/models"
	"github.com/brewforge/brewd/recorder"
)

// Machine is the link lifecycle the server drives. Both the serial link and
// the simulator satisfy it.
type Machine interface {
	Connect() error
	Close() error
	Connected() bool
	Tare() error
	Port() string
	Version() string
}

// selectedProfileKey is the settings row remembering the active profile.
const selectedProfileKey = "selectedProfile"

// Options wires the server to the rest of the daemon.
type Options struct {
	WebDir string
	Engine engine.Config

	Sampler  engine.Sampler
	Actuator engine.Actuator
	Machine  Machine

	Store    *store.Store
	Tuner    *learning.Tuner
	Recorder *recorder.Recorder
	Errors   *health.Log
	Health   *health.Aggregator
	Log      *zap.Logger
}

// Server owns the HTTP surface and the sequencer it commands.
type Server struct {
	mux *http.ServeMux
	log *zap.Logger

	seq     *engine.Sequencer
	machine Machine
	store   *store.Store
	tuner   *learning.Tuner
	rec     *recorder.Recorder
	errs    *health.Log
	agg     *health.Aggregator

	wsShot   *Hub
	wsHealth *Hub

	mu         sync.Mutex
	selectedID int64
}

// New assembles the server and its sequencer. Call Sequencer().Run to start
// the control loop.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		log:      opts.Log.Named("server"),
		machine:  opts.Machine,
		store:    opts.Store,
		tuner:    opts.Tuner,
		rec:      opts.Recorder,
		errs:     opts.Errors,
		agg:      opts.Health,
		wsShot:   NewHub(),
		wsHealth: NewHub(),
	}

	s.seq = engine.New(opts.Engine, engine.Deps{
		Sampler:  opts.Sampler,
		Actuator: opts.Actuator,
		Gains:    opts.Tuner,
		Recorder: opts.Recorder,
		Errors:   opts.Errors,
		Log:      opts.Log,
		Callbacks: engine.Callbacks{
			OnTick:     s.onTick,
			OnPhase:    s.onPhase,
			OnComplete: s.onComplete,
		},
	})

	s.restoreSelection()

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	s.mux.HandleFunc("/api/errors", s.handleErrors)
	s.mux.HandleFunc("/api/errors/ack", s.handleErrorsAck)

	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)

	s.mux.HandleFunc("/api/profiles", s.handleProfiles)
	s.mux.HandleFunc("/api/profiles/select", s.handleProfileSelect)
	s.mux.HandleFunc("/api/profiles/delete", s.handleProfileDelete)

	s.mux.HandleFunc("/api/shot/start", s.handleShotStart)
	s.mux.HandleFunc("/api/shot/abort", s.handleShotAbort)
	s.mux.HandleFunc("/api/shot/stats", s.handleShotStats)
	s.mux.HandleFunc("/api/shots", s.handleShots)
	s.mux.HandleFunc("/api/shots/stats", s.handleShotsStats)
	s.mux.HandleFunc("/api/shot", s.handleShot)

	s.mux.HandleFunc("/api/learning", s.handleLearning)
	s.mux.HandleFunc("/api/learning/gains", s.handleGains)

	s.mux.HandleFunc("/ws/shot", s.handleWSShot)
	s.mux.HandleFunc("/ws/health", s.handleWSHealth)

	if opts.WebDir != "" {
		fs := http.FileServer(http.Dir(opts.WebDir))
		s.mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := r.URL.Path; p == "/" || strings.HasSuffix(p, ".html") ||
				strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".css") {
				w.Header().Set("Cache-Control", "no-store")
			}
			fs.ServeHTTP(w, r)
		}))
	}
	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

// Sequencer exposes the control loop so the daemon can drive it.
func (s *Server) Sequencer() *engine.Sequencer { return s.seq }

// RunHealthTicker broadcasts a health snapshot on each period until ctx is
// cancelled.
func (s *Server) RunHealthTicker(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHealth.Broadcast(Event{Event: "health", Data: s.agg.Snapshot()})
		}
	}
}

func (s *Server) onTick(t models.TickTelemetry) {
	s.wsShot.Broadcast(Event{Event: "tick", Data: t})
}

func (s *Server) onPhase(shotID string, phase int, name string) {
	s.wsShot.Broadcast(Event{Event: "phase", Data: map[string]any{
		"shotId": shotID, "phase": phase, "name": name,
	}})
}

// onComplete runs on its own goroutine after each shot: persist, learn,
// notify.
func (s *Server) onComplete(rec *models.ShotRecord) {
	if s.store != nil {
		if err := s.store.SaveShot(rec); err != nil {
			s.log.Error("persist shot failed", zap.String("shot", rec.ShotID), zap.Error(err))
			s.errs.Record(health.SevWarning, "store", "shot not persisted: "+err.Error())
		}
	}
	s.tuner.Observe(rec, s.rec.History())
	s.wsShot.Broadcast(Event{Event: "complete", Data: rec.Summary})
}

func (s *Server) restoreSelection() {
	if s.store == nil {
		return
	}
	raw, err := s.store.Setting(selectedProfileKey)
	if err != nil {
		return
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		s.mu.Lock()
		s.selectedID = id
		s.mu.Unlock()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
