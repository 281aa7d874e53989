package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/internal/store"
	"github.com/brewforge/brewd/models"
	"github.com/brewforge/brewd/recorder"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, s.agg.Snapshot())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	resp := DiagnosticsResponse{
		Sequencer: s.seq.Status(),
		Machine: MachineStatus{
			Connected: s.machine.Connected(),
			Port:      s.machine.Port(),
			Firmware:  s.machine.Version(),
		},
		Learning: LearningState{Enabled: s.tuner.Enabled(), Gains: s.tuner.Snapshot()},
		Health:   s.agg.Snapshot(),
		Errors:   s.errs.Recent(20),
	}
	if tr, ok := s.machine.(interface{ DetectTrace() []string }); ok {
		resp.DetectLog = tr.DetectTrace()
	}
	s.writeJSON(w, 200, resp)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			n = v
		}
	}
	s.writeJSON(w, 200, s.errs.Recent(n))
}

// handleErrorsAck acknowledges a latched fatal condition and returns the
// recomputed health snapshot.
func (s *Server) handleErrorsAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.errs.ClearFatal()
	s.log.Info("fatal condition acknowledged")
	s.writeJSON(w, 200, s.agg.Snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.machine.Connect(); err != nil {
		s.log.Warn("machine connect failed", zap.Error(err))
		s.writeJSON(w, 502, APIError{Error: err.Error()})
		return
	}
	resp := ConnectResponse{
		Connected: true,
		Port:      s.machine.Port(),
		Firmware:  s.machine.Version(),
	}
	if tr, ok := s.machine.(interface{ DetectTrace() []string }); ok {
		resp.DetectLog = tr.DetectTrace()
	}
	s.writeJSON(w, 200, resp)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if s.seq.State() == engine.StatePhaseActive {
		s.writeJSON(w, 409, APIError{Error: "cannot disconnect during a shot"})
		return
	}
	if err := s.machine.Close(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, ConnectResponse{Connected: false})
}

// handleProfiles lists on GET, creates or updates on POST.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles, err := s.store.Profiles()
		if err != nil {
			s.writeJSON(w, 500, APIError{Error: err.Error()})
			return
		}
		s.mu.Lock()
		sel := s.selectedID
		s.mu.Unlock()
		s.writeJSON(w, 200, ProfilesResponse{Profiles: profiles, Selected: sel})

	case http.MethodPost:
		var p models.Profile
		if err := s.readJSON(r, &p); err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		id, err := s.store.SaveProfile(&p)
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, 404, APIError{Error: "profile not found"})
			return
		}
		if err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		p.ID = id
		s.writeJSON(w, 200, p)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProfileSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ProfileIDRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	p, err := s.store.Profile(req.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, 404, APIError{Error: "profile not found"})
		return
	}
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	if !p.Enabled {
		s.writeJSON(w, 409, APIError{Error: "profile is disabled"})
		return
	}
	s.mu.Lock()
	s.selectedID = req.ID
	s.mu.Unlock()
	if err := s.store.SetSetting(selectedProfileKey, strconv.FormatInt(req.ID, 10)); err != nil {
		s.log.Warn("persist selection failed", zap.Error(err))
	}
	s.writeJSON(w, 200, p)
}

func (s *Server) handleProfileDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ProfileIDRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	err := s.store.DeleteProfile(req.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, 404, APIError{Error: "profile not found"})
		return
	}
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.mu.Lock()
	if s.selectedID == req.ID {
		s.selectedID = 0
	}
	s.mu.Unlock()
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleShotStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ShotStartRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if !s.machine.Connected() {
		s.writeJSON(w, 409, APIError{Error: "machine not connected"})
		return
	}

	id := req.ProfileID
	if id == 0 {
		s.mu.Lock()
		id = s.selectedID
		s.mu.Unlock()
	}
	if id == 0 {
		s.writeJSON(w, 400, APIError{Error: "no profile selected"})
		return
	}
	p, err := s.store.Profile(id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, 404, APIError{Error: "profile not found"})
		return
	}
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}

	// Zero the scale so weight criteria count from an empty cup.
	if err := s.machine.Tare(); err != nil {
		s.log.Warn("tare failed, starting anyway", zap.Error(err))
	}

	shotID, err := s.seq.StartShot(p, req.TargetWeightG)
	switch {
	case errors.Is(err, engine.ErrShotInProgress):
		s.writeJSON(w, 409, APIError{Error: err.Error()})
		return
	case errors.Is(err, engine.ErrProfileInvalid):
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	case err != nil:
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, ShotStartResponse{ShotID: shotID, Profile: p.Name})
}

func (s *Server) handleShotAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	err := s.seq.Abort()
	if errors.Is(err, engine.ErrNoActiveShot) {
		s.writeJSON(w, 409, APIError{Error: err.Error()})
		return
	}
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleShots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, offset := 50, 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			limit = v
		}
	}
	if q := r.URL.Query().Get("offset"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			offset = v
		}
	}
	sums, err := s.store.Shots(limit, offset, r.URL.Query().Get("profile"))
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, sums)
}

// handleShotsStats aggregates the recorded history, optionally for one
// profile.
func (s *Server) handleShotsStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats, err := s.store.Stats(r.URL.Query().Get("profile"))
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, stats)
}

func (s *Server) handleShot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rec, ok := s.shotByID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, 200, rec)
}

func (s *Server) handleShotStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rec, ok := s.shotByID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, 200, ShotStatsResponse{
		Summary:         rec.Summary,
		Phases:          rec.Phases,
		Recommendations: recorder.Recommendations(rec.Summary),
	})
}

func (s *Server) shotByID(w http.ResponseWriter, r *http.Request) (*models.ShotRecord, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeJSON(w, 400, APIError{Error: "missing id"})
		return nil, false
	}
	rec, err := s.store.Shot(id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, 404, APIError{Error: "shot not found"})
		return nil, false
	}
	if err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return nil, false
	}
	return rec, true
}

func (s *Server) handleLearning(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, 200, LearningState{Enabled: s.tuner.Enabled(), Gains: s.tuner.Snapshot()})
	case http.MethodPost:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := s.readJSON(r, &req); err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		s.tuner.SetEnabled(req.Enabled)
		s.writeJSON(w, 200, LearningState{Enabled: s.tuner.Enabled(), Gains: s.tuner.Snapshot()})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if s.seq.State() == engine.StatePhaseActive {
		s.writeJSON(w, 409, APIError{Error: "cannot change gains during a shot"})
		return
	}
	var req GainsRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	applied := s.tuner.SetGains(models.ControlGains{Kp: req.Kp, Ki: req.Ki, Kd: req.Kd})
	s.writeJSON(w, 200, LearningState{Enabled: s.tuner.Enabled(), Gains: applied})
}
