package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"live-leaderboard/internal/dashboard"
)

// DashboardServer is the presentation boundary: it serves the current
// view-model as JSON for an external renderer. It never blocks a request on
// upstream fetches; the sync service keeps the view warm.
type DashboardServer struct {
	agg    *dashboard.Aggregator
	logger zerolog.Logger
}

func NewDashboardServer(agg *dashboard.Aggregator, logger zerolog.Logger) *DashboardServer {
	return &DashboardServer{agg: agg, logger: logger}
}

func (s *DashboardServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/players/{id}", s.handlePlayer)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *DashboardServer) handleView(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agg.Current())
}

func (s *DashboardServer) handlePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimSpace(r.PathValue("id")))
	if err != nil || id <= 0 {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}
	profile, err := s.agg.PlayerProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, dashboard.ErrPlayerNotFound) {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Int("player", id).Msg("player profile failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *DashboardServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *DashboardServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}
