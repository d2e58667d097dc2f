package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
)

func (s *Server) respond(w http.ResponseWriter, result domain.OperationResult) {
	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.GetStatus())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.GetReport())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.Pause())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.Resume(r.Context()))
}

// handleUpdateConfig swaps the trading configuration. The body is the
// same shape as the config file; omitted fields take their defaults.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := &config.Config{}
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, "invalid config body: "+err.Error(), http.StatusBadRequest)
		return
	}
	config.SetDefaults(cfg)
	s.respond(w, s.orchestrator.UpdateConfig(cfg))
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "operator request"
	}
	s.respond(w, s.orchestrator.ClosePosition(r.Context(), id, reason))
}

func (s *Server) handleEmergencyCloseAll(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.EmergencyCloseAll(r.Context()))
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.orchestrator.AcknowledgeAlert(r.PathValue("id")))
}
