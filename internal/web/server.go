package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
)

// Server exposes the orchestrator's control surface as a JSON API.
// Every response body is a domain.OperationResult.
type Server struct {
	router       *http.ServeMux
	server       *http.Server
	orchestrator *usecase.Orchestrator
	logger       *zap.Logger
}

func NewServer(port int, orchestrator *usecase.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		orchestrator: orchestrator,
		logger:       logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /report", s.handleReport)

	// Lifecycle
	s.router.HandleFunc("POST /pause", s.handlePause)
	s.router.HandleFunc("POST /resume", s.handleResume)

	// Configuration
	s.router.HandleFunc("PUT /config", s.handleUpdateConfig)

	// Positions
	s.router.HandleFunc("POST /positions/{id}/close", s.handleClosePosition)
	s.router.HandleFunc("POST /positions/close-all", s.handleEmergencyCloseAll)

	// Alerts
	s.router.HandleFunc("POST /alerts/{id}/ack", s.handleAcknowledgeAlert)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting control server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
