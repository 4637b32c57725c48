package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/hub"
	"github.com/xela07ax/citypulse-stream/internal/infra"
)

// StatsProvider — доступ к последнему снимку статистики.
type StatsProvider interface {
	Latest() *domain.StatsSnapshot
}

// Server — HTTP-поверхность пайплайна: SSE-стрим для подписчиков,
// последний снимок статистики и replay-буфер для дашборда.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.ServerConfig

	hub     *hub.Hub
	stats   StatsProvider
	sendCfg infra.HubConfig
}

func NewServer(cfg infra.ServerConfig, hubCfg infra.HubConfig, h *hub.Hub, stats StatsProvider, logger *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger.Named("http"),
		cfg:     cfg,
		hub:     h,
		stats:   stats,
		sendCfg: hubCfg,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Инфраструктурные Middleware (как везде у нас)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/stream", s.handleStream)
	r.Get("/v1/stats", s.handleStats)
	r.Get("/v1/incidents/recent", s.handleRecent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"connected_clients": s.hub.ConnectedClients(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Latest()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	incidents := s.hub.RecentIncidents()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(incidents),
		"incidents": incidents,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
