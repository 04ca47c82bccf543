// Package server provides the ops HTTP endpoint: health, metrics, status and read-only retrieval.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/config"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/retrieval"
	"github.com/hyperjump/shika/internal/telemetry"
)

// Service is the part of retrieval.Manager the endpoint serves.
type Service interface {
	Stats(ctx context.Context) (*models.Stats, error)
	SearchQA(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
	Ground(ctx context.Context, query, sessionID string) (*models.Grounding, error)
}

var _ Service = (*retrieval.Manager)(nil)

// Server is the ops HTTP server.
type Server struct {
	service Service
	metrics *telemetry.Metrics
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. metrics may be nil.
func NewServer(
	service Service,
	metrics *telemetry.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		metrics: metrics,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ground", s.handleGround)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
