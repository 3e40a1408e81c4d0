// Package server provides the HTTP API for shiori.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/pipeline"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

// Service is the ingest/query surface the API exposes.
type Service interface {
	Ingest(ctx context.Context, folder string, opts ...pipeline.IngestOption) (int, error)
	Search(ctx context.Context, text string, n int) (*models.QueryResult, error)
	Stats(ctx context.Context) (models.Stats, error)
	Reset(ctx context.Context) error
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the shiori API.
type Server struct {
	service  Service
	watch    WatchService
	nResults int
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatch enables the watch directory endpoints.
func WithWatch(ws WatchService) Option {
	return func(s *Server) { s.watch = ws }
}

// WithDefaultNResults sets n_results for queries that omit it.
func WithDefaultNResults(n int) Option {
	return func(s *Server) { s.nResults = n }
}

// NewServer creates a server with the given dependencies.
func NewServer(service Service, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		service:  service,
		nResults: models.DefaultNResults,
		logger:   utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/api/v1/stats", s.handleStats)
	r.Post("/api/v1/reset", s.handleReset)
	r.Route("/api/v1/watch/directories", func(r chi.Router) {
		r.Use(s.requireWatch)
		r.Get("/", s.handleListWatched)
		r.Post("/", s.handleAddWatched)
		r.Delete("/", s.handleRemoveWatched)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops. It returns nil once
// Stop has been called, even if Stop ran first.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server. It is safe to call concurrently with
// Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
