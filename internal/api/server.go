// Package api serves a read-only HTTP surface over the persistence layer:
// session listing and search, message retrieval, resume windows, live tail,
// and metrics. The UI and CLI consume it; nothing here mutates sessions
// except deletion.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pbellet/sessionlog/internal/history"
	"github.com/pbellet/sessionlog/internal/index"
	"github.com/pbellet/sessionlog/internal/metrics"
	"github.com/pbellet/sessionlog/internal/recovery"
)

// Server hosts the HTTP API.
type Server struct {
	manager *history.Manager
	engine  *recovery.Engine
	index   *index.Index // nil when the advisory index is disabled
	metrics *metrics.Metrics
	logger  *slog.Logger

	listen string
	server *http.Server
}

// New creates a server. The index may be nil; search then falls back to
// title matching over the store listing.
func New(manager *history.Manager, engine *recovery.Engine, ix *index.Index, m *metrics.Metrics, logger *slog.Logger, listen string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager: manager,
		engine:  engine,
		index:   ix,
		metrics: m,
		logger:  logger,
		listen:  listen,
	}
}

// Handler constructs the chi mux with all routes wired.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth())
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions())
		r.Get("/sessions/{id}/messages", s.handleGetMessages())
		r.Get("/sessions/{id}/resume", s.handleResume())
		r.Delete("/sessions/{id}", s.handleDeleteSession())
	})

	r.Get("/ws/sessions/{id}", s.handleTail)

	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api: server error", "error", err)
		}
	}()

	s.logger.Info("api: listening", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
