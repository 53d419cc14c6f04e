// Package api exposes the admin HTTP surface of the agent: queue CRUD,
// processing control, statistics and Excel export.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"slotwatch/internal/config"
	"slotwatch/internal/domain"

	"github.com/rs/zerolog"
)

// Server is the admin HTTP server.
type Server struct {
	cfg        config.APIConfig
	queue      domain.QueueService
	exportPath string
	logger     zerolog.Logger
	server     *http.Server
	auth       *Auth
}

func NewServer(cfg config.APIConfig, exports config.ExportConfig, queue domain.QueueService, logger zerolog.Logger) *Server {
	srv := &Server{
		cfg:        cfg,
		queue:      queue,
		exportPath: exports.Path,
		logger:     logger,
	}
	srv.auth = NewAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/queue", srv.handleQueue)
	mux.HandleFunc("/api/v1/queue/", srv.handleQueueItem)
	mux.HandleFunc("/api/v1/processing", srv.handleProcessing)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("admin API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
