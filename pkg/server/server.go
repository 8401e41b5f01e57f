// Package server exposes the companion over a small JSON API for a browser front end.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/andrew/eve-companion/pkg/companion"
)

// Config contains configuration for the HTTP server
type Config struct {
	Addr        string
	CORSOrigins []string
}

// Server serves the companion API
type Server struct {
	svc    *companion.Service
	cfg    Config
	logger *zap.Logger
}

// New creates a server for svc
func New(svc *companion.Service, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, cfg: cfg, logger: logger}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health)

	mux.HandleFunc("GET /api/session", s.getSession)
	mux.HandleFunc("DELETE /api/session", s.clearSession)
	mux.HandleFunc("POST /api/messages", s.sendMessage)

	mux.HandleFunc("POST /api/memory/consolidate", s.consolidate)
	mux.HandleFunc("PUT /api/memory", s.setMemory)

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.updateSettings)
	mux.HandleFunc("POST /api/settings/reset", s.resetSettings)
	mux.HandleFunc("PUT /api/settings/image-endpoint", s.setImageEndpoint)
	mux.HandleFunc("PUT /api/settings/language", s.setLanguage)

	mux.HandleFunc("GET /api/backup", s.exportBackup)
	mux.HandleFunc("POST /api/backup", s.importBackup)

	// Order: CORS → Recovery → Logging → Routes
	var handler http.Handler = mux
	handler = requestLogger(s.logger)(handler)
	handler = recovery(s.logger)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	}).Handler(handler)
	return handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		// turns wait on the model and the image app
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.cfg.Addr), zap.Strings("cors_origins", s.cfg.CORSOrigins))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
