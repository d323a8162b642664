// Package server exposes the aggregated price views and alert
// subscriptions over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rwa-price-aggregator/internal/config"
)

// Server is the JSON API server for dashboards and integrations.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer registers all routes and returns a server ready to start.
func NewServer(cfg config.ServerConfig, h *Handler, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/tokens", h.ListTokens)
	mux.HandleFunc("GET /api/prices", h.ListPrices)
	mux.HandleFunc("GET /api/prices/{symbol}", h.GetPrices)
	mux.HandleFunc("POST /api/alerts", h.CreateAlert)
	mux.HandleFunc("GET /api/alerts", h.ListAlerts)
	mux.HandleFunc("DELETE /api/alerts/{id}", h.DeleteAlert)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With().Str("component", "server").Logger(),
	}
}

// Start blocks serving requests until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("api server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
