// Package http serves the browser form front-end and the JSON API for the
// overload classifier.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pavecheck/ml"
)

type Server struct {
	server  *http.Server
	config  ServerConfig
	handler *Handler
	log     *zap.SugaredLogger
}

type ServerConfig struct {
	Port            int
	Timeout         time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64
	SessionCapacity int
	SessionTTL      time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		Timeout:         30 * time.Second,
		AllowedOrigins:  []string{"*"},
		MaxUploadBytes:  32 << 20,
		SessionCapacity: 128,
		SessionTTL:      2 * time.Hour,
	}
}

func NewServer(config ServerConfig, log *zap.SugaredLogger) *Server {
	sessions := NewSessionStore(config.SessionCapacity, config.SessionTTL)
	handler := NewHandler(log, sessions)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	chain := Chain(
		RecoveryMiddleware(log),
		LoggerMiddleware(log),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxUploadBytes),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config:  config,
		handler: handler,
		log:     log,
	}
}

// SetDefaultPipeline installs a server-wide fallback artifact (config-loaded
// or hot-reloaded); per-session uploads take precedence.
func (s *Server) SetDefaultPipeline(p *ml.Pipeline) {
	s.handler.SetDefaultPipeline(p)
}

func (s *Server) Start() error {
	s.log.Infow("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.log.Infow("http server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
