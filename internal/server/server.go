package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Davincible/modelrelay/internal/config"
	"github.com/Davincible/modelrelay/internal/handlers"
	"github.com/Davincible/modelrelay/internal/middleware"
	"github.com/Davincible/modelrelay/internal/pipeline"
	"github.com/Davincible/modelrelay/internal/registry"
	"github.com/Davincible/modelrelay/internal/upstream"
)

type Server struct {
	config   *config.Manager
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	server   *http.Server
}

// New builds the full request path: config -> registry -> upstream client ->
// pipeline. Registry validation happens here, so a broken model table or
// fallback cycle refuses to start instead of failing per-request.
func New(configManager *config.Manager, logger *slog.Logger) (*Server, error) {
	cfg := configManager.Get()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid model configuration: %w", err)
	}

	client := upstream.NewClient(logger)

	for _, u := range cfg.Upstreams {
		client.SetEndpoint(registry.Family(u.Family), upstream.Endpoint{
			BaseURL: u.APIBase,
			APIKey:  u.APIKey,
		})
	}

	p := pipeline.New(reg, client, logger, cfg.MaxFallbackHops, cfg.AttemptTimeout())

	return &Server{
		config:   configManager,
		registry: reg,
		pipeline: p,
		logger:   logger,
	}, nil
}

func (s *Server) Start() error {
	cfg := s.config.Get()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// Setup routes
	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server",
		"address", addr,
		"models", len(s.registry.Models()),
	)

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Create handlers
	proxyHandler := handlers.NewProxyHandler(s.pipeline, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)

	// Setup middleware chains
	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	// Apply middleware chains to routes
	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/v1/messages", middlewareSet.DefaultChain().Handler(proxyHandler))
	mux.Handle("/", middlewareSet.DefaultChain().Handler(proxyHandler))

	return mux
}
