// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apihandler "github.com/newthinker/pricefeed/internal/api/handler/api"
	"github.com/newthinker/pricefeed/internal/api/middleware"
	"github.com/newthinker/pricefeed/internal/metrics"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the price service
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
}

const (
	defaultWriteTimeout = 15 * time.Second
	writeMargin         = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string // empty disables the metrics route

	// WriteTimeout defaults to 15s. It is raised to ResolveBudget plus a
	// margin so a resolution that exhausts its retries still reaches the
	// client as a synthetic quote.
	WriteTimeout  time.Duration
	ResolveBudget time.Duration
}

func (c Config) writeTimeout() time.Duration {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = defaultWriteTimeout
	}
	if c.ResolveBudget > 0 {
		wt = max(wt, c.ResolveBudget+writeMargin)
	}
	return wt
}

// Dependencies holds the components the routes serve.
type Dependencies struct {
	Resolver apihandler.SingleResolver
	Batch    apihandler.BatchResolver
	Registry apihandler.SymbolLister
	Metrics  *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Resolver == nil || deps.Batch == nil || deps.Registry == nil {
		return nil, fmt.Errorf("resolver, batch and registry are required")
	}

	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.writeTimeout(),
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		router: r,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	s.router.Use(metrics.LoggingMiddleware(s.logger))
	s.router.Use(middleware.Recoverer(s.logger))
	if deps.Metrics != nil {
		s.router.Use(metrics.HTTPMiddleware(deps.Metrics))
		if cfg.MetricsPath != "" {
			s.router.Handle(cfg.MetricsPath, deps.Metrics.Handler())
		}
	}

	s.router.Get("/api/health", s.handleHealth)

	prices := apihandler.NewPricesHandler(deps.Resolver, deps.Batch, s.logger)
	symbols := apihandler.NewSymbolsHandler(deps.Registry)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Get("/prices", prices.List)
		r.Get("/prices/{symbol}", prices.Get)
		r.Get("/symbols", symbols.List)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", l.Addr().String()),
		zap.Duration("write_timeout", s.httpServer.WriteTimeout),
	)
	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
