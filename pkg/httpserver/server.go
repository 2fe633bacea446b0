package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mselser95/arena-settle/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides the webhook, admin and operational HTTP endpoints.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. Nil components leave their routes unmounted.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Webhook       http.Handler
	Resolver      MarketResolver
	Wallets       WalletReader
	Breakers      BreakerLister
	AdminToken    string // required for the market admin routes
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	return &Server{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// NewRouter builds the route table. It is exported for tests and embedding.
func NewRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Webhook != nil {
		r.Post("/webhooks/payments", cfg.Webhook.ServeHTTP)
	}

	api := &apiHandler{
		resolver: cfg.Resolver,
		wallets:  cfg.Wallets,
		breakers: cfg.Breakers,
		logger:   cfg.Logger,
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Wallets != nil {
			r.Get("/wallets/{userID}", api.handleGetWallet)
		}
		if cfg.Breakers != nil {
			r.Get("/breakers", api.handleBreakers)
		}

		if cfg.Resolver == nil {
			return
		}
		if cfg.AdminToken == "" {
			cfg.Logger.Warn("admin-api-disabled", zap.String("reason", "ADMIN_TOKEN not set"))
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(requireToken(cfg.AdminToken))
			r.Post("/markets/{source}/{marketID}/resolve", api.handleResolve)
			r.Post("/markets/{source}/{marketID}/cancel", api.handleCancel)
		})
	})

	return r
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
