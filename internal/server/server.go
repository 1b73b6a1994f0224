// Package server provides the admin HTTP API: system status, dead-man
// switch control, strategy and order management, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/database"
	"github.com/nugraha/cakra/internal/modules/alerts"
	"github.com/nugraha/cakra/internal/modules/orders"
	"github.com/nugraha/cakra/internal/modules/strategy"
	"github.com/nugraha/cakra/internal/modules/users"
	"github.com/nugraha/cakra/internal/safety"
)

// Config holds server wiring.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	DB         *database.DB
	LedgerDB   *database.DB
	Safety     *safety.Switch
	Users      *users.Repository
	Creds      *users.CredentialService
	Strategies *strategy.Repository
	Orders     *orders.Service
	OrderRepo  *orders.Repository
	Alerts     *alerts.Repository
	Registry   *prometheus.Registry
}

// Server is the admin HTTP server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	db         *database.DB
	ledgerDB   *database.DB
	safety     *safety.Switch
	users      *users.Repository
	creds      *users.CredentialService
	strategies *strategy.Repository
	orders     *orders.Service
	orderRepo  *orders.Repository
	alerts     *alerts.Repository
	registry   *prometheus.Registry
}

// New creates the admin server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		db:         cfg.DB,
		ledgerDB:   cfg.LedgerDB,
		safety:     cfg.Safety,
		users:      cfg.Users,
		creds:      cfg.Creds,
		strategies: cfg.Strategies,
		orders:     cfg.Orders,
		orderRepo:  cfg.OrderRepo,
		alerts:     cfg.Alerts,
		registry:   cfg.Registry,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Post("/{userID}/credentials", s.handleStoreCredentials)
			r.Get("/{userID}/strategies", s.handleListUserStrategies)
			r.Get("/{userID}/orders", s.handleListUserOrders)
		})

		r.Route("/strategies", func(r chi.Router) {
			r.Post("/", s.handleCreateStrategy)
			r.Get("/{strategyID}", s.handleGetStrategy)
			r.Get("/{strategyID}/executions", s.handleListExecutions)
			r.Post("/{strategyID}/stop", s.handleStopStrategy)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/sync", s.handleSyncOrders)
			r.Post("/{orderID}/cancel", s.handleCancelOrder)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", s.handleCreateAlert)
		})
	})
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Admin server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
