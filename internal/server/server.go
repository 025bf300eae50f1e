// Package server exposes the HTTP control surface: the kill switch,
// broker inventory, reconciliation controls, and the live event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/brokers"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/execstate"
	"github.com/wardenhq/warden/internal/guardrails"
	"github.com/wardenhq/warden/internal/modules/portfolio"
	"github.com/wardenhq/warden/internal/modules/reconciliation"
	"github.com/wardenhq/warden/internal/modules/trading"
	"github.com/wardenhq/warden/internal/scheduler"
)

// Config holds server configuration and dependencies
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	ExecState  *execstate.Service
	Brokers    *brokers.Registry
	Guardrails *guardrails.Validator
	Engine     *reconciliation.Engine
	ReconRepo  *reconciliation.Repository
	Positions  *portfolio.PositionRepository
	Trading    *trading.Repository
	Events     *events.Manager
	ReconJob   *scheduler.ReconciliationJob
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	execState  *execstate.Service
	brokers    *brokers.Registry
	guardrails *guardrails.Validator
	engine     *reconciliation.Engine
	reconRepo  *reconciliation.Repository
	positions  *portfolio.PositionRepository
	trading    *trading.Repository
	events     *events.Manager
	reconJob   *scheduler.ReconciliationJob
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		execState:  cfg.ExecState,
		brokers:    cfg.Brokers,
		guardrails: cfg.Guardrails,
		engine:     cfg.Engine,
		reconRepo:  cfg.ReconRepo,
		positions:  cfg.Positions,
		trading:    cfg.Trading,
		events:     cfg.Events,
		reconJob:   cfg.ReconJob,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/execution", func(r chi.Router) {
			r.Get("/status", s.handleExecutionStatus)
			r.Post("/enable", s.handleExecutionEnable)
			r.Post("/disable", s.handleExecutionDisable)
		})

		r.Route("/brokers", func(r chi.Router) {
			r.Get("/", s.handleListBrokers)
			r.Get("/{brokerID}/health", s.handleBrokerHealth)
		})

		r.Route("/guardrails", func(r chi.Router) {
			r.Post("/validate", s.handleValidateOrder)
		})

		r.Get("/positions", s.handleListPositions)
		r.Get("/verdicts", s.handleListVerdicts)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Post("/trigger", s.handleTriggerRun)
			r.Post("/pause", s.handlePauseSchedule)
			r.Post("/resume", s.handleResumeSchedule)
		})

		r.Route("/discrepancies", func(r chi.Router) {
			r.Get("/", s.handleListDiscrepancies)
			r.Post("/{discrepancyID}/resolve", s.handleResolveDiscrepancy)
		})

		r.Get("/events/stream", s.handleEventsStream)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
