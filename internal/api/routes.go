// Package api wires the optional admin HTTP+websocket introspection
// surface: read-only run/task status plus a small JWT/API-key-gated
// control surface (pause intake, force-expire a task). It never drives
// scheduling; every mutating call here is a convenience wrapper around
// methods the state machine already exposes for exactly this purpose.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corewright/taskrunner/internal/api/handlers"
	apiMiddleware "github.com/corewright/taskrunner/internal/api/middleware"
	"github.com/corewright/taskrunner/internal/api/websocket"
	"github.com/corewright/taskrunner/internal/archive"
	"github.com/corewright/taskrunner/internal/config"
	"github.com/corewright/taskrunner/internal/runner"
)

// Server represents the admin HTTP server.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
}

// NewServer creates a new admin HTTP server. hub is shared with the
// caller so it can also be registered as the run's status.TestObserver;
// live reflects the run currently in progress (see runner.LiveRegistry);
// ar may be nil if the run archive is disabled.
func NewServer(cfg *config.Config, live *runner.LiveRegistry, ar *archive.Archive, hub *websocket.Hub) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		adminHandler: handlers.NewAdminHandler(live, ar),
		wsHub:        hub,
		wsHandler:    websocket.NewHandler(hub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Admin.JWTSecret != "" || len(s.config.Admin.APIKeys) > 0,
		JWTSecret: s.config.Admin.JWTSecret,
		APIKeys:   apiKeySet(s.config.Admin.APIKeys),
	}

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		if s.config.Admin.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Admin.RateLimitRPS))
		}

		// Read-only introspection: no auth required, matching the
		// spec's framing of the admin surface as a pure observer.
		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/runs", s.adminHandler.ListRuns)
		r.Get("/runs/current", s.adminHandler.GetRun)
		r.Get("/runs/{runID}", s.adminHandler.GetArchivedRun)
		r.Get("/tasks/{taskID}", s.adminHandler.GetTask)

		// Control endpoints: gated behind JWT/API-key auth.
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.Auth(authCfg))
			r.Post("/pause", s.adminHandler.PauseIntake)
			r.Post("/resume", s.adminHandler.ResumeIntake)
			r.Post("/tasks/{taskID}/expire", s.adminHandler.ExpireTask)
		})
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)
	s.router.Handle("/metrics", promhttp.Handler())
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Start starts the WebSocket hub.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
