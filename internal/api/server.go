// Package api provides the HTTP API server for the operations dashboard.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetgrid/ops-api/internal/api/handlers"
	"github.com/fleetgrid/ops-api/internal/api/health"
	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/assistant"
	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/claims"
	"github.com/fleetgrid/ops-api/internal/notify"
	"github.com/fleetgrid/ops-api/internal/store"
	"github.com/fleetgrid/ops-api/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Deps carries the services the server wires into its handlers.
type Deps struct {
	Store     store.Store
	Auth      *auth.Service
	Invites   *auth.InviteService
	Claims    *claims.Service
	Audit     *audit.Writer
	Assistant *assistant.Service // nil disables assistant endpoints
	Hub       *notify.Hub
	Pinger    health.Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	deps          Deps
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}

	s.healthChecker = health.NewChecker(deps.Pinger, Version)
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoint (no auth required)
	r.Get("/health", s.healthChecker.Handler())

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(s.deps.Store, s.deps.Auth, s.logger)
	invitationsHandler := handlers.NewInvitationsHandler(s.deps.Store, s.deps.Invites, s.deps.Auth, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/can-register", authHandler.CanRegister)
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		// Invitation acceptance (public)
		r.Get("/invite/{token}", invitationsHandler.GetByToken)
		r.Post("/invite/accept", invitationsHandler.Accept)
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth middleware for all v1 routes
		authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		// Claim routes
		claimsHandler := handlers.NewClaimsHandler(s.deps.Store, s.deps.Claims, s.deps.Assistant, s.logger)
		r.Route("/claims", func(r chi.Router) {
			r.Post("/", claimsHandler.Create)
			r.Get("/", claimsHandler.List)
			r.Route("/{claimID}", func(r chi.Router) {
				r.Get("/", claimsHandler.Get)
				r.Post("/approve", claimsHandler.Approve)
				r.Post("/reject", claimsHandler.Reject)
				r.Post("/draft", claimsHandler.Draft)
			})
		})

		// Invitation routes (admin only)
		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", invitationsHandler.Create)
			r.Get("/", invitationsHandler.List)
			r.Delete("/{invitationID}", invitationsHandler.Cancel)
		})

		// Role Directory routes
		usersHandler := handlers.NewUsersHandler(s.deps.Store, s.deps.Audit, s.logger)
		r.Route("/users", func(r chi.Router) {
			r.Get("/", usersHandler.List)
			r.Get("/me", usersHandler.Me)
			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", usersHandler.Get)
				r.Patch("/role", usersHandler.ChangeRole)
				r.Patch("/status", usersHandler.ChangeStatus)
				r.Delete("/", usersHandler.Disable)
			})
		})

		// Notification routes
		notificationsHandler := handlers.NewNotificationsHandler(s.deps.Store, s.deps.Hub, s.logger)
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationsHandler.List)
			r.Get("/ws", notificationsHandler.Stream)
			r.Post("/{notificationID}/read", notificationsHandler.MarkRead)
		})

		// Fleet routes
		vehiclesHandler := handlers.NewVehiclesHandler(s.deps.Store, s.logger)
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", vehiclesHandler.List)
			r.Post("/", vehiclesHandler.Create)
			r.Get("/{vehicleID}", vehiclesHandler.Get)
		})

		// Audit trail routes
		auditHandler := handlers.NewAuditHandler(s.deps.Store, s.logger)
		r.Get("/audit", auditHandler.List)

		// Assistant flow routes
		flowsHandler := handlers.NewFlowsHandler(s.deps.Store, s.deps.Assistant, s.logger)
		r.Route("/flows", func(r chi.Router) {
			r.Post("/eta", flowsHandler.RecalculateETA)
			r.Post("/dispatch-score", flowsHandler.ScoreDispatchRoute)
			r.Post("/risk", flowsHandler.AggregateRisk)
		})
	})

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
