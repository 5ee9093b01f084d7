// Package main provides the entry point for the operations API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fleetgrid/ops-api/internal/api"
	"github.com/fleetgrid/ops-api/internal/assistant"
	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/claims"
	"github.com/fleetgrid/ops-api/internal/events"
	"github.com/fleetgrid/ops-api/internal/notify"
	"github.com/fleetgrid/ops-api/internal/shutdown"
	pgstore "github.com/fleetgrid/ops-api/internal/store/postgres"
	"github.com/fleetgrid/ops-api/pkg/config"
	"github.com/fleetgrid/ops-api/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(slog.LevelInfo, true)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database store
	storeCfg := pgstore.DefaultConfig(cfg.DatabaseDSN)
	store, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Apply schema
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgstore.Migrate(migrateCtx, store.DB()); err != nil {
		cancelMigrate()
		log.Error("failed to apply database schema", "error", err)
		os.Exit(1)
	}
	cancelMigrate()

	// Initialize auth service
	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, log.Logger)

	// Audit writer and event plumbing
	auditWriter := audit.NewWriter(store, log.Logger)
	deniedWrites := events.NewDeniedWrites()
	hub := notify.NewHub()

	// Log denied writes for operators; dashboard sessions subscribe too.
	go func() {
		ch, cancel := deniedWrites.Subscribe()
		defer cancel()
		for dw := range ch {
			log.Warn("write denied",
				"path", dw.Path,
				"operation", dw.Operation,
				"error", dw.Error,
			)
		}
	}()

	// Domain services
	inviteService := auth.NewInviteService(store, auditWriter, cfg.InviteExpiry, log.Logger)
	claimsService := claims.NewService(store, auditWriter, deniedWrites, hub, log.Logger)

	// Assistant is optional; without a key the flow endpoints report 503.
	var assistantService *assistant.Service
	if cfg.OpenAIAPIKey != "" {
		completer := assistant.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		assistantService, err = assistant.NewService(completer, log.Logger)
		if err != nil {
			log.Error("failed to initialize assistant", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set, assistant flows disabled")
	}

	// Create and start the API server
	server := api.NewServer(cfg, api.Deps{
		Store:     store,
		Auth:      authService,
		Invites:   inviteService,
		Claims:    claimsService,
		Audit:     auditWriter,
		Assistant: assistantService,
		Hub:       hub,
		Pinger:    store,
	}, log.Logger)

	// Setup graceful shutdown: server drains first, then the store closes.
	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("database", store))
	coordinator.Register(shutdown.NewFuncComponent("api-server", server.Shutdown))

	go coordinator.WaitForSignal()

	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(context.Background()); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	coordinator.Shutdown()
	coordinator.Wait()
	log.Info("server stopped")
	os.Exit(coordinator.ExitCode())
}
