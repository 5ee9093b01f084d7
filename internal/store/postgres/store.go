// Package postgres provides PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fleetgrid/ops-api/internal/store"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	claims        *ClaimStore
	notifications *NotificationStore
	invitations   *InvitationStore
	users         *UserStore
	audit         *AuditStore
	vehicles      *VehicleStore
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}

	// Initialize sub-stores
	s.claims = &ClaimStore{db: db, logger: logger}
	s.notifications = &NotificationStore{db: db, logger: logger}
	s.invitations = &InvitationStore{db: db, logger: logger}
	s.users = &UserStore{db: db, logger: logger}
	s.audit = &AuditStore{db: db, logger: logger}
	s.vehicles = &VehicleStore{db: db, logger: logger}

	logger.Info("connected to PostgreSQL database")
	return s, nil
}

// Claims returns the ClaimStore.
func (s *PostgresStore) Claims() store.ClaimStore {
	return s.claims
}

// Notifications returns the NotificationStore.
func (s *PostgresStore) Notifications() store.NotificationStore {
	return s.notifications
}

// Invitations returns the InvitationStore.
func (s *PostgresStore) Invitations() store.InvitationStore {
	return s.invitations
}

// Users returns the UserStore.
func (s *PostgresStore) Users() store.UserStore {
	return s.users
}

// Audit returns the AuditStore.
func (s *PostgresStore) Audit() store.AuditStore {
	return s.audit
}

// Vehicles returns the VehicleStore.
func (s *PostgresStore) Vehicles() store.VehicleStore {
	return s.vehicles
}

// WithTx executes the given function within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// Create a transaction-scoped store
	txs := &txStore{
		tx:     tx,
		logger: s.logger,
	}

	// Execute the function
	if err := fn(txs); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	// Commit the transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB returns the underlying database connection.
// This is useful for components that need direct database access.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// txStore wraps a transaction and implements the Store interface.
type txStore struct {
	tx     *sql.Tx
	logger *slog.Logger

	claims        *ClaimStore
	notifications *NotificationStore
	invitations   *InvitationStore
	users         *UserStore
	audit         *AuditStore
	vehicles      *VehicleStore
}

func (s *txStore) Claims() store.ClaimStore {
	if s.claims == nil {
		s.claims = &ClaimStore{tx: s.tx, logger: s.logger}
	}
	return s.claims
}

func (s *txStore) Notifications() store.NotificationStore {
	if s.notifications == nil {
		s.notifications = &NotificationStore{tx: s.tx, logger: s.logger}
	}
	return s.notifications
}

func (s *txStore) Invitations() store.InvitationStore {
	if s.invitations == nil {
		s.invitations = &InvitationStore{tx: s.tx, logger: s.logger}
	}
	return s.invitations
}

func (s *txStore) Users() store.UserStore {
	if s.users == nil {
		s.users = &UserStore{tx: s.tx, logger: s.logger}
	}
	return s.users
}

func (s *txStore) Audit() store.AuditStore {
	if s.audit == nil {
		s.audit = &AuditStore{tx: s.tx, logger: s.logger}
	}
	return s.audit
}

func (s *txStore) Vehicles() store.VehicleStore {
	if s.vehicles == nil {
		s.vehicles = &VehicleStore{tx: s.tx, logger: s.logger}
	}
	return s.vehicles
}

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Close() error {
	// No-op for transaction store
	return nil
}

// queryable is an interface that both *sql.DB and *sql.Tx implement.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
