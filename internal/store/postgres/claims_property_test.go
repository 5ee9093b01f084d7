package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// getTestDSN returns the database DSN for testing.
// Set TEST_DATABASE_URL environment variable to run these tests.
func getTestDSN() string {
	return os.Getenv("TEST_DATABASE_URL")
}

// setupTestDB creates a test database connection and applies the schema.
func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := getTestDSN()
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	logger := slog.Default()
	s := &PostgresStore{db: db, logger: logger}
	s.claims = &ClaimStore{db: db, logger: logger}
	s.notifications = &NotificationStore{db: db, logger: logger}
	s.invitations = &InvitationStore{db: db, logger: logger}
	s.users = &UserStore{db: db, logger: logger}
	s.audit = &AuditStore{db: db, logger: logger}
	s.vehicles = &VehicleStore{db: db, logger: logger}
	return s
}

// cleanupTestDB removes test rows in foreign-key order and closes the
// connection.
func cleanupTestDB(t *testing.T, s *PostgresStore) {
	t.Helper()
	s.db.Exec("DELETE FROM claim_history")
	s.db.Exec("DELETE FROM notifications")
	s.db.Exec("DELETE FROM claims")
	s.db.Exec("DELETE FROM users")
	s.db.Close()
}

// createTestUser inserts a user row so claims can reference it.
func createTestUser(t *testing.T, s *PostgresStore, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		ID:     uuid.New().String(),
		Email:  fmt.Sprintf("%s@test.example", uuid.New().String()),
		Name:   "Test User",
		Role:   role,
		Status: models.UserStatusActive,
	}
	if err := s.Users().Create(context.Background(), user, "a-strong-password"); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestClaimRoundTripProperty(t *testing.T) {
	s := setupTestDB(t)
	defer cleanupTestDB(t, s)

	requester := createTestUser(t, s, models.RoleDispatcher)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("stored claims read back unchanged", prop.ForAll(
		func(claimType, description string, statusIdx int) bool {
			statuses := []models.ClaimStatus{
				models.ClaimStatusRequested,
				models.ClaimStatusInReview,
				models.ClaimStatusApproved,
				models.ClaimStatusRejected,
			}
			status := statuses[statusIdx%len(statuses)]

			claim := &models.Claim{
				Type:        claimType,
				Description: description,
				Status:      status,
				RequesterID: requester.ID,
			}
			// The schema enforces reason iff rejected
			if status == models.ClaimStatusRejected {
				claim.RejectionReason = "insufficient documentation"
			}

			ctx := context.Background()
			if err := s.Claims().Create(ctx, claim); err != nil {
				t.Logf("create failed: %v", err)
				return false
			}

			got, err := s.Claims().Get(ctx, claim.ID)
			if err != nil || got == nil {
				t.Logf("get failed: %v", err)
				return false
			}

			return got.Type == claim.Type &&
				got.Description == claim.Description &&
				got.Status == claim.Status &&
				got.RequesterID == claim.RequesterID &&
				got.RejectionReason == claim.RejectionReason
		},
		gen.RegexMatch("[a-z_]{4,24}"),
		gen.AlphaString(),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestTransitionGuard(t *testing.T) {
	s := setupTestDB(t)
	defer cleanupTestDB(t, s)

	requester := createTestUser(t, s, models.RoleDispatcher)
	admin := createTestUser(t, s, models.RoleAdmin)

	ctx := context.Background()
	actionable := []models.ClaimStatus{models.ClaimStatusRequested, models.ClaimStatusInReview}

	claim := &models.Claim{Type: "cargo_damage", Description: "two pallets crushed", RequesterID: requester.ID}
	if err := s.Claims().Create(ctx, claim); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Claims().Transition(ctx, claim.ID, actionable, models.ClaimStatusApproved, admin.ID, "", time.Now()); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	got, err := s.Claims().Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ClaimStatusApproved || got.AdminID != admin.ID {
		t.Errorf("after approve: status=%s admin=%s", got.Status, got.AdminID)
	}

	// A second decision loses the guard
	err = s.Claims().Transition(ctx, claim.ID, actionable, models.ClaimStatusRejected, admin.ID, "too late", time.Now())
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("second transition: %v, want ErrConcurrentModification", err)
	}

	got, err = s.Claims().Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ClaimStatusApproved || got.RejectionReason != "" {
		t.Errorf("losing writer mutated the claim: %+v", got)
	}

	err = s.Claims().Transition(ctx, uuid.New().String(), actionable, models.ClaimStatusApproved, admin.ID, "", time.Now())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown claim: %v, want ErrNotFound", err)
	}
}

func TestTransitionStoresRejectionReason(t *testing.T) {
	s := setupTestDB(t)
	defer cleanupTestDB(t, s)

	requester := createTestUser(t, s, models.RoleDispatcher)
	admin := createTestUser(t, s, models.RoleAdmin)

	ctx := context.Background()
	claim := &models.Claim{Type: "lost_shipment", Description: "container missing", RequesterID: requester.ID}
	if err := s.Claims().Create(ctx, claim); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Claims().Transition(ctx, claim.ID,
		[]models.ClaimStatus{models.ClaimStatusRequested, models.ClaimStatusInReview},
		models.ClaimStatusRejected, admin.ID, "no tracking evidence", time.Now())
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	got, err := s.Claims().Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RejectionReason != "no tracking evidence" {
		t.Errorf("rejection_reason = %q", got.RejectionReason)
	}
}

func TestWithTxRollsBackAllWrites(t *testing.T) {
	s := setupTestDB(t)
	defer cleanupTestDB(t, s)

	requester := createTestUser(t, s, models.RoleDispatcher)

	ctx := context.Background()
	claimID := uuid.New().String()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		claim := &models.Claim{ID: claimID, Type: "cargo_damage", Description: "d", RequesterID: requester.ID}
		if err := tx.Claims().Create(ctx, claim); err != nil {
			return err
		}
		entry := &models.ClaimHistoryEntry{
			ClaimID:     claimID,
			Action:      "requested",
			By:          requester.ID,
			RequesterID: requester.ID,
		}
		if err := tx.Claims().AppendHistory(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx: %v, want boom", err)
	}

	got, err := s.Claims().Get(ctx, claimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("claim survived a rolled-back transaction")
	}

	history, err := s.Claims().History(ctx, claimID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history survived a rolled-back transaction: %d entries", len(history))
	}
}

func TestWithTxCommitsAllWrites(t *testing.T) {
	s := setupTestDB(t)
	defer cleanupTestDB(t, s)

	requester := createTestUser(t, s, models.RoleDispatcher)

	ctx := context.Background()
	claimID := uuid.New().String()

	err := s.WithTx(ctx, func(tx store.Store) error {
		claim := &models.Claim{ID: claimID, Type: "delay", Description: "36h late", RequesterID: requester.ID}
		if err := tx.Claims().Create(ctx, claim); err != nil {
			return err
		}
		return tx.Claims().AppendHistory(ctx, &models.ClaimHistoryEntry{
			ClaimID:     claimID,
			Action:      "requested",
			By:          requester.ID,
			RequesterID: requester.ID,
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := s.Claims().Get(ctx, claimID)
	if err != nil || got == nil {
		t.Fatalf("get after commit: %v, claim=%v", err, got)
	}

	history, err := s.Claims().History(ctx, claimID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history entries = %d, want 1", len(history))
	}
}
