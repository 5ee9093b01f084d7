package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// ClaimStore implements store.ClaimStore using PostgreSQL.
type ClaimStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ClaimStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new claim.
func (s *ClaimStore) Create(ctx context.Context, claim *models.Claim) error {
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	now := time.Now()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = claim.CreatedAt
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusRequested
	}

	query := `
		INSERT INTO claims (id, type, description, status, requester_id, admin_id, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.conn().ExecContext(ctx, query,
		claim.ID,
		claim.Type,
		claim.Description,
		string(claim.Status),
		claim.RequesterID,
		nullString(claim.AdminID),
		nullString(claim.RejectionReason),
		claim.CreatedAt,
		claim.UpdatedAt,
	)
	return err
}

const claimColumns = `id, type, description, status, requester_id, admin_id, rejection_reason, created_at, updated_at`

func scanClaim(row interface{ Scan(...any) error }) (*models.Claim, error) {
	var c models.Claim
	var status string
	var adminID, reason sql.NullString

	err := row.Scan(
		&c.ID, &c.Type, &c.Description, &status, &c.RequesterID,
		&adminID, &reason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.ClaimStatus(status)
	c.AdminID = adminID.String
	c.RejectionReason = reason.String
	return &c, nil
}

// Get retrieves a claim by ID.
func (s *ClaimStore) Get(ctx context.Context, id string) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	claim, err := scanClaim(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// List retrieves all claims, newest first.
func (s *ClaimStore) List(ctx context.Context) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims ORDER BY created_at DESC`
	return s.queryClaims(ctx, query)
}

// ListByRequester retrieves all claims filed by a user, newest first.
func (s *ClaimStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE requester_id = $1 ORDER BY created_at DESC`
	return s.queryClaims(ctx, query, requesterID)
}

func (s *ClaimStore) queryClaims(ctx context.Context, query string, args ...any) ([]*models.Claim, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// Transition updates a claim's status with an expected-prior-status guard.
// The WHERE clause compares the stored status against the allowed set inside
// the same statement, so a concurrent writer that already moved the claim
// causes zero rows to match and the caller gets ErrConcurrentModification
// instead of silently overwriting the other decision.
func (s *ClaimStore) Transition(ctx context.Context, id string, from []models.ClaimStatus, to models.ClaimStatus, adminID, rejectionReason string, at time.Time) error {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	query := `
		UPDATE claims
		SET status = $1, admin_id = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6)
	`

	res, err := s.conn().ExecContext(ctx, query,
		string(to),
		nullString(adminID),
		nullString(rejectionReason),
		at,
		id,
		statuses,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a missing claim from a lost guard
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return store.ErrNotFound
	}
	return store.ErrConcurrentModification
}

// AppendHistory appends a history entry for a claim.
func (s *ClaimStore) AppendHistory(ctx context.Context, entry *models.ClaimHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO claim_history (id, claim_id, action, actor_id, details, requester_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.conn().ExecContext(ctx, query,
		entry.ID,
		entry.ClaimID,
		entry.Action,
		entry.By,
		entry.Details,
		entry.RequesterID,
		entry.CreatedAt,
	)
	return err
}

// History retrieves the history trail for a claim, oldest first.
func (s *ClaimStore) History(ctx context.Context, claimID string) ([]*models.ClaimHistoryEntry, error) {
	query := `
		SELECT id, claim_id, action, actor_id, details, requester_id, created_at
		FROM claim_history WHERE claim_id = $1 ORDER BY created_at ASC
	`

	rows, err := s.conn().QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ClaimHistoryEntry
	for rows.Next() {
		var e models.ClaimHistoryEntry
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.Action, &e.By, &e.Details, &e.RequesterID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// nullString converts an empty string to a NULL database value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
