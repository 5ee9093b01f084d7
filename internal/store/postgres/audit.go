package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgrid/ops-api/internal/models"
)

// AuditStore implements store.AuditStore using PostgreSQL. The primary and
// fallback logs are separate tables so a failure writing one does not imply
// a failure writing the other.
type AuditStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *AuditStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Append appends an entry to the primary audit log.
func (s *AuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (id, action, actor_id, actor_role, target_collection, target_id, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.conn().ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.ActorID,
		string(entry.ActorRole),
		entry.TargetCollection,
		entry.TargetID,
		contextJSON,
		entry.CreatedAt,
	)
	return err
}

// AppendFailed appends an entry to the fallback store after a primary write
// failure.
func (s *AuditStore) AppendFailed(ctx context.Context, entry *models.FailedAuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO failed_audit_logs (id, action, actor_id, actor_role, target_collection, target_id, context, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.conn().ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.ActorID,
		string(entry.ActorRole),
		entry.TargetCollection,
		entry.TargetID,
		contextJSON,
		entry.Error,
		entry.CreatedAt,
	)
	return err
}

// List retrieves audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, action, actor_id, actor_role, target_collection, target_id, context, created_at
		FROM audit_logs ORDER BY created_at DESC LIMIT $1
	`

	rows, err := s.conn().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var role string
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &role, &e.TargetCollection, &e.TargetID, &contextJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorRole = models.Role(role)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
