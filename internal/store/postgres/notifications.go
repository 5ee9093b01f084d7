package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// NotificationStore implements store.NotificationStore using PostgreSQL.
type NotificationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *NotificationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new notification.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, claim_id, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.conn().ExecContext(ctx, query,
		n.ID,
		n.UserID,
		string(n.Type),
		nullString(n.ClaimID),
		n.Message,
		n.Read,
		n.CreatedAt,
	)
	return err
}

// ListByUser retrieves notifications for a user, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, type, claim_id, message, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`

	rows, err := s.conn().QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		var typ string
		var claimID sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &claimID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = models.NotificationType(typ)
		n.ClaimID = claimID.String
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// MarkRead marks a notification as read. The user filter keeps one user
// from acknowledging another user's notifications.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`

	res, err := s.conn().ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
