package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full database schema. Statements are idempotent so Migrate
// can run on every startup.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		invited_by VARCHAR(255),
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS claims (
		id UUID PRIMARY KEY,
		type VARCHAR(128) NOT NULL,
		description TEXT NOT NULL,
		status VARCHAR(16) NOT NULL CHECK (status IN ('requested', 'in_review', 'approved', 'rejected')),
		requester_id UUID NOT NULL REFERENCES users(id),
		admin_id UUID REFERENCES users(id),
		rejection_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((status = 'rejected') = (rejection_reason IS NOT NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_claims_requester ON claims(requester_id);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);

	CREATE TABLE IF NOT EXISTS claim_history (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL REFERENCES claims(id),
		action VARCHAR(32) NOT NULL,
		actor_id UUID NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		requester_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_claim_history_claim ON claim_history(claim_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		type VARCHAR(32) NOT NULL,
		claim_id UUID,
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);

	CREATE TABLE IF NOT EXISTS invitations (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		token VARCHAR(128) NOT NULL UNIQUE,
		invited_by_name VARCHAR(255) NOT NULL DEFAULT '',
		invited_by_email VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMPTZ NOT NULL,
		accepted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		action VARCHAR(64) NOT NULL,
		actor_id VARCHAR(255) NOT NULL,
		actor_role VARCHAR(32) NOT NULL,
		target_collection VARCHAR(64) NOT NULL,
		target_id VARCHAR(255) NOT NULL,
		context JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);

	CREATE TABLE IF NOT EXISTS failed_audit_logs (
		id UUID PRIMARY KEY,
		action VARCHAR(64) NOT NULL,
		actor_id VARCHAR(255) NOT NULL,
		actor_role VARCHAR(32) NOT NULL,
		target_collection VARCHAR(64) NOT NULL,
		target_id VARCHAR(255) NOT NULL,
		context JSONB,
		error TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id UUID PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		plate VARCHAR(32) NOT NULL UNIQUE,
		carrier VARCHAR(128) NOT NULL DEFAULT '',
		capacity_kg INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'available',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// Migrate applies the database schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
