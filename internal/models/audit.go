package models

import (
	"time"
)

// Audit event names recorded by the platform.
const (
	AuditClaimCreated   = "claim_created"
	AuditClaimApproved  = "claim_approved"
	AuditClaimRejected  = "claim_rejected"
	AuditClaimDraftedAI = "claim_drafted_by_ai"
	AuditUserInvited    = "user_invited"
	AuditInviteCancel   = "invite_cancelled"
	AuditRoleChanged    = "user_role_changed"
)

// AuditLogEntry is an immutable record of a system or user action. It is
// written after, and independently of, the business transaction it
// describes; its failure never rolls back that transaction.
type AuditLogEntry struct {
	ID               string         `json:"id"`
	Action           string         `json:"action"`
	ActorID          string         `json:"actor_id"`
	ActorRole        Role           `json:"actor_role"`
	TargetCollection string         `json:"target_collection"`
	TargetID         string         `json:"target_id"`
	Context          map[string]any `json:"context,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// FailedAuditLogEntry records an audit entry whose primary write failed,
// kept for manual reconciliation. A failure writing this too is only
// logged locally and dropped.
type FailedAuditLogEntry struct {
	AuditLogEntry
	Error string `json:"error"`
}
