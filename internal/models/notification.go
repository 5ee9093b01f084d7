package models

import (
	"time"
)

// NotificationType categorizes a notification for the dashboard renderer.
type NotificationType string

const (
	// NotificationClaimApproved is sent to the requester when a claim is approved.
	NotificationClaimApproved NotificationType = "claim_approved"
	// NotificationClaimRejected is sent to the requester when a claim is rejected.
	NotificationClaimRejected NotificationType = "claim_rejected"
)

// Notification is a message addressed to a single user, created in the same
// transaction as the claim transition that triggered it.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	ClaimID   string           `json:"claim_id,omitempty"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
