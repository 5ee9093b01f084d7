package models

import (
	"time"
)

// InvitationStatus represents the status of an invitation.
type InvitationStatus string

const (
	// InvitationStatusPending indicates the invitation has not been accepted.
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted indicates the invitation has been accepted.
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusExpired indicates the invitation has expired.
	InvitationStatusExpired InvitationStatus = "expired"
	// InvitationStatusCancelled indicates the invitation was cancelled by an admin.
	InvitationStatusCancelled InvitationStatus = "cancelled"
)

// Invitation represents an invitation to join the platform with a
// pre-assigned role. Once the status leaves pending it is terminal.
type Invitation struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	Token          string           `json:"token"` // Unique token for accepting the invitation
	InvitedByName  string           `json:"invited_by_name"`
	InvitedByEmail string           `json:"invited_by_email"`
	Role           Role             `json:"role"`
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// IsExpired returns true if the invitation has expired. Expiry is a
// read-time derived check; the stored status may still read pending.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsValid returns true if the invitation can be accepted.
func (i *Invitation) IsValid() bool {
	return i.Status == InvitationStatusPending && !i.IsExpired()
}
