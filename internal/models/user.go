package models

import (
	"time"
)

// Role represents a user's role in the system.
type Role string

const (
	// RoleAdmin has full access: user management, claim decisions, audit.
	RoleAdmin Role = "admin"
	// RoleManager can action claims and run aggregation flows.
	RoleManager Role = "manager"
	// RoleDispatcher can run routing flows and file claims.
	RoleDispatcher Role = "dispatcher"
	// RoleClaimsOfficer can file claims and run claim drafting flows.
	RoleClaimsOfficer Role = "claims_officer"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDispatcher, RoleClaimsOfficer:
		return true
	}
	return false
}

// UserStatus represents the account status of a user.
type UserStatus string

const (
	// UserStatusActive indicates a usable account.
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled indicates a deactivated account.
	UserStatusDisabled UserStatus = "disabled"
)

// User is a Role Directory entry: the mapping from an opaque identity to
// role, status and display fields. Every gated operation consults it.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Role      Role       `json:"role"`
	Status    UserStatus `json:"status"`
	InvitedBy string     `json:"invited_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
