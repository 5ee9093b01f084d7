// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/fleetgrid/ops-api/internal/models"
)

// ClaimStore defines operations for claim management.
type ClaimStore interface {
	// Create creates a new claim.
	Create(ctx context.Context, claim *models.Claim) error
	// Get retrieves a claim by ID.
	Get(ctx context.Context, id string) (*models.Claim, error)
	// List retrieves all claims, newest first.
	List(ctx context.Context) ([]*models.Claim, error)
	// ListByRequester retrieves all claims filed by a user, newest first.
	ListByRequester(ctx context.Context, requesterID string) ([]*models.Claim, error)
	// Transition updates a claim's status, admin and rejection reason in a
	// single guarded write. The update only applies if the stored status is
	// one of from; otherwise ErrConcurrentModification is returned when the
	// claim exists, ErrNotFound when it does not.
	Transition(ctx context.Context, id string, from []models.ClaimStatus, to models.ClaimStatus, adminID, rejectionReason string, at time.Time) error
	// AppendHistory appends a history entry for a claim.
	AppendHistory(ctx context.Context, entry *models.ClaimHistoryEntry) error
	// History retrieves the history trail for a claim, oldest first.
	History(ctx context.Context, claimID string) ([]*models.ClaimHistoryEntry, error)
}

// NotificationStore defines operations for user notifications.
type NotificationStore interface {
	// Create creates a new notification.
	Create(ctx context.Context, n *models.Notification) error
	// ListByUser retrieves notifications for a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	// MarkRead marks a notification as read.
	MarkRead(ctx context.Context, id, userID string) error
}

// InvitationStore defines operations for invitation management.
type InvitationStore interface {
	// Create creates a new invitation.
	Create(ctx context.Context, invitation *models.Invitation) error
	// Get retrieves an invitation by ID.
	Get(ctx context.Context, id string) (*models.Invitation, error)
	// GetByToken retrieves an invitation by its token.
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	// GetPendingByEmail retrieves a pending invitation by email.
	GetPendingByEmail(ctx context.Context, email string) (*models.Invitation, error)
	// List retrieves all invitations, newest first.
	List(ctx context.Context) ([]*models.Invitation, error)
	// Update updates an invitation's status and acceptance time.
	Update(ctx context.Context, invitation *models.Invitation) error
}

// UserStore defines operations for the Role Directory.
type UserStore interface {
	// Create creates a new user with a bcrypt-hashed password.
	Create(ctx context.Context, user *models.User, password string) error
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Authenticate verifies credentials and returns the user.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	// List retrieves all users.
	List(ctx context.Context) ([]*models.User, error)
	// UpdateRole changes a user's role.
	UpdateRole(ctx context.Context, id string, role models.Role) error
	// UpdateStatus changes a user's account status.
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	// CountByRole returns the number of users with a specific role.
	CountByRole(ctx context.Context, role models.Role) (int, error)
}

// AuditStore defines operations for the append-only audit trail.
type AuditStore interface {
	// Append appends an entry to the primary audit log.
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	// AppendFailed appends an entry to the fallback store after a primary
	// write failure.
	AppendFailed(ctx context.Context, entry *models.FailedAuditLogEntry) error
	// List retrieves audit entries, newest first.
	List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)
}

// VehicleStore defines operations for fleet vehicle records.
type VehicleStore interface {
	// Create creates a new vehicle record.
	Create(ctx context.Context, v *models.Vehicle) error
	// Get retrieves a vehicle by ID.
	Get(ctx context.Context, id string) (*models.Vehicle, error)
	// List retrieves all vehicles.
	List(ctx context.Context) ([]*models.Vehicle, error)
	// ListByStatus retrieves vehicles with a given status.
	ListByStatus(ctx context.Context, status models.VehicleStatus) ([]*models.Vehicle, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Claims returns the ClaimStore for claim operations.
	Claims() ClaimStore
	// Notifications returns the NotificationStore for notification operations.
	Notifications() NotificationStore
	// Invitations returns the InvitationStore for invitation operations.
	Invitations() InvitationStore
	// Users returns the UserStore for Role Directory operations.
	Users() UserStore
	// Audit returns the AuditStore for audit trail operations.
	Audit() AuditStore
	// Vehicles returns the VehicleStore for fleet operations.
	Vehicles() VehicleStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed. Every write issued through
	// the transaction-scoped store commits or fails as a single unit.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Close closes the database connection.
	Close() error
}
