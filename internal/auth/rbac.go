package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// RBAC errors.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserDisabled     = errors.New("user account is disabled")
	ErrAdminExists      = errors.New("admin already exists, public registration is disabled")
	ErrCannotDemoteSelf = errors.New("cannot change your own role")
)

// Permission represents an action that can be performed.
type Permission string

const (
	// PermissionManageUsers allows managing users (invite, remove, change roles).
	PermissionManageUsers Permission = "manage_users"
	// PermissionViewUsers allows viewing the user list.
	PermissionViewUsers Permission = "view_users"
	// PermissionCreateClaims allows filing claims.
	PermissionCreateClaims Permission = "create_claims"
	// PermissionManageClaims allows approving, rejecting and drafting claims.
	PermissionManageClaims Permission = "manage_claims"
	// PermissionViewAllClaims allows viewing every claim, not just one's own.
	PermissionViewAllClaims Permission = "view_all_claims"
	// PermissionRunFlows allows invoking the AI assistant flows.
	PermissionRunFlows Permission = "run_flows"
	// PermissionViewAudit allows reading the audit trail.
	PermissionViewAudit Permission = "view_audit"
)

// rolePermissions defines which permissions each role has. The server-side
// check against this map is the authority; any gating in the dashboard UI is
// a convenience, not the security boundary.
var rolePermissions = map[models.Role][]Permission{
	models.RoleAdmin: {
		PermissionManageUsers,
		PermissionViewUsers,
		PermissionCreateClaims,
		PermissionManageClaims,
		PermissionViewAllClaims,
		PermissionRunFlows,
		PermissionViewAudit,
	},
	models.RoleManager: {
		PermissionViewUsers,
		PermissionCreateClaims,
		PermissionManageClaims,
		PermissionViewAllClaims,
		PermissionRunFlows,
	},
	models.RoleDispatcher: {
		PermissionCreateClaims,
		PermissionRunFlows,
	},
	models.RoleClaimsOfficer: {
		PermissionCreateClaims,
		PermissionRunFlows,
	},
}

// RBACService provides role-based access control over the Role Directory.
type RBACService struct {
	store  store.Store
	logger *slog.Logger
}

// NewRBACService creates a new RBAC service.
func NewRBACService(st store.Store, logger *slog.Logger) *RBACService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RBACService{
		store:  st,
		logger: logger,
	}
}

// CanRegister checks if public registration is allowed.
// Returns true only while no admin exists (first-run bootstrap).
func (s *RBACService) CanRegister(ctx context.Context) (bool, error) {
	count, err := s.store.Users().CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Resolve looks up an actor in the Role Directory and verifies the account
// is usable. Every gated operation resolves the actor through here.
func (s *RBACService) Resolve(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// CheckPermission verifies a user has permission for an action.
func (s *RBACService) CheckPermission(ctx context.Context, userID string, permission Permission) (*models.User, error) {
	user, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := CheckRolePermission(user.Role, permission); err != nil {
		return nil, err
	}
	return user, nil
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role models.Role, permission Permission) error {
	permissions, ok := rolePermissions[role]
	if !ok {
		return ErrPermissionDenied
	}
	for _, p := range permissions {
		if p == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}

// ChangeRole changes a user's role. Only admins may issue role changes, and
// an admin cannot change their own role.
func (s *RBACService) ChangeRole(ctx context.Context, actorID, userID string, role models.Role) error {
	if !models.ValidRole(role) {
		return ErrInvalidRole
	}
	if _, err := s.CheckPermission(ctx, actorID, PermissionManageUsers); err != nil {
		return err
	}
	if actorID == userID {
		return ErrCannotDemoteSelf
	}

	target, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}

	return s.store.Users().UpdateRole(ctx, userID, role)
}
