package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// Invite errors.
var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationExpired   = errors.New("invitation has expired")
	ErrInvitationUsed      = errors.New("invitation has already been used")
	ErrEmailAlreadyInvited = errors.New("email has already been invited")
	ErrEmailRequired       = errors.New("email is required")
	ErrNotPending          = errors.New("invitation is not pending")
)

// InvitationExpiry is the default duration for invitation validity.
const InvitationExpiry = 72 * time.Hour // 3 days

// InviteState classifies the outcome of resolving an invitation token.
type InviteState int

const (
	// InviteNotFound means no invitation carries the token.
	InviteNotFound InviteState = iota
	// InviteAlreadyUsed means the invitation's status is no longer pending.
	// This is terminal regardless of expiry.
	InviteAlreadyUsed
	// InviteExpired means the invitation is still pending but past its
	// expiry time. Expiry is derived at read time, never by a background job.
	InviteExpired
	// InviteValid means the invitation can be accepted.
	InviteValid
)

// Resolution is the result of resolving an invitation token.
type Resolution struct {
	State      InviteState
	Invitation *models.Invitation
}

// InviteService issues and redeems time-boxed single-use invitations that
// map an email to a pre-assigned role.
type InviteService struct {
	store  store.Store
	audit  *audit.Writer
	expiry time.Duration
	logger *slog.Logger
}

// NewInviteService creates a new invite service. A non-positive expiry
// falls back to InvitationExpiry.
func NewInviteService(st store.Store, auditWriter *audit.Writer, expiry time.Duration, logger *slog.Logger) *InviteService {
	if logger == nil {
		logger = slog.Default()
	}
	if expiry <= 0 {
		expiry = InvitationExpiry
	}
	return &InviteService{
		store:  st,
		audit:  auditWriter,
		expiry: expiry,
		logger: logger,
	}
}

// CreateInvitation creates an invitation for a new user. The issuer must
// hold manage_users; the token carries 256 bits of entropy.
func (s *InviteService) CreateInvitation(ctx context.Context, issuer *models.User, email string, role models.Role) (*models.Invitation, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmailRequired
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if err := CheckRolePermission(issuer.Role, PermissionManageUsers); err != nil {
		return nil, err
	}

	// Refuse a second pending invitation or an existing account
	existing, err := s.store.Invitations().GetPendingByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsValid() {
		return nil, ErrEmailAlreadyInvited
	}
	existingUser, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, errors.New("user with this email already exists")
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, err
	}

	invitation := &models.Invitation{
		Email:          email,
		Token:          token,
		InvitedByName:  issuer.Name,
		InvitedByEmail: issuer.Email,
		Role:           role,
		Status:         models.InvitationStatusPending,
		ExpiresAt:      time.Now().Add(s.expiry),
		CreatedAt:      time.Now(),
	}

	if err := s.store.Invitations().Create(ctx, invitation); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditUserInvited, issuer.ID, issuer.Role, "invitations", invitation.ID, map[string]any{
		"email": email,
		"role":  string(role),
	})

	return invitation, nil
}

// ResolveInvitation classifies a token. The check order is load-bearing:
// not-found and already-used are terminal regardless of expiry; expiry is
// checked last and only on an otherwise pending invitation.
func (s *InviteService) ResolveInvitation(ctx context.Context, token string) (Resolution, error) {
	invitation, err := s.store.Invitations().GetByToken(ctx, token)
	if err != nil {
		return Resolution{}, err
	}
	if invitation == nil {
		return Resolution{State: InviteNotFound}, nil
	}
	if invitation.Status != models.InvitationStatusPending {
		return Resolution{State: InviteAlreadyUsed, Invitation: invitation}, nil
	}
	if invitation.IsExpired() {
		return Resolution{State: InviteExpired, Invitation: invitation}, nil
	}
	return Resolution{State: InviteValid, Invitation: invitation}, nil
}

// AcceptInvitation redeems a valid token: it creates the Role Directory
// profile with the pre-assigned role and marks the invitation accepted in a
// single transaction, so a crash cannot leave a half-accepted invite.
func (s *InviteService) AcceptInvitation(ctx context.Context, token, password string) (*models.User, error) {
	res, err := s.ResolveInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case InviteNotFound:
		return nil, ErrInvitationNotFound
	case InviteAlreadyUsed:
		return nil, ErrInvitationUsed
	case InviteExpired:
		return nil, ErrInvitationExpired
	}
	invitation := res.Invitation

	user := &models.User{
		Email:     invitation.Email,
		Name:      nameFromEmail(invitation.Email),
		Role:      invitation.Role,
		Status:    models.UserStatusActive,
		InvitedBy: invitation.InvitedByEmail,
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Users().Create(ctx, user, password); err != nil {
			return err
		}
		now := time.Now()
		invitation.Status = models.InvitationStatusAccepted
		invitation.AcceptedAt = &now
		return tx.Invitations().Update(ctx, invitation)
	})
	if err != nil {
		return nil, fmt.Errorf("accepting invitation: %w", err)
	}

	return user, nil
}

// CancelInvitation cancels a pending invitation.
func (s *InviteService) CancelInvitation(ctx context.Context, actor *models.User, invitationID string) error {
	if err := CheckRolePermission(actor.Role, PermissionManageUsers); err != nil {
		return err
	}

	invitation, err := s.store.Invitations().Get(ctx, invitationID)
	if err != nil {
		return err
	}
	if invitation == nil {
		return ErrInvitationNotFound
	}
	if invitation.Status != models.InvitationStatusPending {
		return ErrNotPending
	}

	invitation.Status = models.InvitationStatusCancelled
	if err := s.store.Invitations().Update(ctx, invitation); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditInviteCancel, actor.ID, actor.Role, "invitations", invitationID, map[string]any{
		"email": invitation.Email,
	})

	return nil
}

// ListInvitations returns all invitations.
func (s *InviteService) ListInvitations(ctx context.Context) ([]*models.Invitation, error) {
	return s.store.Invitations().List(ctx)
}

// generateInviteToken returns a 64-character hex token with 256 bits of
// entropy, well past the 128-bit floor for unguessable tokens.
func generateInviteToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(tokenBytes), nil
}

// nameFromEmail defaults a display name from the email's local part.
func nameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
