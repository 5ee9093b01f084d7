package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// InvitationsHandler handles invitation HTTP requests.
type InvitationsHandler struct {
	store         store.Store
	inviteService *auth.InviteService
	rbacService   *auth.RBACService
	authService   *auth.Service
	logger        *slog.Logger
}

// NewInvitationsHandler creates a new invitations handler.
func NewInvitationsHandler(st store.Store, inviteSvc *auth.InviteService, authSvc *auth.Service, logger *slog.Logger) *InvitationsHandler {
	return &InvitationsHandler{
		store:         st,
		inviteService: inviteSvc,
		rbacService:   auth.NewRBACService(st, logger),
		authService:   authSvc,
		logger:        logger,
	}
}

// CreateInvitationRequest represents the request body for creating an invitation.
type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Create handles POST /v1/invitations - creates a new invitation (admin only).
func (h *InvitationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	issuer, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionManageUsers)
	if err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	var req CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	invitation, err := h.inviteService.CreateInvitation(r.Context(), issuer, req.Email, models.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailRequired):
			WriteBadRequest(w, "email is required")
		case errors.Is(err, auth.ErrInvalidRole):
			WriteBadRequest(w, "invalid role")
		case errors.Is(err, auth.ErrEmailAlreadyInvited):
			WriteConflict(w, "email already invited")
		default:
			h.logger.Error("failed to create invitation", "error", err)
			WriteInternalError(w, "failed to create invitation")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, invitation)
}

// List handles GET /v1/invitations - lists all invitations (admin only).
func (h *InvitationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionViewUsers); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	invitations, err := h.inviteService.ListInvitations(r.Context())
	if err != nil {
		h.logger.Error("failed to list invitations", "error", err)
		WriteInternalError(w, "failed to list invitations")
		return
	}

	WriteJSON(w, http.StatusOK, invitations)
}

// Cancel handles DELETE /v1/invitations/{invitationID} - cancels an invitation (admin only).
func (h *InvitationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	actor, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionManageUsers)
	if err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	invitationID := chi.URLParam(r, "invitationID")
	if invitationID == "" {
		WriteBadRequest(w, "invitation ID required")
		return
	}

	if err := h.inviteService.CancelInvitation(r.Context(), actor, invitationID); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvitationNotFound):
			WriteNotFound(w, "invitation not found")
		case errors.Is(err, auth.ErrNotPending):
			WriteConflict(w, "invitation is no longer pending")
		default:
			h.logger.Error("failed to cancel invitation", "error", err, "invitation_id", invitationID)
			WriteInternalError(w, "failed to cancel invitation")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// AcceptInvitationRequest represents the request body for accepting an invitation.
type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Accept handles POST /auth/invite/accept - accepts an invitation (public).
func (h *InvitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	if req.Token == "" {
		WriteBadRequest(w, "token is required")
		return
	}
	if len(req.Password) < 8 {
		WriteBadRequest(w, "password must be at least 8 characters")
		return
	}

	user, err := h.inviteService.AcceptInvitation(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvitationNotFound):
			WriteNotFound(w, "invitation not found")
		case errors.Is(err, auth.ErrInvitationExpired):
			WriteError(w, http.StatusGone, ErrCodeGone, "invitation has expired")
		case errors.Is(err, auth.ErrInvitationUsed):
			WriteConflict(w, "invitation already used")
		default:
			h.logger.Error("failed to accept invitation", "error", err)
			WriteInternalError(w, "failed to accept invitation")
		}
		return
	}

	// Generate token for the new user
	token, err := h.authService.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteInternalError(w, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"token":   token,
		"role":    user.Role,
	})
}

// GetByToken handles GET /auth/invite/{token} - gets invitation details (public).
func (h *InvitationsHandler) GetByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		WriteBadRequest(w, "token required")
		return
	}

	res, err := h.inviteService.ResolveInvitation(r.Context(), token)
	if err != nil {
		h.logger.Error("failed to resolve invitation", "error", err)
		WriteInternalError(w, "failed to resolve invitation")
		return
	}
	if res.State == auth.InviteNotFound {
		WriteNotFound(w, "invitation not found")
		return
	}

	// Return limited info for security
	WriteJSON(w, http.StatusOK, map[string]any{
		"email":      res.Invitation.Email,
		"status":     res.Invitation.Status,
		"expires_at": res.Invitation.ExpiresAt,
		"is_valid":   res.State == auth.InviteValid,
	})
}
