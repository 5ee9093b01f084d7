package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// UsersHandler handles Role Directory HTTP requests.
type UsersHandler struct {
	store       store.Store
	rbacService *auth.RBACService
	audit       *audit.Writer
	logger      *slog.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(st store.Store, auditWriter *audit.Writer, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		store:       st,
		rbacService: auth.NewRBACService(st, logger),
		audit:       auditWriter,
		logger:      logger,
	}
}

// List handles GET /v1/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionViewUsers); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	users, err := h.store.Users().List(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		WriteInternalError(w, "failed to list users")
		return
	}

	WriteJSON(w, http.StatusOK, users)
}

// Get handles GET /v1/users/{userID}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	if actorID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	targetID := chi.URLParam(r, "userID")

	// Users can always see their own profile
	if actorID != targetID {
		if _, err := h.rbacService.CheckPermission(r.Context(), actorID, auth.PermissionViewUsers); err != nil {
			WriteForbidden(w, "permission denied")
			return
		}
	}

	user, err := h.store.Users().GetByID(r.Context(), targetID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err, "user_id", targetID)
		WriteInternalError(w, "failed to get user")
		return
	}
	if user == nil {
		WriteNotFound(w, "user not found")
		return
	}

	WriteJSON(w, http.StatusOK, user)
}

// ChangeRoleRequest represents the request body for changing a user's role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PUT /v1/users/{userID}/role (admin only).
func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	if actorID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	targetID := chi.URLParam(r, "userID")

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	if err := h.rbacService.ChangeRole(r.Context(), actorID, targetID, models.Role(req.Role)); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRole):
			WriteBadRequest(w, "invalid role")
		case errors.Is(err, auth.ErrCannotDemoteSelf):
			WriteConflict(w, "cannot change your own role")
		case errors.Is(err, auth.ErrUserNotFound):
			WriteNotFound(w, "user not found")
		case errors.Is(err, auth.ErrPermissionDenied), errors.Is(err, auth.ErrUserDisabled):
			WriteForbidden(w, "permission denied")
		default:
			h.logger.Error("failed to change role", "error", err, "user_id", targetID)
			WriteInternalError(w, "failed to change role")
		}
		return
	}

	if actor, err := h.store.Users().GetByID(r.Context(), actorID); err == nil && actor != nil {
		h.audit.Record(r.Context(), models.AuditRoleChanged, actor.ID, actor.Role,
			"users", targetID, map[string]any{"new_role": req.Role})
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ChangeStatusRequest represents the request body for enabling or disabling
// an account.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// ChangeStatus handles PUT /v1/users/{userID}/status (admin only).
func (h *UsersHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	if actorID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.rbacService.CheckPermission(r.Context(), actorID, auth.PermissionManageUsers); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	targetID := chi.URLParam(r, "userID")
	if targetID == actorID {
		WriteConflict(w, "cannot change your own account status")
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	status := models.UserStatus(req.Status)
	if status != models.UserStatusActive && status != models.UserStatusDisabled {
		WriteBadRequest(w, "status must be active or disabled")
		return
	}

	target, err := h.store.Users().GetByID(r.Context(), targetID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err, "user_id", targetID)
		WriteInternalError(w, "failed to update status")
		return
	}
	if target == nil {
		WriteNotFound(w, "user not found")
		return
	}

	if err := h.store.Users().UpdateStatus(r.Context(), targetID, status); err != nil {
		h.logger.Error("failed to update status", "error", err, "user_id", targetID)
		WriteInternalError(w, "failed to update status")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Disable handles DELETE /v1/users/{userID} (admin only). Accounts are
// disabled, never removed: claims, history and audit rows keep referencing
// the user.
func (h *UsersHandler) Disable(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	if actorID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.rbacService.CheckPermission(r.Context(), actorID, auth.PermissionManageUsers); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	targetID := chi.URLParam(r, "userID")
	if targetID == actorID {
		WriteConflict(w, "cannot disable your own account")
		return
	}

	target, err := h.store.Users().GetByID(r.Context(), targetID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err, "user_id", targetID)
		WriteInternalError(w, "failed to disable user")
		return
	}
	if target == nil {
		WriteNotFound(w, "user not found")
		return
	}

	if err := h.store.Users().UpdateStatus(r.Context(), targetID, models.UserStatusDisabled); err != nil {
		h.logger.Error("failed to disable user", "error", err, "user_id", targetID)
		WriteInternalError(w, "failed to disable user")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// Me handles GET /v1/users/me - returns the authenticated user's profile.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.store.Users().GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err, "user_id", userID)
		WriteInternalError(w, "failed to get profile")
		return
	}
	if user == nil {
		WriteNotFound(w, "no profile for this account")
		return
	}

	WriteJSON(w, http.StatusOK, user)
}
