package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/assistant"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/claims"
	"github.com/fleetgrid/ops-api/internal/store"
)

// ClaimsHandler handles claim HTTP requests.
type ClaimsHandler struct {
	store       store.Store
	service     *claims.Service
	rbacService *auth.RBACService
	assistant   *assistant.Service
	logger      *slog.Logger
}

// NewClaimsHandler creates a new claims handler. The assistant may be nil
// when no model backend is configured; the draft endpoint then reports the
// feature unavailable.
func NewClaimsHandler(st store.Store, svc *claims.Service, assistantSvc *assistant.Service, logger *slog.Logger) *ClaimsHandler {
	return &ClaimsHandler{
		store:       st,
		service:     svc,
		rbacService: auth.NewRBACService(st, logger),
		assistant:   assistantSvc,
		logger:      logger,
	}
}

// CreateClaimRequest represents the request body for filing a claim.
type CreateClaimRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Create handles POST /v1/claims.
func (h *ClaimsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePermission(w, r, auth.PermissionCreateClaims)
	if !ok {
		return
	}

	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	claim, err := h.service.Create(r.Context(), actor, req.Type, req.Description)
	if err != nil {
		h.writeClaimError(w, err, "failed to create claim")
		return
	}

	WriteJSON(w, http.StatusCreated, claim)
}

// List handles GET /v1/claims. Users with view_all_claims see every claim;
// everyone else sees only their own.
func (h *ClaimsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.rbacService.Resolve(r.Context(), userID)
	if err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	if auth.CheckRolePermission(user.Role, auth.PermissionViewAllClaims) == nil {
		all, err := h.store.Claims().List(r.Context())
		if err != nil {
			h.logger.Error("failed to list claims", "error", err)
			WriteInternalError(w, "failed to list claims")
			return
		}
		WriteJSON(w, http.StatusOK, all)
		return
	}

	own, err := h.store.Claims().ListByRequester(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list claims", "error", err)
		WriteInternalError(w, "failed to list claims")
		return
	}
	WriteJSON(w, http.StatusOK, own)
}

// Get handles GET /v1/claims/{claimID}, including the history trail.
func (h *ClaimsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	claimID := chi.URLParam(r, "claimID")
	claim, err := h.store.Claims().Get(r.Context(), claimID)
	if err != nil {
		h.logger.Error("failed to get claim", "error", err, "claim_id", claimID)
		WriteInternalError(w, "failed to get claim")
		return
	}
	if claim == nil {
		WriteNotFound(w, "claim not found")
		return
	}

	// Requesters see their own claims; reviewers see all
	if claim.RequesterID != userID {
		user, err := h.rbacService.Resolve(r.Context(), userID)
		if err != nil || auth.CheckRolePermission(user.Role, auth.PermissionViewAllClaims) != nil {
			WriteForbidden(w, "permission denied")
			return
		}
	}

	history, err := h.store.Claims().History(r.Context(), claimID)
	if err != nil {
		h.logger.Error("failed to get claim history", "error", err, "claim_id", claimID)
		WriteInternalError(w, "failed to get claim")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"claim":   claim,
		"history": history,
	})
}

// Approve handles POST /v1/claims/{claimID}/approve.
func (h *ClaimsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePermission(w, r, auth.PermissionManageClaims)
	if !ok {
		return
	}

	claimID := chi.URLParam(r, "claimID")
	claim, err := h.service.Approve(r.Context(), actor, claimID)
	if err != nil {
		h.writeClaimError(w, err, "failed to approve claim")
		return
	}

	WriteJSON(w, http.StatusOK, claim)
}

// RejectClaimRequest represents the request body for rejecting a claim.
type RejectClaimRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /v1/claims/{claimID}/reject.
func (h *ClaimsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePermission(w, r, auth.PermissionManageClaims)
	if !ok {
		return
	}

	var req RejectClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	claimID := chi.URLParam(r, "claimID")
	claim, err := h.service.Reject(r.Context(), actor, claimID, req.Reason)
	if err != nil {
		h.writeClaimError(w, err, "failed to reject claim")
		return
	}

	WriteJSON(w, http.StatusOK, claim)
}

// Draft handles POST /v1/claims/{claimID}/draft - runs the assistant draft
// flow and moves the claim into review.
func (h *ClaimsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePermission(w, r, auth.PermissionManageClaims)
	if !ok {
		return
	}

	if h.assistant == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "assistant is not configured")
		return
	}

	claimID := chi.URLParam(r, "claimID")
	claim, err := h.store.Claims().Get(r.Context(), claimID)
	if err != nil {
		h.logger.Error("failed to get claim", "error", err, "claim_id", claimID)
		WriteInternalError(w, "failed to draft claim")
		return
	}
	if claim == nil {
		WriteNotFound(w, "claim not found")
		return
	}

	draft, err := h.assistant.DraftClaim(r.Context(), claim)
	if err != nil {
		h.logger.Error("assistant draft failed", "error", err, "claim_id", claimID)
		WriteError(w, http.StatusBadGateway, ErrCodeInternalError, "assistant draft failed")
		return
	}

	claim, err = h.service.Draft(r.Context(), actor, claimID, draft.SuggestedCategory)
	if err != nil {
		h.writeClaimError(w, err, "failed to draft claim")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"claim": claim,
		"draft": draft,
	})
}

// requirePermission resolves the authenticated actor and checks a
// permission, writing the error response on failure.
func (h *ClaimsHandler) requirePermission(w http.ResponseWriter, r *http.Request, permission auth.Permission) (claims.Actor, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return claims.Actor{}, false
	}

	user, err := h.rbacService.CheckPermission(r.Context(), userID, permission)
	if err != nil {
		WriteForbidden(w, "permission denied")
		return claims.Actor{}, false
	}

	return claims.Actor{ID: user.ID, Role: user.Role}, true
}

func (h *ClaimsHandler) writeClaimError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, claims.ErrValidation):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, claims.ErrClaimNotFound):
		WriteNotFound(w, "claim not found")
	case errors.Is(err, claims.ErrNotAuthenticated):
		WriteUnauthorized(w, "unauthorized")
	case errors.Is(err, claims.ErrProfileNotFound):
		WriteForbidden(w, "no profile for this account")
	case errors.Is(err, claims.ErrInvalidState):
		WriteConflict(w, "claim is not in an actionable state")
	case errors.Is(err, store.ErrConcurrentModification):
		WriteConflict(w, "claim was actioned by another reviewer")
	default:
		h.logger.Error(fallback, "error", err)
		WriteInternalError(w, fallback)
	}
}
