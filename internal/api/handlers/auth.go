package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	store       store.Store
	authService *auth.Service
	rbacService *auth.RBACService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st store.Store, authSvc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:       st,
		authService: authSvc,
		rbacService: auth.NewRBACService(st, logger),
		logger:      logger,
	}
}

// LoginRequest represents the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteBadRequest(w, "email and password are required")
		return
	}

	user, err := h.store.Users().Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteUnauthorized(w, "invalid credentials")
		return
	}
	if user.Status != models.UserStatusActive {
		WriteForbidden(w, "account is disabled")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteInternalError(w, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// CanRegister handles GET /auth/can-register - reports whether first-run
// registration is still open.
func (h *AuthHandler) CanRegister(w http.ResponseWriter, r *http.Request) {
	open, err := h.rbacService.CanRegister(r.Context())
	if err != nil {
		h.logger.Error("failed to check registration state", "error", err)
		WriteInternalError(w, "failed to check registration state")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"can_register": open})
}

// RegisterRequest represents the request body for first-run registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register handles POST /auth/register. Registration is only open until the
// first admin exists; everyone after that joins through an invitation.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" {
		WriteBadRequest(w, "email is required")
		return
	}
	if len(req.Password) < 8 {
		WriteBadRequest(w, "password must be at least 8 characters")
		return
	}

	open, err := h.rbacService.CanRegister(r.Context())
	if err != nil {
		h.logger.Error("failed to check registration state", "error", err)
		WriteInternalError(w, "failed to register")
		return
	}
	if !open {
		WriteForbidden(w, "registration is closed, ask an admin for an invitation")
		return
	}

	user := &models.User{
		Email:  req.Email,
		Name:   req.Name,
		Role:   models.RoleAdmin,
		Status: models.UserStatusActive,
	}
	if err := h.store.Users().Create(r.Context(), user, req.Password); err != nil {
		if err == store.ErrDuplicateKey {
			WriteConflict(w, "email already registered")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		WriteInternalError(w, "failed to register")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteInternalError(w, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  user,
	})
}
