package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/store"
)

// AuditHandler handles audit trail HTTP requests.
type AuditHandler struct {
	store       store.Store
	rbacService *auth.RBACService
	logger      *slog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(st store.Store, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		store:       st,
		rbacService: auth.NewRBACService(st, logger),
		logger:      logger,
	}
}

// List handles GET /v1/audit - recent audit entries, newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}

	if _, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionViewAudit); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.store.Audit().List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		WriteInternalError(w, "failed to list audit entries")
		return
	}

	WriteJSON(w, http.StatusOK, entries)
}
