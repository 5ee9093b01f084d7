package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/assistant"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// FlowsHandler handles AI assistant flow HTTP requests.
type FlowsHandler struct {
	store       store.Store
	assistant   *assistant.Service
	rbacService *auth.RBACService
	logger      *slog.Logger
}

// NewFlowsHandler creates a new flows handler. The assistant may be nil when
// no model backend is configured; every flow then reports 503.
func NewFlowsHandler(st store.Store, assistantSvc *assistant.Service, logger *slog.Logger) *FlowsHandler {
	return &FlowsHandler{
		store:       st,
		assistant:   assistantSvc,
		rbacService: auth.NewRBACService(st, logger),
		logger:      logger,
	}
}

// authorize checks the caller may run flows and the assistant is available.
func (h *FlowsHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return false
	}
	if _, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionRunFlows); err != nil {
		WriteForbidden(w, "permission denied")
		return false
	}
	if h.assistant == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "assistant is not configured")
		return false
	}
	return true
}

// RecalculateETA handles POST /v1/flows/eta.
func (h *FlowsHandler) RecalculateETA(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req assistant.ETARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Origin == "" || req.Destination == "" {
		WriteBadRequest(w, "origin and destination are required")
		return
	}

	result, err := h.assistant.RecalculateETA(r.Context(), req)
	if err != nil {
		h.logger.Error("eta flow failed", "error", err)
		WriteError(w, http.StatusBadGateway, ErrCodeInternalError, "eta flow failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// ScoreDispatchRoute handles POST /v1/flows/dispatch-score. The candidate
// set is the available portion of the fleet.
func (h *FlowsHandler) ScoreDispatchRoute(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req assistant.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Route == "" {
		WriteBadRequest(w, "route is required")
		return
	}

	vehicles, err := h.store.Vehicles().ListByStatus(r.Context(), models.VehicleStatusAvailable)
	if err != nil {
		h.logger.Error("failed to list vehicles", "error", err)
		WriteInternalError(w, "failed to list vehicles")
		return
	}
	if len(vehicles) == 0 {
		WriteConflict(w, "no vehicles available to score")
		return
	}

	result, err := h.assistant.ScoreDispatchRoute(r.Context(), req, vehicles)
	if err != nil {
		h.logger.Error("dispatch flow failed", "error", err)
		WriteError(w, http.StatusBadGateway, ErrCodeInternalError, "dispatch flow failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// AggregateRisk handles POST /v1/flows/risk.
func (h *FlowsHandler) AggregateRisk(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req assistant.RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if len(req.Signals) == 0 {
		WriteBadRequest(w, "at least one signal is required")
		return
	}

	result, err := h.assistant.AggregateRisk(r.Context(), req)
	if err != nil {
		h.logger.Error("risk flow failed", "error", err)
		WriteError(w, http.StatusBadGateway, ErrCodeInternalError, "risk flow failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
