package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/auth"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// VehiclesHandler handles fleet vehicle HTTP requests.
type VehiclesHandler struct {
	store       store.Store
	rbacService *auth.RBACService
	logger      *slog.Logger
}

// NewVehiclesHandler creates a new vehicles handler.
func NewVehiclesHandler(st store.Store, logger *slog.Logger) *VehiclesHandler {
	return &VehiclesHandler{
		store:       st,
		rbacService: auth.NewRBACService(st, logger),
		logger:      logger,
	}
}

// List handles GET /v1/vehicles. An optional status query filters the fleet.
func (h *VehiclesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}
	if _, err := h.rbacService.Resolve(r.Context(), userID); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	var (
		vehicles []*models.Vehicle
		err      error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		vehicles, err = h.store.Vehicles().ListByStatus(r.Context(), models.VehicleStatus(status))
	} else {
		vehicles, err = h.store.Vehicles().List(r.Context())
	}
	if err != nil {
		h.logger.Error("failed to list vehicles", "error", err)
		WriteInternalError(w, "failed to list vehicles")
		return
	}

	WriteJSON(w, http.StatusOK, vehicles)
}

// Get handles GET /v1/vehicles/{vehicleID}.
func (h *VehiclesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}
	if _, err := h.rbacService.Resolve(r.Context(), userID); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	vehicleID := chi.URLParam(r, "vehicleID")
	vehicle, err := h.store.Vehicles().Get(r.Context(), vehicleID)
	if err != nil {
		h.logger.Error("failed to get vehicle", "error", err, "vehicle_id", vehicleID)
		WriteInternalError(w, "failed to get vehicle")
		return
	}
	if vehicle == nil {
		WriteNotFound(w, "vehicle not found")
		return
	}

	WriteJSON(w, http.StatusOK, vehicle)
}

// CreateVehicleRequest represents the request body for registering a vehicle.
type CreateVehicleRequest struct {
	Name       string `json:"name"`
	Carrier    string `json:"carrier"`
	CapacityKg int    `json:"capacity_kg"`
	Status     string `json:"status"`
}

// Create handles POST /v1/vehicles (manager or admin).
func (h *VehiclesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteUnauthorized(w, "unauthorized")
		return
	}
	if _, err := h.rbacService.CheckPermission(r.Context(), userID, auth.PermissionManageClaims); err != nil {
		WriteForbidden(w, "permission denied")
		return
	}

	var req CreateVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.Carrier == "" {
		WriteBadRequest(w, "name and carrier are required")
		return
	}
	if req.CapacityKg <= 0 {
		WriteBadRequest(w, "capacity_kg must be positive")
		return
	}

	status := models.VehicleStatus(req.Status)
	if status == "" {
		status = models.VehicleStatusAvailable
	}
	switch status {
	case models.VehicleStatusAvailable, models.VehicleStatusEnRoute, models.VehicleStatusMaintenance:
	default:
		WriteBadRequest(w, "invalid vehicle status")
		return
	}

	vehicle := &models.Vehicle{
		Name:       req.Name,
		Carrier:    req.Carrier,
		CapacityKg: req.CapacityKg,
		Status:     status,
	}
	if err := h.store.Vehicles().Create(r.Context(), vehicle); err != nil {
		h.logger.Error("failed to create vehicle", "error", err)
		WriteInternalError(w, "failed to create vehicle")
		return
	}

	WriteJSON(w, http.StatusCreated, vehicle)
}
