package models

import (
	"time"
)

// VehicleStatus represents the operational status of a fleet vehicle.
type VehicleStatus string

const (
	// VehicleStatusAvailable indicates the vehicle can take assignments.
	VehicleStatusAvailable VehicleStatus = "available"
	// VehicleStatusEnRoute indicates the vehicle is on an active route.
	VehicleStatusEnRoute VehicleStatus = "en_route"
	// VehicleStatusMaintenance indicates the vehicle is out of service.
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// Vehicle is a fleet vehicle record consulted by the dispatch scoring flow.
type Vehicle struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Plate      string        `json:"plate"`
	Carrier    string        `json:"carrier"`
	CapacityKg int           `json:"capacity_kg"`
	Status     VehicleStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}
