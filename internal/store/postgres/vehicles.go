package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgrid/ops-api/internal/models"
)

// VehicleStore implements store.VehicleStore using PostgreSQL.
type VehicleStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *VehicleStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new vehicle record.
func (s *VehicleStore) Create(ctx context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if v.Status == "" {
		v.Status = models.VehicleStatusAvailable
	}

	query := `
		INSERT INTO vehicles (id, name, plate, carrier, capacity_kg, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.conn().ExecContext(ctx, query,
		v.ID, v.Name, v.Plate, v.Carrier, v.CapacityKg, string(v.Status), v.CreatedAt,
	)
	return err
}

// Get retrieves a vehicle by ID.
func (s *VehicleStore) Get(ctx context.Context, id string) (*models.Vehicle, error) {
	query := `SELECT id, name, plate, carrier, capacity_kg, status, created_at FROM vehicles WHERE id = $1`

	var v models.Vehicle
	var status string
	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Plate, &v.Carrier, &v.CapacityKg, &status, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.Status = models.VehicleStatus(status)
	return &v, nil
}

// List retrieves all vehicles.
func (s *VehicleStore) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `SELECT id, name, plate, carrier, capacity_kg, status, created_at FROM vehicles ORDER BY name`
	return s.queryVehicles(ctx, query)
}

// ListByStatus retrieves vehicles with a given status.
func (s *VehicleStore) ListByStatus(ctx context.Context, status models.VehicleStatus) ([]*models.Vehicle, error) {
	query := `SELECT id, name, plate, carrier, capacity_kg, status, created_at FROM vehicles WHERE status = $1 ORDER BY name`
	return s.queryVehicles(ctx, query, string(status))
}

func (s *VehicleStore) queryVehicles(ctx context.Context, query string, args ...any) ([]*models.Vehicle, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		var status string
		if err := rows.Scan(&v.ID, &v.Name, &v.Plate, &v.Carrier, &v.CapacityKg, &status, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Status = models.VehicleStatus(status)
		vehicles = append(vehicles, &v)
	}

	return vehicles, rows.Err()
}
