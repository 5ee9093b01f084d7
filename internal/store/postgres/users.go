package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *UserStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new user with a bcrypt-hashed password.
func (s *UserStore) Create(ctx context.Context, user *models.User, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}

	query := `
		INSERT INTO users (id, email, name, role, status, invited_by, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.conn().ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		string(user.Role),
		string(user.Status),
		nullString(user.InvitedBy),
		string(hashedPassword),
		user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

const userColumns = `id, email, name, role, status, invited_by, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var role, status string
	var invitedBy sql.NullString

	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &status, &invitedBy, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.Status = models.UserStatus(status)
	u.InvitedBy = invitedBy.String
	return &u, nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.conn().QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and returns the user.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	query := `SELECT id, email, name, role, status, invited_by, password_hash, created_at FROM users WHERE email = $1`

	var u models.User
	var role, status, passwordHash string
	var invitedBy sql.NullString
	err := s.conn().QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.Name, &role, &status, &invitedBy, &passwordHash, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	u.Role = models.Role(role)
	u.Status = models.UserStatus(status)
	u.InvitedBy = invitedBy.String
	return &u, nil
}

// List retrieves all users.
func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// UpdateRole changes a user's role.
func (s *UserStore) UpdateRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE users SET role = $1 WHERE id = $2`

	res, err := s.conn().ExecContext(ctx, query, string(role), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateStatus changes a user's account status.
func (s *UserStore) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	query := `UPDATE users SET status = $1 WHERE id = $2`

	res, err := s.conn().ExecContext(ctx, query, string(status), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountByRole returns the number of users with a specific role.
func (s *UserStore) CountByRole(ctx context.Context, role models.Role) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE role = $1`

	var count int
	err := s.conn().QueryRowContext(ctx, query, string(role)).Scan(&count)
	return count, err
}
