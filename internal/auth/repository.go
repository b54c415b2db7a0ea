package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusense/backend/internal/models"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.password_hash, u.full_name, u.role, s.id, u.created_at, u.updated_at`

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u
		LEFT JOIN students s ON s.user_id = u.id WHERE u.id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u
		LEFT JOIN students s ON s.user_id = u.id WHERE u.email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, email))
}

type row interface {
	Scan(dest ...any) error
}

func (r *Repository) scanUser(rw row) (*models.User, error) {
	var u models.User
	if err := rw.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role,
		&u.StudentID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Student accounts also get a student record in
// the same transaction so telemetry and scores have somewhere to attach.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var u models.User
	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, full_name, role) VALUES ($1, $2, $3, $4)
		 RETURNING id, email, password_hash, full_name, role, created_at, updated_at`,
		email, passwordHash, fullName, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if role == models.RoleStudent {
		var studentID uuid.UUID
		err = tx.QueryRow(ctx,
			`INSERT INTO students (user_id, full_name) VALUES ($1, $2) RETURNING id`,
			u.ID, fullName).Scan(&studentID)
		if err != nil {
			return nil, fmt.Errorf("insert student: %w", err)
		}
		u.StudentID = &studentID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &u, nil
}

// List returns all users for the admin view.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.email, u.full_name, u.role, s.id, u.created_at FROM users u
		 LEFT JOIN students s ON s.user_id = u.id ORDER BY u.full_name, u.email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.StudentID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.Role(role)
		list = append(list, u)
	}
	return list, rows.Err()
}
