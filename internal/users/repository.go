package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/platform/db"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// ErrNotFound marks a lookup for a user that does not exist.
var ErrNotFound = errors.New("users: not found")

// ErrEmailTaken marks a create that collides with an existing email.
var ErrEmailTaken = errors.New("users: email already registered")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, is_superuser, is_active, created_at, updated_at`

// List returns all users ordered by id.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Get returns one user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// Create inserts a new account and returns it with generated fields.
func (r *Repository) Create(ctx context.Context, input CreateInput, role shared.Role) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, is_superuser, is_active)
		VALUES ($1, $2, $3, FALSE, TRUE)
		RETURNING `+userColumns,
		input.Email, input.Name, string(role))
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return user, nil
}

// Update persists the given user row and returns the stored version.
func (r *Repository) Update(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, role = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, string(user.Role), user.IsActive)
	stored, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return stored, err
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.IsSuperuser, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	parsed, err := shared.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("users: row %d: %w", user.ID, err)
	}
	user.Role = parsed
	return user, nil
}
