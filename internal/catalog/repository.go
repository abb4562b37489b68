package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the permission or category does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInUse indicates a permission still referenced by role defaults or overrides.
	ErrInUse = errors.New("catalog: permission in use")
)

// Repository provides access to the permission catalog tables.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, code string) (Permission, error)
	UpsertCategory(ctx context.Context, name string, ordering int) (Category, error)
	UpsertPermission(ctx context.Context, p Permission) error
	DeletePermission(ctx context.Context, code string) error
	CountReferences(ctx context.Context, code string) (int64, error)
	ListRoleDefaults(ctx context.Context) (map[string]map[string]bool, error)
	UpsertRoleDefault(ctx context.Context, role, code string, granted bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, ordering FROM permission_categories ORDER BY ordering, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Ordering); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, description, category_id FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Code, &p.Name, &p.Description, &p.CategoryID); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *repository) GetPermission(ctx context.Context, code string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT code, name, description, category_id FROM permissions WHERE code = $1`, code).
		Scan(&p.Code, &p.Name, &p.Description, &p.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

func (r *repository) UpsertCategory(ctx context.Context, name string, ordering int) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permission_categories (name, ordering) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET ordering = EXCLUDED.ordering
		RETURNING id, name, ordering`, name, ordering).
		Scan(&c.ID, &c.Name, &c.Ordering)
	return c, err
}

func (r *repository) UpsertPermission(ctx context.Context, p Permission) error {
	// Code and category are immutable; only name/description follow the seed.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (code, name, description, category_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`,
		p.Code, p.Name, p.Description, p.CategoryID)
	return err
}

func (r *repository) DeletePermission(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CountReferences(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM role_defaults WHERE permission_code = $1)
		     + (SELECT COUNT(*) FROM permission_overrides WHERE permission_code = $1)`, code).
		Scan(&count)
	return count, err
}

func (r *repository) ListRoleDefaults(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, permission_code, granted FROM role_defaults`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defaults := make(map[string]map[string]bool)
	for rows.Next() {
		var role, code string
		var granted bool
		if err := rows.Scan(&role, &code, &granted); err != nil {
			return nil, err
		}
		if defaults[code] == nil {
			defaults[code] = make(map[string]bool)
		}
		defaults[code][role] = granted
	}
	return defaults, rows.Err()
}

func (r *repository) UpsertRoleDefault(ctx context.Context, role, code string, granted bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_defaults (role, permission_code, granted) VALUES ($1, $2, $3)
		ON CONFLICT (role, permission_code) DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
		role, code, granted)
	return err
}
