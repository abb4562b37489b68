package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sis/meridian-sis/internal/platform/db"
)

var (
	// ErrNotFound indicates an unknown permission code or missing row.
	ErrNotFound = errors.New("rbac: not found")
	// ErrConflict indicates a lost compare-and-swap race on an override row.
	// Retryable with fresh state; never silently retried here.
	ErrConflict = errors.New("rbac: concurrent override update")
)

// Repository provides storage access for the resolution engine.
type Repository interface {
	ListCatalog(ctx context.Context) ([]CatalogEntry, error)
	GetCatalogEntry(ctx context.Context, code string) (*CatalogEntry, error)
	RoleDefaults(ctx context.Context, role string) (map[string]bool, error)
	RoleDefault(ctx context.Context, role, code string) (granted bool, exists bool, err error)
	Overrides(ctx context.Context, userID int64) (map[string]Override, error)
	GetOverride(ctx context.Context, userID int64, code string) (*Override, error)
	UpsertOverride(ctx context.Context, ov Override, expected *bool) error
	DeleteOverride(ctx context.Context, userID int64, code string) (bool, error)
	UpsertRoleDefault(ctx context.Context, role, code string, granted bool) (old *bool, err error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed engine repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListCatalog(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.code, p.name, p.description, c.name, c.ordering
		FROM permissions p
		JOIN permission_categories c ON c.id = p.category_id
		ORDER BY c.ordering, c.name, p.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.Description, &e.Category, &e.CategoryOrdering); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetCatalogEntry(ctx context.Context, code string) (*CatalogEntry, error) {
	var e CatalogEntry
	err := r.pool.QueryRow(ctx, `
		SELECT p.code, p.name, p.description, c.name, c.ordering
		FROM permissions p
		JOIN permission_categories c ON c.id = p.category_id
		WHERE p.code = $1`, code).
		Scan(&e.Code, &e.Name, &e.Description, &e.Category, &e.CategoryOrdering)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) RoleDefaults(ctx context.Context, role string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_code, granted FROM role_defaults WHERE role = $1`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defaults := make(map[string]bool)
	for rows.Next() {
		var code string
		var granted bool
		if err := rows.Scan(&code, &granted); err != nil {
			return nil, err
		}
		defaults[code] = granted
	}
	return defaults, rows.Err()
}

func (r *repository) RoleDefault(ctx context.Context, role, code string) (bool, bool, error) {
	var granted bool
	err := r.pool.QueryRow(ctx,
		`SELECT granted FROM role_defaults WHERE role = $1 AND permission_code = $2`, role, code).
		Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return granted, true, nil
}

func (r *repository) Overrides(ctx context.Context, userID int64) (map[string]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, permission_code, granted, set_by, set_at
		FROM permission_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(map[string]Override)
	for rows.Next() {
		var ov Override
		if err := rows.Scan(&ov.UserID, &ov.PermissionCode, &ov.Granted, &ov.SetBy, &ov.SetAt); err != nil {
			return nil, err
		}
		overrides[ov.PermissionCode] = ov
	}
	return overrides, rows.Err()
}

func (r *repository) GetOverride(ctx context.Context, userID int64, code string) (*Override, error) {
	var ov Override
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, permission_code, granted, set_by, set_at
		FROM permission_overrides WHERE user_id = $1 AND permission_code = $2`, userID, code).
		Scan(&ov.UserID, &ov.PermissionCode, &ov.Granted, &ov.SetBy, &ov.SetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ov, nil
}

// UpsertOverride is a compare-and-swap keyed on (user_id, permission_code).
// expected nil means the caller observed no override row; a non-nil expected
// is the granted value the caller observed. A mismatch means a concurrent
// writer won and the caller gets ErrConflict.
func (r *repository) UpsertOverride(ctx context.Context, ov Override, expected *bool) error {
	if expected == nil {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO permission_overrides (user_id, permission_code, granted, set_by, set_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id, permission_code) DO NOTHING`,
			ov.UserID, ov.PermissionCode, ov.Granted, ov.SetBy)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE permission_overrides
		SET granted = $3, set_by = $4, set_at = NOW()
		WHERE user_id = $1 AND permission_code = $2 AND granted = $5`,
		ov.UserID, ov.PermissionCode, ov.Granted, ov.SetBy, *expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *repository) DeleteOverride(ctx context.Context, userID int64, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE user_id = $1 AND permission_code = $2`, userID, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertRoleDefault reads the previous value and writes the new one in a
// single transaction, so the reported old value cannot race the write.
func (r *repository) UpsertRoleDefault(ctx context.Context, role, code string, granted bool) (*bool, error) {
	var old *bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var prev bool
		err := tx.QueryRow(ctx,
			`SELECT granted FROM role_defaults WHERE role = $1 AND permission_code = $2 FOR UPDATE`,
			role, code).Scan(&prev)
		switch {
		case err == nil:
			old = &prev
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO role_defaults (role, permission_code, granted) VALUES ($1, $2, $3)
			ON CONFLICT (role, permission_code) DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
			role, code, granted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}
