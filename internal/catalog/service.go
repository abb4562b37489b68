package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Service orchestrates catalog reads and administrative seeding.
type Service struct {
	repo Repository
}

// NewService constructs a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Matrix returns the nested category -> permission -> role-default view
// consumed by the role default editor.
func (s *Service) Matrix(ctx context.Context) ([]MatrixCategory, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list permissions: %w", err)
	}
	defaults, err := s.repo.ListRoleDefaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list role defaults: %w", err)
	}

	byCategory := make(map[int64][]MatrixPermission)
	for _, p := range perms {
		entry := MatrixPermission{
			Code:        p.Code,
			Name:        p.Name,
			Description: p.Description,
			Defaults:    defaults[p.Code],
		}
		if entry.Defaults == nil {
			entry.Defaults = map[string]bool{}
		}
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], entry)
	}

	matrix := make([]MatrixCategory, 0, len(categories))
	for _, c := range categories {
		entries := byCategory[c.ID]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
		matrix = append(matrix, MatrixCategory{
			ID:          c.ID,
			Name:        c.Name,
			Ordering:    c.Ordering,
			Permissions: entries,
		})
	}
	return matrix, nil
}

// Get returns a single permission by code.
func (s *Service) Get(ctx context.Context, code string) (Permission, error) {
	return s.repo.GetPermission(ctx, strings.TrimSpace(code))
}

// Seed upserts categories and permissions, then any declared role defaults.
// Safe to run repeatedly.
func (s *Service) Seed(ctx context.Context, seed []SeedCategory) error {
	for _, sc := range seed {
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return errors.New("catalog: seed category name required")
		}
		cat, err := s.repo.UpsertCategory(ctx, name, sc.Ordering)
		if err != nil {
			return fmt.Errorf("catalog: seed category %s: %w", name, err)
		}
		for _, sp := range sc.Permissions {
			code := strings.TrimSpace(sp.Code)
			if code == "" {
				return fmt.Errorf("catalog: seed permission in %s missing code", name)
			}
			err := s.repo.UpsertPermission(ctx, Permission{
				Code:        code,
				Name:        sp.Name,
				Description: sp.Description,
				CategoryID:  cat.ID,
			})
			if err != nil {
				return fmt.Errorf("catalog: seed permission %s: %w", code, err)
			}
			for role, granted := range sp.Defaults {
				if err := s.repo.UpsertRoleDefault(ctx, role, code, granted); err != nil {
					return fmt.Errorf("catalog: seed default %s/%s: %w", role, code, err)
				}
			}
		}
	}
	return nil
}

// Delete removes a permission. Refuses while role defaults or overrides
// still reference it.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if _, err := s.repo.GetPermission(ctx, code); err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, code)
	if err != nil {
		return fmt.Errorf("catalog: count references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: %s has %d references", ErrInUse, code, refs)
	}
	return s.repo.DeletePermission(ctx, code)
}
