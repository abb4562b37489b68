package users

import (
	"context"
	"errors"

	"github.com/meridian-sis/meridian-sis/internal/rbac"
)

// DirectoryAdapter exposes the user store to the permission engine.
type DirectoryAdapter struct {
	repo RepositoryPort
}

// NewDirectoryAdapter wraps a repository as a directory.
func NewDirectoryAdapter(repo RepositoryPort) DirectoryAdapter {
	return DirectoryAdapter{repo: repo}
}

// Lookup implements rbac.Directory.
func (d DirectoryAdapter) Lookup(ctx context.Context, id int64) (rbac.DirectoryUser, error) {
	user, err := d.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.DirectoryUser{}, rbac.ErrNotFound
		}
		return rbac.DirectoryUser{}, err
	}
	return rbac.DirectoryUser{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		IsSuperuser: user.IsSuperuser,
		IsActive:    user.IsActive,
	}, nil
}
