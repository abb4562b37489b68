package rbac

import (
	"context"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Source tells where an effective grant came from.
type Source string

const (
	// SourceRoleDefault means the grant fell through to the role baseline.
	SourceRoleDefault Source = "role_default"
	// SourceOverride means a per-user override decided the grant.
	SourceOverride Source = "override"
)

// Override is a per-user exception that supersedes the role default for one
// permission. Presence wins regardless of the boolean: an override of false
// is a hard deny even when the role default grants.
type Override struct {
	UserID         int64     `json:"user_id"`
	PermissionCode string    `json:"permission_code"`
	Granted        bool      `json:"granted"`
	SetBy          int64     `json:"set_by"`
	SetAt          time.Time `json:"set_at"`
}

// EffectivePermission is one resolved catalog entry for a user. The full
// catalog is always returned, granted or not, so callers can render both
// states.
type EffectivePermission struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	HasPermission bool   `json:"has_permission"`
	Source        Source `json:"source"`
}

// CategoryPermissions groups effective permissions under their category.
type CategoryPermissions struct {
	Category    string                `json:"category"`
	Ordering    int                   `json:"ordering"`
	Permissions []EffectivePermission `json:"permissions"`
}

// CatalogEntry is a permission joined with its category, as the engine
// reads it from storage.
type CatalogEntry struct {
	Code             string
	Name             string
	Description      string
	Category         string
	CategoryOrdering int
}

// BulkEntry is one requested toggle inside a bulk update.
type BulkEntry struct {
	Code    string `json:"code" validate:"required,max=100"`
	Granted bool   `json:"granted"`
}

// BulkResult reports the outcome of one bulk entry. Entries are applied
// independently; one failure never rolls back the others.
type BulkResult struct {
	Code  string               `json:"code"`
	OK    bool                 `json:"ok"`
	Error string               `json:"error,omitempty"`
	Entry *EffectivePermission `json:"entry,omitempty"`
}

// DirectoryUser is the slice of the user directory the engine needs.
type DirectoryUser struct {
	ID          int64
	Name        string
	Email       string
	Role        shared.Role
	IsSuperuser bool
	IsActive    bool
}

// Directory resolves users for the engine without binding it to the users
// package.
type Directory interface {
	Lookup(ctx context.Context, id int64) (DirectoryUser, error)
}
