package users

import (
	"time"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// User represents a staff or student account managed by the console.
type User struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        shared.Role `json:"role"`
	IsSuperuser bool        `json:"is_superuser"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Name  string `json:"name" validate:"required,max=255"`
	Role  string `json:"role" validate:"required"`
}

// UpdateInput carries the mutable fields of an account. Nil means leave
// the field untouched.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}
