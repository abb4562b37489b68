package shared

import (
	"errors"
	"fmt"
)

// ErrUnknownRole marks a role token outside the known set.
var ErrUnknownRole = errors.New("unknown role")

// Role is an institutional role. Role defaults are keyed by it.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRegistrar Role = "REGISTRAR"
	RoleProfessor Role = "PROFESSOR"
	RoleCashier   Role = "CASHIER"
	RoleStudent   Role = "STUDENT"
)

// Roles lists every institutional role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleRegistrar, RoleProfessor, RoleCashier, RoleStudent}
}

// ParseRole validates a raw role token.
func ParseRole(raw string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == raw {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownRole, raw)
}
