package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. Guards resolve
// the actor's effective set through the engine, so overrides apply here too.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current actor holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(normalized, hasAnyPermission)
}

// RequireAll ensures the current actor holds all of the permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(normalized, hasAllPermissions)
}

func (m Middleware) guard(required []string, check func(map[string]bool, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if actor.IsSuperuser {
				next.ServeHTTP(w, r)
				return
			}
			set, err := m.Service.EffectiveSet(r.Context(), actor.ID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac guard", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if check(set, required) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted map[string]bool, required []string) bool {
	for _, r := range required {
		if granted[r] {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted map[string]bool, required []string) bool {
	for _, r := range required {
		if !granted[r] {
			return false
		}
	}
	return true
}
