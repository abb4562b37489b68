package rbac

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// MountRoutes registers the permission resolution endpoints.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(shared.PermPermissionsView, shared.PermUsersView))
		r.Get("/users/{id}/permissions", h.GetEffectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(shared.PermPermissionsEdit))
		r.Post("/users/{id}/permissions/{code}/toggle", h.Toggle)
		r.Delete("/users/{id}/permissions/{code}/override", h.ClearOverride)
		r.Post("/users/{id}/permissions/bulk", h.BulkUpdate)
		r.Put("/permissions/roles/{role}/{code}", h.SetRoleDefault)
	})
}
