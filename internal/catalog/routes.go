package catalog

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/rbac"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// MountRoutes registers the catalog endpoints.
func (h *Handler) MountRoutes(r chi.Router, mw rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(shared.PermPermissionsView))
		r.Get("/permissions/categories", h.Matrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAll(shared.PermPermissionsEdit))
		r.Delete("/permissions/{code}", h.Delete)
	})
}
