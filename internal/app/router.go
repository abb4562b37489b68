package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/meridian-sis/meridian-sis/internal/audit/http"
	"github.com/meridian-sis/meridian-sis/internal/catalog"
	"github.com/meridian-sis/meridian-sis/internal/observability"
	"github.com/meridian-sis/meridian-sis/internal/rbac"
	"github.com/meridian-sis/meridian-sis/internal/shared"
	"github.com/meridian-sis/meridian-sis/internal/users"
	"github.com/meridian-sis/meridian-sis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Directory      rbac.Directory
	CatalogHandler *catalog.Handler
	RBACHandler    *rbac.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audithttp.Handler
	JobsHandler    *jobs.Handler
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Directory:      params.Directory,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r, params.RBACMiddleware)
	}
	if params.RBACHandler != nil {
		params.RBACHandler.MountRoutes(r, params.RBACMiddleware)
	}
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	return r
}
