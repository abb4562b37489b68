package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// Handler exposes the resolution engine over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// GetEffectivePermissions handles GET /users/{id}/permissions.
func (h *Handler) GetEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", httpx.ErrValidation))
		return
	}
	grouped, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, "effective permissions", err)
		return
	}
	if grouped == nil {
		grouped = []CategoryPermissions{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": grouped})
}

// Toggle handles POST /users/{id}/permissions/{code}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", httpx.ErrValidation))
		return
	}
	code := chi.URLParam(r, "code")

	var req ToggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.Toggle(r.Context(), actor, userID, code, req.Granted)
	if err != nil {
		h.respondError(w, "toggle permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// ClearOverride handles DELETE /users/{id}/permissions/{code}/override.
func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", httpx.ErrValidation))
		return
	}
	code := chi.URLParam(r, "code")

	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.ClearOverride(r.Context(), actor, userID, code)
	if err != nil {
		h.respondError(w, "clear override", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// BulkUpdate handles POST /users/{id}/permissions/bulk.
func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", httpx.ErrValidation))
		return
	}

	var entries []BulkEntry
	if err := httpx.DecodeJSON(r, &entries); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	if len(entries) == 0 || len(entries) > maxBulkEntries {
		httpx.RespondError(w, fmt.Errorf("%w: between 1 and %d entries per request", httpx.ErrValidation, maxBulkEntries))
		return
	}
	for _, e := range entries {
		if err := h.validate.Struct(e); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
			return
		}
	}

	actor := shared.ActorFromContext(r.Context())
	results := h.service.BulkUpdate(r.Context(), actor, userID, entries)
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

// SetRoleDefault handles PUT /permissions/roles/{role}/{code}.
func (h *Handler) SetRoleDefault(w http.ResponseWriter, r *http.Request) {
	role, err := shared.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	code := chi.URLParam(r, "code")

	var req RoleDefaultRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	actor := shared.ActorFromContext(r.Context())
	if err := h.service.SetRoleDefault(r.Context(), actor, role, code, req.Granted); err != nil {
		h.respondError(w, "set role default", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrForbidden, err))
	case errors.Is(err, ErrConflict):
		httpx.RespondError(w, fmt.Errorf("%w: retry with fresh state", httpx.ErrConflict))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
