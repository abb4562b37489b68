package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
)

// Handler exposes the permission catalog over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Matrix handles GET /permissions/categories.
func (h *Handler) Matrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.service.Matrix(r.Context())
	if err != nil {
		h.logger.Error("catalog matrix", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if matrix == nil {
		matrix = []MatrixCategory{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": matrix})
}

// Delete handles DELETE /permissions/{code}. Refused while the permission
// is still referenced.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.Delete(r.Context(), code); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.RespondError(w, fmt.Errorf("%w: unknown permission %q", httpx.ErrNotFound, code))
		case errors.Is(err, ErrInUse):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
		default:
			h.logger.Error("delete permission", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.NoContent(w)
}
