package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/platform/httpx"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

const dateLayout = "2006-01-02"

// LogService defines the business contract for log reads.
type LogService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Page, error)
	Get(ctx context.Context, id int64) (audit.EventDetail, error)
	FilterMetadata(ctx context.Context) (audit.FilterMetadata, error)
}

// PermissionChecker resolves effective permissions for the current user.
type PermissionChecker interface {
	EffectiveSet(ctx context.Context, userID int64) (map[string]bool, error)
}

// Handler serves the audit log read endpoints.
type Handler struct {
	logger  *slog.Logger
	service LogService
	perms   PermissionChecker
}

// NewHandler constructs an audit log handler.
func NewHandler(logger *slog.Logger, service LogService, perms PermissionChecker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, perms: perms}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.respondError(w, "query audit log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid event id", httpx.ErrValidation))
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "load audit event", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	meta, err := h.service.FilterMetadata(r.Context())
	if err != nil {
		h.respondError(w, "load filter metadata", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meta)
}

func (h *Handler) authorize(ctx context.Context) error {
	actor := shared.ActorFromContext(ctx)
	if actor == nil {
		return httpx.ErrUnauthorized
	}
	if actor.IsSuperuser {
		return nil
	}
	set, err := h.perms.EffectiveSet(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if !set[shared.PermAuditView] {
		return fmt.Errorf("%w: %s required", httpx.ErrForbidden, shared.PermAuditView)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, audit.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, audit.ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Action:      strings.TrimSpace(q.Get("action")),
		TargetModel: strings.TrimSpace(q.Get("target_model")),
		Search:      strings.TrimSpace(q.Get("search")),
	}

	if raw := strings.TrimSpace(q.Get("date_from")); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("date_from: want YYYY-MM-DD")
		}
		filters.DateFrom = from
	}
	if raw := strings.TrimSpace(q.Get("date_to")); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("date_to: want YYYY-MM-DD")
		}
		filters.DateTo = to
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return audit.Filters{}, fmt.Errorf("page: want a positive integer")
		}
		filters.Page = page
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return audit.Filters{}, fmt.Errorf("page_size: want a positive integer")
		}
		filters.PageSize = size
	}
	return filters, nil
}
