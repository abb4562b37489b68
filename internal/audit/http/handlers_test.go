package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

type stubLogService struct {
	page     audit.Page
	detail   audit.EventDetail
	err      error
	lastFilt audit.Filters
}

func (s *stubLogService) Query(ctx context.Context, filters audit.Filters) (audit.Page, error) {
	s.lastFilt = filters
	return s.page, s.err
}

func (s *stubLogService) Get(ctx context.Context, id int64) (audit.EventDetail, error) {
	if s.err != nil {
		return audit.EventDetail{}, s.err
	}
	return s.detail, nil
}

func (s *stubLogService) FilterMetadata(ctx context.Context) (audit.FilterMetadata, error) {
	return audit.FilterMetadata{}, s.err
}

type stubChecker struct {
	set map[string]bool
}

func (s stubChecker) EffectiveSet(ctx context.Context, userID int64) (map[string]bool, error) {
	return s.set, nil
}

func newAuditRouter(service LogService, checker PermissionChecker) chi.Router {
	r := chi.NewRouter()
	NewHandler(nil, service, checker).MountRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, target string, actor *shared.Actor) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRequiresActor(t *testing.T) {
	router := newAuditRouter(&stubLogService{}, stubChecker{})
	rec := doRequest(t, router, "/audit/logs", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListRequiresAuditView(t *testing.T) {
	router := newAuditRouter(&stubLogService{}, stubChecker{set: map[string]bool{}})
	rec := doRequest(t, router, "/audit/logs", &shared.Actor{ID: 2})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSuperuserBypassesPermissionCheck(t *testing.T) {
	router := newAuditRouter(&stubLogService{}, stubChecker{set: map[string]bool{}})
	rec := doRequest(t, router, "/audit/logs", &shared.Actor{ID: 1, IsSuperuser: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListParsesFilters(t *testing.T) {
	service := &stubLogService{}
	router := newAuditRouter(service, stubChecker{set: map[string]bool{shared.PermAuditView: true}})

	rec := doRequest(t, router,
		"/audit/logs?action=PERMISSION_UPDATED&target_model=User&search=reyes&date_from=2026-08-01&date_to=2026-08-15&page=2",
		&shared.Actor{ID: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	f := service.lastFilt
	if f.Action != "PERMISSION_UPDATED" || f.TargetModel != "User" || f.Search != "reyes" || f.Page != 2 {
		t.Fatalf("unexpected filters %+v", f)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !f.DateFrom.Equal(want) {
		t.Fatalf("date_from = %v", f.DateFrom)
	}
}

func TestListRejectsMalformedDate(t *testing.T) {
	router := newAuditRouter(&stubLogService{}, stubChecker{set: map[string]bool{shared.PermAuditView: true}})
	rec := doRequest(t, router, "/audit/logs?date_from=08-01-2026", &shared.Actor{ID: 2})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	router := newAuditRouter(&stubLogService{err: audit.ErrNotFound}, stubChecker{set: map[string]bool{shared.PermAuditView: true}})
	rec := doRequest(t, router, "/audit/logs/999", &shared.Actor{ID: 2})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRejectsNonNumericID(t *testing.T) {
	router := newAuditRouter(&stubLogService{}, stubChecker{set: map[string]bool{shared.PermAuditView: true}})
	rec := doRequest(t, router, "/audit/logs/abc", &shared.Actor{ID: 2})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
