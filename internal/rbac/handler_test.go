package rbac

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sis/meridian-sis/internal/shared"
)

func newTestRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r, Middleware{Service: svc})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target, body string, actor *shared.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestToggleEndpoint(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	svc := newTestService(repo, dir, &stubRecorder{})
	router := newTestRouter(svc)
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/grades.submit/toggle", `{"granted":true}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"source":"override"`) {
		t.Fatalf("response must carry the override source: %s", rec.Body.String())
	}
}

func TestToggleUnknownCodeMapsTo404(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7}}}
	router := newTestRouter(newTestService(repo, dir, &stubRecorder{}))
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/nope/toggle", `{"granted":true}`, admin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestToggleConflictMapsTo409(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog(), upsertErr: ErrConflict}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7}}}
	router := newTestRouter(newTestService(repo, dir, &stubRecorder{}))
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/grades.submit/toggle", `{"granted":false}`, admin)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestToggleEscalationMapsTo403(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	dir := stubDirectory{users: map[int64]DirectoryUser{
		2: {ID: 2, Role: shared.RoleRegistrar},
		7: {ID: 7, Role: shared.RoleProfessor},
	}}
	router := newTestRouter(newTestService(repo, dir, &stubRecorder{}))
	// Holds the edit permission through an override, but not grades.submit.
	repo.overrides = map[int64]map[string]Override{
		2: {shared.PermPermissionsEdit: {UserID: 2, PermissionCode: shared.PermPermissionsEdit, Granted: true}},
	}
	repo.catalog = append(repo.catalog, CatalogEntry{Code: shared.PermPermissionsEdit, Name: "Manage Permissions", Category: "Access Control", CategoryOrdering: 2})
	registrar := &shared.Actor{ID: 2, Role: string(shared.RoleRegistrar)}

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/grades.submit/toggle", `{"granted":true}`, registrar)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGuardRejectsAnonymous(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	router := newTestRouter(newTestService(repo, stubDirectory{}, &stubRecorder{}))

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/grades.submit/toggle", `{"granted":true}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestClearOverrideEndpoint(t *testing.T) {
	repo := &stubRepo{
		catalog: gradesCatalog(),
		defaults: map[string]map[string]bool{
			string(shared.RoleProfessor): {"grades.submit": true},
		},
		overrides: map[int64]map[string]Override{
			7: {"grades.submit": {UserID: 7, PermissionCode: "grades.submit", Granted: false}},
		},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	router := newTestRouter(newTestService(repo, dir, &stubRecorder{}))
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	rec := doJSON(t, router, http.MethodDelete, "/users/7/permissions/grades.submit/override", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"source":"role_default"`) {
		t.Fatalf("cleared entry must resolve from role_default: %s", rec.Body.String())
	}
}

func TestBulkEndpointValidatesBody(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7}}}
	router := newTestRouter(newTestService(repo, dir, &stubRecorder{}))
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	rec := doJSON(t, router, http.MethodPost, "/users/7/permissions/bulk", `[]`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty bulk must fail validation, got %d", rec.Code)
	}

	var oversized strings.Builder
	oversized.WriteString(`[`)
	for i := 0; i < 101; i++ {
		if i > 0 {
			oversized.WriteString(",")
		}
		oversized.WriteString(`{"code":"grades.submit","granted":true}`)
	}
	oversized.WriteString(`]`)
	rec = doJSON(t, router, http.MethodPost, "/users/7/permissions/bulk", oversized.String(), admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized bulk must fail validation, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/users/7/permissions/bulk",
		`[{"code":"grades.submit","granted":true},{"code":"missing","granted":true}]`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("array body must apply, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"ok":true`) || !strings.Contains(body, `"ok":false`) {
		t.Fatalf("expected mixed outcomes in %s", body)
	}
}
