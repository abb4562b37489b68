package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

type stubRepo struct {
	catalog   []CatalogEntry
	defaults  map[string]map[string]bool // role -> code -> granted
	overrides map[int64]map[string]Override

	upsertErr    error
	lastUpsert   *Override
	lastExpected *bool
	deleted      []string
}

func (s *stubRepo) ListCatalog(ctx context.Context) ([]CatalogEntry, error) {
	return s.catalog, nil
}

func (s *stubRepo) GetCatalogEntry(ctx context.Context, code string) (*CatalogEntry, error) {
	for _, e := range s.catalog {
		if e.Code == code {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) RoleDefaults(ctx context.Context, role string) (map[string]bool, error) {
	return s.defaults[role], nil
}

func (s *stubRepo) RoleDefault(ctx context.Context, role, code string) (bool, bool, error) {
	granted, ok := s.defaults[role][code]
	return granted, ok, nil
}

func (s *stubRepo) Overrides(ctx context.Context, userID int64) (map[string]Override, error) {
	return s.overrides[userID], nil
}

func (s *stubRepo) GetOverride(ctx context.Context, userID int64, code string) (*Override, error) {
	if ov, ok := s.overrides[userID][code]; ok {
		return &ov, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertOverride(ctx context.Context, ov Override, expected *bool) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.lastUpsert = &ov
	s.lastExpected = expected
	if s.overrides == nil {
		s.overrides = map[int64]map[string]Override{}
	}
	if s.overrides[ov.UserID] == nil {
		s.overrides[ov.UserID] = map[string]Override{}
	}
	ov.SetAt = time.Now()
	s.overrides[ov.UserID][ov.PermissionCode] = ov
	return nil
}

func (s *stubRepo) DeleteOverride(ctx context.Context, userID int64, code string) (bool, error) {
	if _, ok := s.overrides[userID][code]; !ok {
		return false, nil
	}
	delete(s.overrides[userID], code)
	s.deleted = append(s.deleted, code)
	return true, nil
}

func (s *stubRepo) UpsertRoleDefault(ctx context.Context, role, code string, granted bool) (*bool, error) {
	var old *bool
	if prev, ok := s.defaults[role][code]; ok {
		old = &prev
	}
	if s.defaults == nil {
		s.defaults = map[string]map[string]bool{}
	}
	if s.defaults[role] == nil {
		s.defaults[role] = map[string]bool{}
	}
	s.defaults[role][code] = granted
	return old, nil
}

type stubDirectory struct {
	users map[int64]DirectoryUser
}

func (s stubDirectory) Lookup(ctx context.Context, id int64) (DirectoryUser, error) {
	user, ok := s.users[id]
	if !ok {
		return DirectoryUser{}, ErrNotFound
	}
	return user, nil
}

type stubRecorder struct {
	events []audit.Event
}

func (s *stubRecorder) Record(ctx context.Context, event audit.Event) {
	s.events = append(s.events, event)
}

func newTestService(repo *stubRepo, dir stubDirectory, rec *stubRecorder) *Service {
	return NewService(repo, dir, rec, NewCache(nil, 0), nil)
}

func gradesCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Code: "grades.submit", Name: "Submit Grades", Category: "Enrollment", CategoryOrdering: 4},
		{Code: "payments.record", Name: "Record Payments", Category: "Finance", CategoryOrdering: 5},
	}
}

func boolPtr(b bool) *bool { return &b }

func TestResolvePrecedence(t *testing.T) {
	if granted, source := Resolve(&Override{Granted: false}, boolPtr(true)); granted || source != SourceOverride {
		t.Fatalf("override deny must beat role grant, got granted=%v source=%s", granted, source)
	}
	if granted, source := Resolve(nil, boolPtr(true)); !granted || source != SourceRoleDefault {
		t.Fatalf("role default must apply without override, got granted=%v source=%s", granted, source)
	}
	if granted, _ := Resolve(nil, nil); granted {
		t.Fatalf("absence of both rows must deny")
	}
}

func TestToggleIdempotentReportsOldEqualsNew(t *testing.T) {
	repo := &stubRepo{
		catalog: gradesCatalog(),
		overrides: map[int64]map[string]Override{
			7: {"grades.submit": {UserID: 7, PermissionCode: "grades.submit", Granted: true, SetBy: 1}},
		},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{
		7: {ID: 7, Role: shared.RoleProfessor, IsActive: true},
	}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)
	admin := &shared.Actor{ID: 1, Name: "Admin", IsSuperuser: true}

	entry, err := svc.Toggle(context.Background(), admin, 7, "grades.submit", true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !entry.HasPermission || entry.Source != SourceOverride {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if repo.lastExpected == nil || !*repo.lastExpected {
		t.Fatalf("expected CAS against observed granted=true")
	}
	if len(repo.overrides[7]) != 1 {
		t.Fatalf("repeat toggle must keep a single row")
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	payload := rec.events[0].Payload
	if payload["old_value"] != true || payload["new_value"] != true {
		t.Fatalf("idempotent toggle must report old == new, got %v", payload)
	}
}

func TestToggleUnknownPermission(t *testing.T) {
	svc := newTestService(&stubRepo{catalog: gradesCatalog()}, stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7}}}, &stubRecorder{})
	admin := &shared.Actor{ID: 1, IsSuperuser: true}
	_, err := svc.Toggle(context.Background(), admin, 7, "nope.missing", true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleBlocksSelfEscalation(t *testing.T) {
	repo := &stubRepo{
		catalog:  gradesCatalog(),
		defaults: map[string]map[string]bool{string(shared.RoleRegistrar): {}},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{
		2: {ID: 2, Role: shared.RoleRegistrar, IsActive: true},
		7: {ID: 7, Role: shared.RoleProfessor, IsActive: true},
	}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)
	registrar := &shared.Actor{ID: 2, Role: string(shared.RoleRegistrar)}

	_, err := svc.Toggle(context.Background(), registrar, 7, "payments.record", true)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("blocked mutation must not emit events")
	}

	// Denying never needs the guard.
	if _, err := svc.Toggle(context.Background(), registrar, 7, "payments.record", false); err != nil {
		t.Fatalf("deny toggle: %v", err)
	}
}

func TestToggleConflictPassthrough(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog(), upsertErr: ErrConflict}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)

	_, err := svc.Toggle(context.Background(), &shared.Actor{ID: 1, IsSuperuser: true}, 7, "grades.submit", false)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("lost race must not emit events")
	}
}

func TestClearOverrideRestoresRoleDefault(t *testing.T) {
	repo := &stubRepo{
		catalog: gradesCatalog(),
		defaults: map[string]map[string]bool{
			string(shared.RoleProfessor): {"grades.submit": true},
		},
		overrides: map[int64]map[string]Override{
			7: {"grades.submit": {UserID: 7, PermissionCode: "grades.submit", Granted: false, SetBy: 1}},
		},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{
		7: {ID: 7, Role: shared.RoleProfessor, IsActive: true},
	}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	entry, err := svc.ClearOverride(context.Background(), admin, 7, "grades.submit")
	if err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if !entry.HasPermission || entry.Source != SourceRoleDefault {
		t.Fatalf("expected fallback to granting role default, got %+v", entry)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	payload := rec.events[0].Payload
	if payload["old_value"] != false || payload["new_value"] != true {
		t.Fatalf("unexpected diff payload %v", payload)
	}
	if payload["source"] != string(SourceRoleDefault) {
		t.Fatalf("cleared entry must resolve from role_default")
	}
}

func TestClearOverrideWithoutOverrideIsNoop(t *testing.T) {
	repo := &stubRepo{
		catalog:  gradesCatalog(),
		defaults: map[string]map[string]bool{string(shared.RoleProfessor): {"grades.submit": true}},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)

	entry, err := svc.ClearOverride(context.Background(), &shared.Actor{ID: 1, IsSuperuser: true}, 7, "grades.submit")
	if err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if !entry.HasPermission || entry.Source != SourceRoleDefault {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(rec.events) != 0 {
		t.Fatalf("no-op clear must not emit events")
	}
	if len(repo.deleted) != 0 {
		t.Fatalf("no-op clear must not touch storage")
	}
}

func TestSetRoleDefaultRecordsRoleTarget(t *testing.T) {
	repo := &stubRepo{
		catalog:  gradesCatalog(),
		defaults: map[string]map[string]bool{string(shared.RoleCashier): {"payments.record": false}},
	}
	rec := &stubRecorder{}
	svc := newTestService(repo, stubDirectory{}, rec)

	err := svc.SetRoleDefault(context.Background(), &shared.Actor{ID: 1, IsSuperuser: true}, shared.RoleCashier, "payments.record", true)
	if err != nil {
		t.Fatalf("set role default: %v", err)
	}
	if !repo.defaults[string(shared.RoleCashier)]["payments.record"] {
		t.Fatalf("role default not persisted")
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	event := rec.events[0]
	if event.TargetModel != "Role" || event.TargetID == nil || *event.TargetID != string(shared.RoleCashier) {
		t.Fatalf("unexpected target %+v", event)
	}
	if event.Payload["old_value"] != false || event.Payload["new_value"] != true {
		t.Fatalf("unexpected payload %v", event.Payload)
	}
}

func TestBulkUpdatePartialFailure(t *testing.T) {
	repo := &stubRepo{catalog: gradesCatalog()}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	rec := &stubRecorder{}
	svc := newTestService(repo, dir, rec)
	admin := &shared.Actor{ID: 1, IsSuperuser: true}

	results := svc.BulkUpdate(context.Background(), admin, 7, []BulkEntry{
		{Code: "grades.submit", Granted: true},
		{Code: "does.not.exist", Granted: true},
		{Code: "payments.record", Granted: false},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK || results[1].OK || !results[2].OK {
		t.Fatalf("unexpected outcomes %+v", results)
	}
	if results[1].Error == "" {
		t.Fatalf("failed entry must carry an error message")
	}
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	batch := rec.events[0].Payload["batch_id"]
	if batch == "" || batch == nil {
		t.Fatalf("bulk events must carry a batch id")
	}
	if rec.events[1].Payload["batch_id"] != batch {
		t.Fatalf("events of one bulk call must share the batch id")
	}
}

func TestEffectiveSetResolvesOverrides(t *testing.T) {
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
	svc := newTestService(repo, dir, &stubRecorder{})

	set, err := svc.EffectiveSet(context.Background(), 7)
	if err != nil {
		t.Fatalf("effective set: %v", err)
	}
	if set["grades.submit"] {
		t.Fatalf("override deny must win over granting role default")
	}
	if set["payments.record"] {
		t.Fatalf("unconfigured permission must deny")
	}
}

func TestEffectivePermissionsGroupsByCategory(t *testing.T) {
	repo := &stubRepo{
		catalog: gradesCatalog(),
		defaults: map[string]map[string]bool{
			string(shared.RoleProfessor): {"grades.submit": true},
		},
	}
	dir := stubDirectory{users: map[int64]DirectoryUser{7: {ID: 7, Role: shared.RoleProfessor}}}
	svc := newTestService(repo, dir, &stubRecorder{})

	grouped, err := svc.EffectivePermissions(context.Background(), 7)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	if len(grouped) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(grouped))
	}
	if grouped[0].Category != "Enrollment" || grouped[1].Category != "Finance" {
		t.Fatalf("unexpected grouping %+v", grouped)
	}
	perm := grouped[0].Permissions[0]
	if perm.Code != "grades.submit" || !perm.HasPermission || perm.Source != SourceRoleDefault {
		t.Fatalf("unexpected entry %+v", perm)
	}
	if grouped[1].Permissions[0].HasPermission {
		t.Fatalf("payments.record must deny for professor")
	}
}
