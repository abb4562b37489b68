package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// ErrForbidden indicates the caller may not perform the mutation, including
// self-escalation attempts.
var ErrForbidden = errors.New("rbac: forbidden")

// Recorder receives the audit side effect of every successful mutation.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Service is the resolution engine. It owns the single precedence rule
// (override > role default > deny) so call sites cannot drift.
type Service struct {
	repo     Repository
	dir      Directory
	recorder Recorder
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService constructs the engine.
func NewService(repo Repository, dir Directory, recorder Recorder, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dir: dir, recorder: recorder, cache: cache, logger: logger}
}

// Resolve applies the three-tier precedence for one permission. An override
// row always wins, whatever its boolean; absence of both rows is a deny.
func Resolve(override *Override, roleDefault *bool) (bool, Source) {
	if override != nil {
		return override.Granted, SourceOverride
	}
	if roleDefault != nil {
		return *roleDefault, SourceRoleDefault
	}
	return false, SourceRoleDefault
}

// EffectivePermissions returns the full catalog for a user, grouped by
// category, with granted state and source for every entry.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]CategoryPermissions, error) {
	user, err := s.dir.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list catalog: %w", err)
	}
	defaults, err := s.repo.RoleDefaults(ctx, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("rbac: role defaults: %w", err)
	}
	overrides, err := s.repo.Overrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: overrides: %w", err)
	}

	var grouped []CategoryPermissions
	for _, e := range entries {
		granted, source := s.resolveEntry(e.Code, defaults, overrides)
		perm := EffectivePermission{
			Code:          e.Code,
			Name:          e.Name,
			Description:   e.Description,
			HasPermission: granted,
			Source:        source,
		}
		if len(grouped) == 0 || grouped[len(grouped)-1].Category != e.Category {
			grouped = append(grouped, CategoryPermissions{Category: e.Category, Ordering: e.CategoryOrdering})
		}
		last := &grouped[len(grouped)-1]
		last.Permissions = append(last.Permissions, perm)
	}
	return grouped, nil
}

// EffectiveSet returns the flat code -> granted map for a user, through the
// read-through cache. Route guards and the escalation check consume this.
func (s *Service) EffectiveSet(ctx context.Context, userID int64) (map[string]bool, error) {
	user, err := s.dir.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	role := string(user.Role)
	if set, ok := s.cache.Get(ctx, role, userID); ok {
		return set, nil
	}

	key := role + ":" + strconv.FormatInt(userID, 10)
	result, err, _ := s.group.Do(key, func() (any, error) {
		set, err := s.computeSet(ctx, role, userID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, role, userID, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]bool), nil
}

// Toggle upserts an override for one (user, permission) pair. Idempotent:
// repeating the same desired value leaves one row and reports old == new.
func (s *Service) Toggle(ctx context.Context, actor *shared.Actor, userID int64, code string, granted bool) (EffectivePermission, error) {
	return s.toggle(ctx, actor, userID, code, granted, "")
}

func (s *Service) toggle(ctx context.Context, actor *shared.Actor, userID int64, code string, granted bool, batchID string) (EffectivePermission, error) {
	if actor == nil {
		return EffectivePermission{}, fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	code = strings.TrimSpace(code)
	entry, err := s.repo.GetCatalogEntry(ctx, code)
	if err != nil {
		return EffectivePermission{}, fmt.Errorf("rbac: lookup permission: %w", err)
	}
	if entry == nil {
		return EffectivePermission{}, fmt.Errorf("%w: unknown permission %q", ErrNotFound, code)
	}
	target, err := s.dir.Lookup(ctx, userID)
	if err != nil {
		return EffectivePermission{}, err
	}
	if granted {
		if err := s.ensureGrantAllowed(ctx, actor, code); err != nil {
			return EffectivePermission{}, err
		}
	}

	override, err := s.repo.GetOverride(ctx, userID, code)
	if err != nil {
		return EffectivePermission{}, fmt.Errorf("rbac: current override: %w", err)
	}
	roleDefault, err := s.lookupDefault(ctx, string(target.Role), code)
	if err != nil {
		return EffectivePermission{}, err
	}
	oldValue, oldSource := Resolve(override, roleDefault)

	var expected *bool
	if override != nil {
		expected = &override.Granted
	}
	err = s.repo.UpsertOverride(ctx, Override{
		UserID:         userID,
		PermissionCode: code,
		Granted:        granted,
		SetBy:          actor.ID,
	}, expected)
	if err != nil {
		return EffectivePermission{}, err
	}

	// Invalidate before returning so no caller observes the stale set.
	if err := s.cache.InvalidateUser(ctx, string(target.Role), userID); err != nil {
		s.logger.Warn("invalidate permission cache", slog.Any("error", err))
	}

	payload := map[string]any{
		"permission_code": code,
		"old_value":       oldValue,
		"new_value":       granted,
		"source":          string(SourceOverride),
		"old_source":      string(oldSource),
	}
	if batchID != "" {
		payload["batch_id"] = batchID
	}
	s.record(ctx, actor, audit.ActionPermissionUpdated, "User", strconv.FormatInt(userID, 10), payload)

	return EffectivePermission{
		Code:          entry.Code,
		Name:          entry.Name,
		Description:   entry.Description,
		HasPermission: granted,
		Source:        SourceOverride,
	}, nil
}

// ClearOverride removes the per-user exception so the role default applies
// again. Distinct from toggling to the default's current value: afterwards
// the source is role_default, not override. Clearing when no override
// exists is a no-op and emits no event.
func (s *Service) ClearOverride(ctx context.Context, actor *shared.Actor, userID int64, code string) (EffectivePermission, error) {
	if actor == nil {
		return EffectivePermission{}, fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	code = strings.TrimSpace(code)
	entry, err := s.repo.GetCatalogEntry(ctx, code)
	if err != nil {
		return EffectivePermission{}, fmt.Errorf("rbac: lookup permission: %w", err)
	}
	if entry == nil {
		return EffectivePermission{}, fmt.Errorf("%w: unknown permission %q", ErrNotFound, code)
	}
	target, err := s.dir.Lookup(ctx, userID)
	if err != nil {
		return EffectivePermission{}, err
	}

	override, err := s.repo.GetOverride(ctx, userID, code)
	if err != nil {
		return EffectivePermission{}, fmt.Errorf("rbac: current override: %w", err)
	}
	roleDefault, err := s.lookupDefault(ctx, string(target.Role), code)
	if err != nil {
		return EffectivePermission{}, err
	}
	newValue, _ := Resolve(nil, roleDefault)

	result := EffectivePermission{
		Code:          entry.Code,
		Name:          entry.Name,
		Description:   entry.Description,
		HasPermission: newValue,
		Source:        SourceRoleDefault,
	}
	if override == nil {
		return result, nil
	}
	// Falling back to a granting default is still a grant.
	if newValue && !override.Granted {
		if err := s.ensureGrantAllowed(ctx, actor, code); err != nil {
			return EffectivePermission{}, err
		}
	}

	existed, err := s.repo.DeleteOverride(ctx, userID, code)
	if err != nil {
		return EffectivePermission{}, fmt.Errorf("rbac: delete override: %w", err)
	}
	if err := s.cache.InvalidateUser(ctx, string(target.Role), userID); err != nil {
		s.logger.Warn("invalidate permission cache", slog.Any("error", err))
	}
	if existed {
		s.record(ctx, actor, audit.ActionPermissionUpdated, "User", strconv.FormatInt(userID, 10), map[string]any{
			"permission_code": code,
			"old_value":       override.Granted,
			"new_value":       newValue,
			"source":          string(SourceRoleDefault),
			"old_source":      string(SourceOverride),
		})
	}
	return result, nil
}

// SetRoleDefault changes the baseline for every user of the role who has no
// override. It never creates override rows retroactively.
func (s *Service) SetRoleDefault(ctx context.Context, actor *shared.Actor, role shared.Role, code string, granted bool) error {
	if actor == nil {
		return fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	code = strings.TrimSpace(code)
	entry, err := s.repo.GetCatalogEntry(ctx, code)
	if err != nil {
		return fmt.Errorf("rbac: lookup permission: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("%w: unknown permission %q", ErrNotFound, code)
	}

	old, err := s.repo.UpsertRoleDefault(ctx, string(role), code, granted)
	if err != nil {
		return fmt.Errorf("rbac: upsert role default: %w", err)
	}
	if err := s.cache.InvalidateRole(ctx, string(role)); err != nil {
		s.logger.Warn("invalidate role cache", slog.Any("error", err))
	}

	oldValue := false
	if old != nil {
		oldValue = *old
	}
	s.record(ctx, actor, audit.ActionPermissionUpdated, "Role", string(role), map[string]any{
		"permission_code": code,
		"old_value":       oldValue,
		"new_value":       granted,
		"source":          string(SourceRoleDefault),
		"role":            string(role),
	})
	return nil
}

// BulkUpdate applies entries sequentially so the escalation check at each
// step sees current state. Entries do not share a transaction: a failed
// entry never rolls back the ones already applied.
func (s *Service) BulkUpdate(ctx context.Context, actor *shared.Actor, userID int64, entries []BulkEntry) []BulkResult {
	batchID := uuid.NewString()
	results := make([]BulkResult, 0, len(entries))
	for _, e := range entries {
		entry, err := s.toggle(ctx, actor, userID, e.Code, e.Granted, batchID)
		if err != nil {
			results = append(results, BulkResult{Code: e.Code, OK: false, Error: err.Error()})
			continue
		}
		applied := entry
		results = append(results, BulkResult{Code: e.Code, OK: true, Entry: &applied})
	}
	return results
}

// ensureGrantAllowed blocks privilege escalation: a non-superuser cannot
// hand out a permission it does not itself effectively hold.
func (s *Service) ensureGrantAllowed(ctx context.Context, actor *shared.Actor, code string) error {
	if actor == nil {
		return fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	if actor.IsSuperuser {
		return nil
	}
	set, err := s.EffectiveSet(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("rbac: actor effective set: %w", err)
	}
	if !set[code] {
		return fmt.Errorf("%w: cannot grant %q without holding it", ErrForbidden, code)
	}
	return nil
}

func (s *Service) computeSet(ctx context.Context, role string, userID int64) (map[string]bool, error) {
	entries, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list catalog: %w", err)
	}
	defaults, err := s.repo.RoleDefaults(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("rbac: role defaults: %w", err)
	}
	overrides, err := s.repo.Overrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: overrides: %w", err)
	}
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		granted, _ := s.resolveEntry(e.Code, defaults, overrides)
		set[e.Code] = granted
	}
	return set, nil
}

func (s *Service) resolveEntry(code string, defaults map[string]bool, overrides map[string]Override) (bool, Source) {
	var override *Override
	if ov, ok := overrides[code]; ok {
		override = &ov
	}
	var roleDefault *bool
	if def, ok := defaults[code]; ok {
		roleDefault = &def
	}
	return Resolve(override, roleDefault)
}

func (s *Service) lookupDefault(ctx context.Context, role, code string) (*bool, error) {
	granted, exists, err := s.repo.RoleDefault(ctx, role, code)
	if err != nil {
		return nil, fmt.Errorf("rbac: role default: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return &granted, nil
}

func (s *Service) record(ctx context.Context, actor *shared.Actor, action, targetModel, targetID string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	event := audit.Event{
		Action:      action,
		TargetModel: targetModel,
		TargetID:    &targetID,
		Payload:     payload,
	}
	if actor != nil {
		actorID := actor.ID
		event.ActorID = &actorID
		event.ActorName = actor.Name
		event.ActorEmail = actor.Email
		if actor.IP != "" {
			ip := actor.IP
			event.IPAddress = &ip
		}
	}
	s.recorder.Record(ctx, event)
}
