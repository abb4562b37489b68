package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, input CreateInput, role shared.Role) (User, error)
	Update(ctx context.Context, user User) (User, error)
}

// Recorder appends audit events without failing the calling mutation.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Service handles account business logic.
type Service struct {
	repo     RepositoryPort
	recorder Recorder
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, recorder Recorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new account and records USER_CREATED.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, input CreateInput) (User, error) {
	role, err := shared.ParseRole(input.Role)
	if err != nil {
		return User{}, err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)

	user, err := s.repo.Create(ctx, input, role)
	if err != nil {
		return User{}, err
	}

	s.record(ctx, actor, audit.ActionUserCreated, user.ID, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	return user, nil
}

// Update applies the given changes and records USER_UPDATED with a field
// level diff. A request that changes nothing writes no event.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, id int64, input UpdateInput) (User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	changes := map[string]any{}
	next := current
	if input.Name != nil && strings.TrimSpace(*input.Name) != current.Name {
		name := strings.TrimSpace(*input.Name)
		changes["name"] = map[string]any{"old": current.Name, "new": name}
		next.Name = name
	}
	if input.Role != nil {
		role, err := shared.ParseRole(*input.Role)
		if err != nil {
			return User{}, err
		}
		if role != current.Role {
			changes["role"] = map[string]any{"old": string(current.Role), "new": string(role)}
			next.Role = role
		}
	}
	if input.IsActive != nil && *input.IsActive != current.IsActive {
		changes["is_active"] = map[string]any{"old": current.IsActive, "new": *input.IsActive}
		next.IsActive = *input.IsActive
	}
	if len(changes) == 0 {
		return current, nil
	}

	stored, err := s.repo.Update(ctx, next)
	if err != nil {
		return User{}, fmt.Errorf("users: update %d: %w", id, err)
	}
	s.record(ctx, actor, audit.ActionUserUpdated, id, map[string]any{"changes": changes})
	return stored, nil
}

func (s *Service) record(ctx context.Context, actor *shared.Actor, action string, targetID int64, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	target := strconv.FormatInt(targetID, 10)
	event := audit.Event{
		Action:      action,
		TargetModel: "User",
		TargetID:    &target,
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
