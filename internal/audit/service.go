package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-sis/meridian-sis/internal/audit/interpret"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// Unfiltered scans over an unbounded log are capped by date range.
	maxDateRange = 90 * 24 * time.Hour
)

// ErrValidation indicates a malformed filter value.
var ErrValidation = errors.New("audit: invalid filter")

// EventDetail pairs a stored event with its interpreted output.
type EventDetail struct {
	Event       Event              `json:"event"`
	Interpreted interpret.Rendered `json:"interpreted"`
}

// Service coordinates audit log reads and the interpreter.
type Service struct {
	repo Repository
}

// NewService constructs an audit Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append writes one event synchronously and returns it with the assigned id
// and timestamp. External collaborators use this as their side-effect hook.
func (s *Service) Append(ctx context.Context, event Event) (Event, error) {
	if strings.TrimSpace(event.Action) == "" || strings.TrimSpace(event.TargetModel) == "" {
		return Event{}, fmt.Errorf("%w: action and target_model are required", ErrValidation)
	}
	id, at, err := s.repo.Insert(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("audit: append: %w", err)
	}
	event.ID = id
	event.OccurredAt = at
	return event, nil
}

// Query returns one page of matching events, newest first. Count always
// reflects the full matching set. An empty result is a valid response, not
// an error.
func (s *Service) Query(ctx context.Context, filters Filters) (Page, error) {
	if err := validateFilters(filters); err != nil {
		return Page{}, err
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	events, total, err := s.repo.Query(ctx, filters, pageSize, offset)
	if err != nil {
		return Page{}, fmt.Errorf("audit: query: %w", err)
	}
	if events == nil {
		events = []Event{}
	}

	paging := shared.NewPagination(page, pageSize, total)
	return Page{
		Results:     events,
		Count:       total,
		Page:        page,
		PageSize:    pageSize,
		HasNext:     paging.HasNext,
		HasPrevious: paging.HasPrevious,
	}, nil
}

// Get loads one event with its interpreted sentence and diff.
func (s *Service) Get(ctx context.Context, id int64) (EventDetail, error) {
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}
	return EventDetail{
		Event:       event,
		Interpreted: interpret.Render(event.Action, event.TargetModel, event.Payload),
	}, nil
}

// FilterMetadata returns the distinct actions and target models present in
// the log right now, for populating filter controls.
func (s *Service) FilterMetadata(ctx context.Context) (FilterMetadata, error) {
	actions, err := s.repo.DistinctActions(ctx)
	if err != nil {
		return FilterMetadata{}, fmt.Errorf("audit: distinct actions: %w", err)
	}
	models, err := s.repo.DistinctTargetModels(ctx)
	if err != nil {
		return FilterMetadata{}, fmt.Errorf("audit: distinct target models: %w", err)
	}

	options := make([]ActionOption, 0, len(actions))
	for _, a := range actions {
		options = append(options, ActionOption{Value: a, Label: interpret.Humanize(strings.ToLower(a))})
	}
	if models == nil {
		models = []string{}
	}
	return FilterMetadata{Actions: options, TargetModels: models}, nil
}

func validateFilters(filters Filters) error {
	from, to := filters.DateFrom, filters.DateTo
	if !from.IsZero() && !to.IsZero() {
		if from.After(to) {
			return fmt.Errorf("%w: date_from after date_to", ErrValidation)
		}
		if to.Sub(from) > maxDateRange {
			return fmt.Errorf("%w: date range exceeds 90 days", ErrValidation)
		}
	}
	return nil
}
