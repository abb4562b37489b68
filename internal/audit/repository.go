package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested event does not exist.
var ErrNotFound = errors.New("audit: not found")

// Repository provides access to the append-only event log.
type Repository interface {
	Insert(ctx context.Context, event Event) (int64, time.Time, error)
	Get(ctx context.Context, id int64) (Event, error)
	Query(ctx context.Context, filters Filters, limit, offset int) ([]Event, int, error)
	DistinctActions(ctx context.Context) ([]string, error)
	DistinctTargetModels(ctx context.Context) ([]string, error)
	LatestID(ctx context.Context) (int64, error)
	// CountInRange counts events with ids in [fromID, toID], both inclusive.
	CountInRange(ctx context.Context, fromID, toID int64) (int64, error)
	GapCheckpoint(ctx context.Context) (lastSeen int64, err error)
	SaveGapCheckpoint(ctx context.Context, lastSeen, gaps int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed event log repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Insert appends one event atomically. No partial event is ever visible.
func (r *repository) Insert(ctx context.Context, event Event) (int64, time.Time, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("audit: marshal payload: %w", err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	var id int64
	var at time.Time
	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_events (occurred_at, actor_id, actor_name, actor_email, action, target_model, target_id, ip_address, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, occurred_at`,
		occurredAt.UTC(), event.ActorID, event.ActorName, event.ActorEmail,
		event.Action, event.TargetModel, event.TargetID, event.IPAddress, payload).
		Scan(&id, &at)
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, at.UTC(), nil
}

func (r *repository) Get(ctx context.Context, id int64) (Event, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, occurred_at, actor_id, actor_name, actor_email, action, target_model, target_id, ip_address, payload
		FROM audit_events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	return event, nil
}

func (r *repository) Query(ctx context.Context, filters Filters, limit, offset int) ([]Event, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filters.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argPos))
		args = append(args, filters.Action)
		argPos++
	}
	if filters.TargetModel != "" {
		conditions = append(conditions, fmt.Sprintf("target_model = $%d", argPos))
		args = append(args, filters.TargetModel)
		argPos++
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(actor_name ILIKE $%d OR actor_email ILIKE $%d OR target_model ILIKE $%d OR COALESCE(target_id, '') ILIKE $%d)",
			argPos, argPos, argPos, argPos))
		args = append(args, pattern)
		argPos++
	}
	if !filters.DateFrom.IsZero() {
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", argPos))
		args = append(args, filters.DateFrom)
		argPos++
	}
	if !filters.DateTo.IsZero() {
		// Inclusive at date granularity: everything before the next midnight.
		conditions = append(conditions, fmt.Sprintf("occurred_at < $%d", argPos))
		args = append(args, filters.DateTo.AddDate(0, 0, 1))
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, occurred_at, actor_id, actor_name, actor_email, action, target_model, target_id, ip_address, payload
		FROM audit_events
		%s
		ORDER BY occurred_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

func (r *repository) DistinctActions(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT action FROM audit_events ORDER BY action`)
}

func (r *repository) DistinctTargetModels(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT target_model FROM audit_events ORDER BY target_model`)
}

func (r *repository) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (r *repository) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM audit_events`).Scan(&id)
	return id, err
}

// CountInRange counts events with ids in [fromID, toID], both inclusive.
func (r *repository) CountInRange(ctx context.Context, fromID, toID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE id >= $1 AND id <= $2`, fromID, toID).
		Scan(&count)
	return count, err
}

func (r *repository) GapCheckpoint(ctx context.Context) (int64, error) {
	var lastSeen int64
	err := r.pool.QueryRow(ctx, `SELECT last_seen_id FROM audit_gap_checkpoints WHERE id = 1`).Scan(&lastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return lastSeen, nil
}

func (r *repository) SaveGapCheckpoint(ctx context.Context, lastSeen, gaps int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_gap_checkpoints (id, last_seen_id, gaps_total, scanned_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_seen_id = EXCLUDED.last_seen_id,
			gaps_total = audit_gap_checkpoints.gaps_total + EXCLUDED.gaps_total,
			scanned_at = NOW()`, lastSeen, gaps)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var event Event
	var payload []byte
	err := row.Scan(&event.ID, &event.OccurredAt, &event.ActorID, &event.ActorName,
		&event.ActorEmail, &event.Action, &event.TargetModel, &event.TargetID,
		&event.IPAddress, &payload)
	if err != nil {
		return Event{}, err
	}
	event.OccurredAt = event.OccurredAt.UTC()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return Event{}, fmt.Errorf("audit: unmarshal payload: %w", err)
		}
	}
	return event, nil
}
