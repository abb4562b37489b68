package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// FailureCounter receives write failures so audit-trail gaps stay
// operator-detectable.
type FailureCounter interface {
	AuditWriteFailed()
}

// Recorder is the side-channel writer used by mutation paths. A failed
// write never rolls back or fails the mutation that triggered it; it is
// logged and counted instead.
type Recorder struct {
	repo    Repository
	logger  *slog.Logger
	metrics FailureCounter
}

// NewRecorder constructs a Recorder.
func NewRecorder(repo Repository, logger *slog.Logger, metrics FailureCounter) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, metrics: metrics}
}

// Record appends the event, swallowing failures after surfacing them to the
// operational log and the failure counter.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.repo == nil {
		return
	}
	if err := r.append(ctx, event); err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", event.Action),
			slog.String("target_model", event.TargetModel),
			slog.Any("error", err))
		if r.metrics != nil {
			r.metrics.AuditWriteFailed()
		}
	}
}

func (r *Recorder) append(ctx context.Context, event Event) error {
	if event.Action == "" || event.TargetModel == "" {
		return errors.New("audit: event requires action and target_model")
	}
	// The mutation may already have committed; give the append its own
	// short deadline so a cancelled request context cannot drop it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, _, err := r.repo.Insert(ctx, event)
	return err
}
