package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditGapScan is the task type for the audit sequence gap scan.
	TaskAuditGapScan = "audit:gap_scan"
)

// NewAuditGapScanTask constructs the periodic gap scan task. The scan
// carries no payload; its state lives in the checkpoint row.
func NewAuditGapScanTask() *asynq.Task {
	return asynq.NewTask(TaskAuditGapScan, nil)
}
