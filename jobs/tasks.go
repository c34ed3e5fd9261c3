package jobs

import (
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/veeduria/veeduria-api/internal/audit"
	"github.com/veeduria/veeduria-api/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records and retention runs.
	QueueAudit = audit.QueueAudit
	// DefaultPruneSpec runs retention daily at 03:10 UTC.
	DefaultPruneSpec = "10 3 * * *"
)

// Queues returns the worker queue priorities.
func Queues() map[string]int {
	return map[string]int{
		QueueAudit:   5,
		QueueDefault: 1,
	}
}

// AuditStore persists and prunes audit entries.
type AuditStore interface {
	shared.AuditSink
	audit.Pruner
}

// AuditTasks returns the audit handlers and, when retention is positive, the
// retention schedule.
func AuditTasks(store AuditStore, retention time.Duration, pruneSpec string, logger *slog.Logger) ([]TaskHandler, []CronRegistration) {
	handlers := []TaskHandler{
		{Type: audit.TaskTypeRecord, Handler: audit.NewRecordHandler(store)},
		{Type: audit.TaskTypePrune, Handler: audit.NewPruneHandler(store, retention, logger)},
	}
	if retention <= 0 {
		return handlers, nil
	}
	if pruneSpec == "" {
		pruneSpec = DefaultPruneSpec
	}
	cron := []CronRegistration{{
		Spec:    pruneSpec,
		Task:    audit.NewPruneTask(),
		Options: []asynq.Option{asynq.Queue(QueueAudit), asynq.MaxRetry(3), asynq.Unique(time.Hour)},
	}}
	return handlers, cron
}
