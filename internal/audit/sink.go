package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// Task identifiers.
const (
	QueueAudit      = "audit"
	TaskTypeRecord  = "audit:record"
	TaskTypePrune   = "audit:prune"
	recordMaxRetry  = 5
	recordRetention = 24 * time.Hour
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands audit records to the worker through asynq.
type QueueSink struct {
	enqueuer Enqueuer
	failures prometheus.Counter
}

// NewQueueSink builds a sink. failures may be nil.
func NewQueueSink(enqueuer Enqueuer, failures prometheus.Counter) *QueueSink {
	return &QueueSink{enqueuer: enqueuer, failures: failures}
}

var _ shared.AuditSink = (*QueueSink)(nil)

// Record enqueues rec under a fresh task id.
func (s *QueueSink) Record(ctx context.Context, rec shared.AuditRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	task, err := NewRecordTask(rec)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueAudit),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(recordMaxRetry),
		asynq.Retention(recordRetention),
	)
	if err != nil {
		if s.failures != nil {
			s.failures.Inc()
		}
		return fmt.Errorf("audit: enqueue record: %w", err)
	}
	return nil
}

// NewRecordTask encodes rec as an audit:record task.
func NewRecordTask(rec shared.AuditRecord) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: encode record: %w", err)
	}
	return asynq.NewTask(TaskTypeRecord, data), nil
}

// NewRecordHandler persists audit:record tasks through sink. Undecodable or
// incomplete payloads are not retried.
func NewRecordHandler(sink shared.AuditSink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec shared.AuditRecord
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			return fmt.Errorf("audit: decode record: %v: %w", err, asynq.SkipRetry)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("audit: %v: %w", err, asynq.SkipRetry)
		}
		return sink.Record(ctx, rec)
	}
}

// Pruner deletes entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// NewPruneTask builds the periodic retention task.
func NewPruneTask() *asynq.Task {
	return asynq.NewTask(TaskTypePrune, nil)
}

// NewPruneHandler removes entries older than retention.
func NewPruneHandler(store Pruner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		if retention <= 0 {
			return nil
		}
		cutoff := time.Now().UTC().Add(-retention)
		removed, err := store.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("audit: prune: %w", err)
		}
		logger.Info("audit entries pruned", slog.Int64("removed", removed), slog.Time("before", cutoff))
		return nil
	}
}
