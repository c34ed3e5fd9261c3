package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Audit actions emitted by the core.
const (
	AuditCreate           = "CREATE"
	AuditUpdate           = "UPDATE"
	AuditDelete           = "DELETE"
	AuditActivate         = "ACTIVATE"
	AuditDeactivate       = "DEACTIVATE"
	AuditAddPermission    = "ADD_PERMISSION"
	AuditRemovePermission = "REMOVE_PERMISSION"
	AuditRegister         = "REGISTER"
	AuditAssignRole       = "ASSIGN_ROLE"
	AuditRevokeRole       = "REVOKE_ROLE"
	AuditSetStatus        = "SET_STATUS"
	AuditLogin            = "LOGIN"
)

// AuditRecord is a single entry destined for audit_logs.
type AuditRecord struct {
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Validate checks the fields every sink requires.
func (r AuditRecord) Validate() error {
	if r.Action == "" || r.Entity == "" || r.EntityID == "" {
		return errors.New("audit record requires action/entity/entity_id")
	}
	return nil
}

// AuditSink accepts audit records.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditTimeout bounds how long RecordAudit waits on a sink.
const AuditTimeout = 250 * time.Millisecond

// RecordAudit hands rec to sink and never fails the caller. The sink runs
// detached from ctx cancellation and is abandoned after AuditTimeout. Sink
// errors are logged.
func RecordAudit(ctx context.Context, sink AuditSink, logger *slog.Logger, rec AuditRecord) {
	if sink == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AuditTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sink.Record(ctx, rec) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("audit record dropped",
			slog.String("action", rec.Action),
			slog.String("entity", rec.Entity),
			slog.String("entity_id", rec.EntityID),
			slog.Any("error", err))
	}
}
