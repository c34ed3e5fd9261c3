package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veeduria/veeduria-api/internal/shared"
)

const entryColumns = `id, actor_id, action, entity, entity_id, meta, occurred_at`

const windowFilter = `WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	AND ($2::timestamptz IS NULL OR occurred_at < $2)
	AND ($3::bigint IS NULL OR actor_id = $3)
	AND ($4::text IS NULL OR entity = $4)
	AND ($5::text IS NULL OR action = $5)`

// PGStore persists audit records in the audit_logs table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var (
	_ Repository       = (*PGStore)(nil)
	_ shared.AuditSink = (*PGStore)(nil)
)

// Record inserts rec synchronously.
func (s *PGStore) Record(ctx context.Context, rec shared.AuditRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, rec.ActorID, rec.Action, rec.Entity, rec.EntityID, details, at)
	return err
}

// Window returns a page of entries, newest first.
func (s *PGStore) Window(ctx context.Context, arg WindowParams) ([]Entry, error) {
	return s.query(ctx, `SELECT `+entryColumns+` FROM audit_logs `+windowFilter+`
		ORDER BY occurred_at DESC, id DESC LIMIT $6 OFFSET $7`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.LimitRows, arg.OffsetRows)
}

// All returns every matching entry, newest first.
func (s *PGStore) All(ctx context.Context, arg WindowParams) ([]Entry, error) {
	return s.query(ctx, `SELECT `+entryColumns+` FROM audit_logs `+windowFilter+`
		ORDER BY occurred_at DESC, id DESC`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
}

// Get returns entry id.
func (s *PGStore) Get(ctx context.Context, id int64) (Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE id = $1`, id)
	if err != nil {
		return Entry{}, err
	}
	entry, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.NotFound("audit entry", id)
		}
		return Entry{}, err
	}
	return entry, nil
}

// Prune deletes entries older than before and reports how many were removed.
func (s *PGStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Details, &e.OccurredAt)
	return e, err
}
