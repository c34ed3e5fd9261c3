package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veeduria/veeduria-api/internal/shared"
)

type stubLogRepo struct {
	entries    []Entry
	err        error
	lastWindow WindowParams
	lastAll    WindowParams
}

func (s *stubLogRepo) Window(ctx context.Context, arg WindowParams) ([]Entry, error) {
	s.lastWindow = arg
	if s.err != nil {
		return nil, s.err
	}
	start := int(arg.OffsetRows)
	if start > len(s.entries) {
		return []Entry{}, nil
	}
	end := start + int(arg.LimitRows)
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[start:end], nil
}

func (s *stubLogRepo) All(ctx context.Context, arg WindowParams) ([]Entry, error) {
	s.lastAll = arg
	return s.entries, s.err
}

func (s *stubLogRepo) Get(ctx context.Context, id int64) (Entry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, shared.NotFound("audit entry", id)
}

func sampleEntries(n int) []Entry {
	out := make([]Entry, n)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Entry{
			ID:         int64(n - i),
			ActorID:    7,
			Action:     shared.AuditUpdate,
			Entity:     "role",
			EntityID:   "1",
			OccurredAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestServiceListPaging(t *testing.T) {
	repo := &stubLogRepo{entries: sampleEntries(3)}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
		ActorID:  7,
		Entity:   " role ",
	})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, int32(3), repo.lastWindow.LimitRows)
	assert.Equal(t, int32(0), repo.lastWindow.OffsetRows)
	assert.Equal(t, pgtype.Int8{Int64: 7, Valid: true}, repo.lastWindow.Actor)
	assert.Equal(t, pgtype.Text{String: "role", Valid: true}, repo.lastWindow.Entity)
	assert.False(t, repo.lastWindow.Action.Valid)
	assert.False(t, repo.lastWindow.ToAt.Valid)

	result, err = svc.List(context.Background(), Filters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestServiceListClampsPageSize(t *testing.T) {
	repo := &stubLogRepo{}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, result.Paging.PageSize)
	assert.Equal(t, int32(MaxPageSize+1), repo.lastWindow.LimitRows)
	assert.NotNil(t, result.Entries)

	result, err = svc.List(context.Background(), Filters{Page: -1})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, result.Paging.PageSize)
	assert.Equal(t, 1, result.Paging.Page)
}

func TestServiceListRejectsPagePastOffsetRange(t *testing.T) {
	repo := &stubLogRepo{}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{Page: MaxPage, PageSize: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, MaxPage, result.Paging.Page)
	assert.Greater(t, repo.lastWindow.OffsetRows, int32(0))

	_, err = svc.List(context.Background(), Filters{Page: MaxPage + 1})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "page", ve.Fields[0].Field)
}

func TestServiceExportAndGet(t *testing.T) {
	repo := &stubLogRepo{entries: sampleEntries(2)}
	svc := NewService(repo)
	ctx := context.Background()

	rows, err := svc.Export(ctx, Filters{Action: "create"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, pgtype.Text{String: "create", Valid: true}, repo.lastAll.Action)
	assert.False(t, repo.lastAll.Actor.Valid)

	entry, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.ID)

	_, err = svc.Get(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceErrors(t *testing.T) {
	_, err := NewService(nil).List(context.Background(), Filters{})
	assert.Error(t, err)

	repo := &stubLogRepo{err: errors.New("timeout")}
	_, err = NewService(repo).List(context.Background(), Filters{})
	assert.ErrorIs(t, err, shared.ErrInternal)
}
