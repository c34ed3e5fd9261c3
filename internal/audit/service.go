package audit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// Page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// MaxPage keeps the row offset within int32.
const MaxPage = math.MaxInt32 / MaxPageSize

// WindowParams are the query arguments of a filtered audit scan. Zero-valued
// filters are not Valid and match everything.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Int8
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads persisted audit entries.
type Repository interface {
	Window(ctx context.Context, arg WindowParams) ([]Entry, error)
	All(ctx context.Context, arg WindowParams) ([]Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
}

// Service coordinates audit log retrieval.
type Service struct {
	repo Repository
}

// NewService builds the audit log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of entries, newest first. It fetches one extra row to
// decide whether a next page exists.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		return Result{}, shared.Invalid("page", "must be at most "+strconv.Itoa(MaxPage))
	}
	params := windowParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	entries, err := s.repo.Window(ctx, params)
	if err != nil {
		return Result{}, shared.Internal("audit: list", err)
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every entry matching filters without paging.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.All(ctx, windowParams(filters))
	if err != nil {
		return nil, shared.Internal("audit: export", err)
	}
	return entries, nil
}

// Get returns entry id.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	if s.repo == nil {
		return Entry{}, fmt.Errorf("audit: repository not configured")
	}
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return Entry{}, shared.Internal("audit: get", err)
	}
	return entry, nil
}

func windowParams(filters Filters) WindowParams {
	params := WindowParams{
		FromAt: toPgTime(filters.From),
		ToAt:   toPgTime(filters.To),
		Entity: optionalText(filters.Entity),
		Action: optionalText(filters.Action),
	}
	if filters.ActorID > 0 {
		params.Actor = pgtype.Int8{Int64: filters.ActorID, Valid: true}
	}
	return params
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
