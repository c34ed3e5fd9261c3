package audithttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veeduria/veeduria-api/internal/audit"
	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// LogService defines the business contract for audit log data.
type LogService interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
	Get(ctx context.Context, id int64) (audit.Entry, error)
}

// Handler serves audit log retrieval.
type Handler struct {
	logger  *slog.Logger
	service LogService
	guard   shared.Guard
	now     func() time.Time
}

// NewHandler builds the audit log handler.
func NewHandler(logger *slog.Logger, service LogService, guard shared.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "list audit logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid log id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServerError(w, "get audit log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit logs", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-logs.csv\"")
	if err := writeCSV(w, entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func writeCSV(w http.ResponseWriter, entries []audit.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "occurred_at", "actor_id", "action", "entity", "entity_id", "details"}); err != nil {
		return err
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			e.Action,
			e.Entity,
			e.EntityID,
			string(details),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseFilters defaults to the last seven days. to is inclusive by day.
func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format(dateLayout)
	}
	toTime, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return audit.Filters{}, shared.Invalid("to", "must be a date (YYYY-MM-DD)")
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format(dateLayout)
	}
	fromTime, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return audit.Filters{}, shared.Invalid("from", "must be a date (YYYY-MM-DD)")
	}
	if fromTime.After(toTime) {
		return audit.Filters{}, shared.Invalid("range", "from must not be after to")
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.Filters{}, shared.Invalid("range", "must span at most 90 days")
	}

	page, err := positiveQuery(q.Get("page"), "page")
	if err != nil {
		return audit.Filters{}, err
	}
	if page > audit.MaxPage {
		return audit.Filters{}, shared.Invalid("page", "must be at most "+strconv.Itoa(audit.MaxPage))
	}
	pageSize, err := positiveQuery(q.Get("page_size"), "page_size")
	if err != nil {
		return audit.Filters{}, err
	}
	actorID, err := positiveQuery(q.Get("actor_id"), "actor_id")
	if err != nil {
		return audit.Filters{}, err
	}

	return audit.Filters{
		From:     fromTime,
		To:       toTime.Add(24 * time.Hour),
		ActorID:  int64(actorID),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveQuery(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, shared.Invalid(field, "must be a positive integer")
	}
	return v, nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
