package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veeduria/veeduria-api/internal/audit"
	jobmetrics "github.com/veeduria/veeduria-api/internal/jobs"
	"github.com/veeduria/veeduria-api/internal/shared"
)

type memoryStore struct {
	records []shared.AuditRecord
	pruned  []time.Time
}

func (m *memoryStore) Record(ctx context.Context, rec shared.AuditRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.pruned = append(m.pruned, before)
	return 0, nil
}

func TestRedisOptsBoundsTimeouts(t *testing.T) {
	opts := RedisOpts("redis:6379")
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, time.Second, opts.WriteTimeout)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: "noop", Handler: func(context.Context, *asynq.Task) error { return nil }}},
	})
	require.NoError(t, err)
	assert.Nil(t, w.scheduler)
}

func TestRunOnNilWorker(t *testing.T) {
	var w *Worker
	assert.Error(t, w.Run(context.Background()))
}

func TestTrackedHandlerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	ok := tracked(metrics, "audit:record", func(context.Context, *asynq.Task) error { return nil })
	boom := errors.New("boom")
	failing := tracked(metrics, "audit:record", func(context.Context, *asynq.Task) error { return boom })

	task := asynq.NewTask("audit:record", nil)
	require.NoError(t, ok.ProcessTask(context.Background(), task))
	assert.ErrorIs(t, failing.ProcessTask(context.Background(), task), boom)

	count, err := testutil.GatherAndCount(reg, "veeduria_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAuditTasks(t *testing.T) {
	store := &memoryStore{}

	handlers, cron := AuditTasks(store, 0, "", nil)
	assert.Len(t, handlers, 2)
	assert.Empty(t, cron)

	handlers, cron = AuditTasks(store, 30*24*time.Hour, "", nil)
	require.Len(t, cron, 1)
	assert.Equal(t, DefaultPruneSpec, cron[0].Spec)
	assert.Equal(t, audit.TaskTypePrune, cron[0].Task.Type())

	for _, h := range handlers {
		if h.Type == audit.TaskTypePrune {
			require.NoError(t, h.Handler(context.Background(), audit.NewPruneTask()))
		}
	}
	assert.Len(t, store.pruned, 1)

	task, err := audit.NewRecordTask(shared.AuditRecord{ActorID: 1, Action: "create", Entity: "role", EntityID: "1"})
	require.NoError(t, err)
	require.NoError(t, handlers[0].Handler(context.Background(), task))
	assert.Len(t, store.records, 1)
}

func TestClientEnqueuesIntoRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	sink := audit.NewQueueSink(client, nil)
	require.NoError(t, sink.Record(context.Background(), shared.AuditRecord{ActorID: 2, Action: "assign", Entity: "user", EntityID: "7"}))

	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() { _ = inspector.Close() })
	pending, err := inspector.ListPendingTasks(QueueAudit)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, audit.TaskTypeRecord, pending[0].Type)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestJobsHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueAudit, Pending: 3, Failed: 1}}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueAudit, Pending: 3, Failed: 1}, body)

	rec = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
