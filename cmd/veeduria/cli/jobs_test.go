package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veeduria/veeduria-api/internal/audit"
	"github.com/veeduria/veeduria-api/jobs"
)

type fakeClient struct {
	tasks  []*asynq.Task
	closed bool
}

func (f *fakeClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueAudit}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type fakeInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func (f *fakeInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.scheduled, f.err
}

func (f *fakeInspector) Close() error { return nil }

func TestJobsCLIRun(t *testing.T) {
	client := &fakeClient{}
	inspector := &fakeInspector{
		info: &asynq.QueueInfo{Queue: jobs.QueueAudit, Pending: 4, Retry: 1},
		scheduled: []*asynq.TaskInfo{{
			ID: "s-1", Type: audit.TaskTypePrune,
			NextProcessAt: time.Date(2026, 3, 16, 3, 10, 0, 0, time.UTC),
		}},
	}
	c := &JobsCLI{client: client, inspector: inspector}
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, c.Run(ctx, &out, []string{"prune"}))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, audit.TaskTypePrune, client.tasks[0].Type())
	assert.Equal(t, "enqueued audit:prune id=t-1\n", out.String())

	out.Reset()
	require.NoError(t, c.Run(ctx, &out, []string{"stats"}))
	assert.Equal(t, "queue=audit pending=4 active=0 scheduled=0 retry=1 archived=0\n", out.String())

	out.Reset()
	require.NoError(t, c.Run(ctx, &out, []string{"scheduled"}))
	assert.Equal(t, "s-1 audit:prune 2026-03-16T03:10:00Z\n", out.String())

	assert.Error(t, c.Run(ctx, &out, nil))
	assert.Error(t, c.Run(ctx, &out, []string{"bogus"}))

	require.NoError(t, c.Close())
	assert.True(t, client.closed)
}

func TestJobsCLIInspectError(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}, inspector: &fakeInspector{err: errors.New("redis down")}}
	_, err := c.InspectQueue(context.Background())
	assert.Error(t, err)

	var nilCLI *JobsCLI
	_, err = nilCLI.TriggerPrune(context.Background())
	assert.Error(t, err)
}
