package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	// OutcomeSkipped marks tasks asynq will not retry, such as an audit
	// payload that cannot be decoded.
	OutcomeSkipped = "skipped"
)

// Metrics counts audit worker task executions.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	sharedOnce    sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registers the collectors with registerer. A nil registerer shares
// one instance on the default registry so repeated calls do not panic.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() { sharedMetrics = register(prometheus.DefaultRegisterer) })
	return sharedMetrics
}

// Tracker times one task run such as audit:record or audit:prune.
type Tracker struct {
	metrics *Metrics
	task    string
	began   time.Time
}

// Track starts timing task. Tracking on nil Metrics records nothing.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, began: time.Now()}
}

// End classifies err into an outcome, records it and hands err back.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	t.metrics.tasks.WithLabelValues(t.task, Outcome(err)).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.began).Seconds())
	return err
}

// Outcome maps a handler result to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeProcessed
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veeduria_jobs_total",
			Help: "Worker task executions by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veeduria_job_duration_seconds",
			Help:    "Worker task execution time.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"task"}),
	}
	registerer.MustRegister(m.tasks, m.duration)
	return m
}
