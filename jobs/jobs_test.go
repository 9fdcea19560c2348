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
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/notify"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

var fixedNow = time.Date(2026, 3, 31, 2, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type sweeperStub struct {
	calls int
	actor shared.Actor
	swept int
	err   error
}

func (s *sweeperStub) SweepOverdue(_ context.Context, actor shared.Actor) (int, error) {
	s.calls++
	s.actor = actor
	return s.swept, s.err
}

func newLocker(t *testing.T) *cache.Locker {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewLocker(client)
}

func TestOverdueSweepRunsUnderLock(t *testing.T) {
	sweeper := &sweeperStub{swept: 3}
	job := NewOverdueSweepJob(sweeper, newLocker(t), jobmetrics.NewMetrics(prometheus.NewRegistry()), nil, clock, 1)

	require.NoError(t, job.Handle(context.Background(), NewOverdueSweepTask()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, int64(1), sweeper.actor.UserID)
	assert.Equal(t, fixedNow, sweeper.actor.At)
}

func TestOverdueSweepSkipsWhenLockHeld(t *testing.T) {
	locker := newLocker(t)
	sweeper := &sweeperStub{}
	job := NewOverdueSweepJob(sweeper, locker, nil, nil, clock, 1)

	ran, err := locker.RunExclusive(context.Background(), shared.JobLockKey(jobOverdueSweep), time.Minute, func(ctx context.Context) error {
		return job.Run(ctx)
	})
	require.NoError(t, err)
	require.True(t, ran)
	assert.Zero(t, sweeper.calls)
}

func TestOverdueSweepReportsFailure(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("database unavailable")}
	job := NewOverdueSweepJob(sweeper, newLocker(t), nil, nil, clock, 1)
	require.ErrorContains(t, job.Run(context.Background()), "database unavailable")
}

type saverStub struct {
	saved []shared.Notification
	at    time.Time
}

func (s *saverStub) Save(_ context.Context, msg shared.Notification, at time.Time) error {
	s.saved = append(s.saved, msg)
	s.at = at
	return nil
}

func TestNotificationJobPersists(t *testing.T) {
	store := &saverStub{}
	job := NewNotificationJob(store, nil, nil, clock)
	msg := shared.Notification{UserID: 9, Message: "Sales order SO/WH1/2026/03/001 shipped", Severity: shared.SeverityInfo}
	task, err := notify.NewDeliverTask(msg)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.saved, 1)
	assert.Equal(t, msg, store.saved[0])
	assert.Equal(t, fixedNow, store.at)
}

func TestNotificationJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewNotificationJob(&saverStub{}, nil, nil, clock)
	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationDeliver, []byte(`{"message":""}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type cleanerStub struct {
	now       time.Time
	olderThan time.Duration
}

func (c *cleanerStub) Cleanup(_ context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	c.now, c.olderThan = now, olderThan
	return 4, nil
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	store := &cleanerStub{}
	job := NewIdempotencyCleanupJob(store, newLocker(t), jobmetrics.NewMetrics(prometheus.NewRegistry()), nil, clock)

	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, fixedNow, store.now)
	assert.Equal(t, IdempotencyRetention, store.olderThan)
}

type inspectorStub map[string]*asynq.QueueInfo

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return info, nil
}

func TestHealthReportsEveryQueue(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(inspectorStub{
		QueueNotifications: {Queue: QueueNotifications, Pending: 4, Retry: 1},
		QueueDefault:       {Queue: QueueDefault, Scheduled: 2},
	}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []queueStats `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, queueStats{Queue: QueueNotifications, Pending: 4, Retry: 1}, body.Queues[0])
	assert.Equal(t, 2, body.Queues[1].Scheduled)

	r = chi.NewRouter()
	NewHandler(inspectorStub{QueueNotifications: {}}, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewWorkerRejectsMiswiredTasks(t *testing.T) {
	opts := asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()}
	noop := func(context.Context, *asynq.Task) error { return nil }

	_, err := NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{
		{Type: TaskInvoiceOverdueSweep, Handler: noop},
		{Type: TaskInvoiceOverdueSweep, Handler: noop},
	}})
	require.ErrorContains(t, err, "duplicate handler")

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Cron: []CronRegistration{{Spec: "@daily", Task: NewOverdueSweepTask()}}})
	require.ErrorContains(t, err, "has no handler")
}
