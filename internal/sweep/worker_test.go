package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/metrics"
	"github.com/fuelsync/fuelsync/internal/testutil"
)

type fakePurger struct {
	err   error
	calls []string
}

func (f *fakePurger) PurgeChildren(_ context.Context, vehicleID string) (cascade.Result, error) {
	f.calls = append(f.calls, vehicleID)
	if f.err != nil {
		return cascade.Result{}, f.err
	}
	return cascade.Result{Children: 3, Batches: 1}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (f *fakePublisher) PublishSweep(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

// chanConsumer feeds jobs from a channel, recording handler results.
type chanConsumer struct {
	jobs    chan Job
	results chan error
}

func (c *chanConsumer) Consume(ctx context.Context, _ string, handle func(context.Context, Job) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-c.jobs:
			c.results <- handle(ctx, job)
		}
	}
}

func newTestWorker(purger Purger, pub Publisher, rec metrics.Recorder) *Worker {
	return NewWorker(nil, purger, pub, WorkerOptions{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		ConsumerTag: "test",
		Logger:      testutil.DiscardLogger(),
		Metrics:     rec,
	})
}

func TestHandle_Purges(t *testing.T) {
	purger := &fakePurger{}
	pub := &fakePublisher{}
	rec := metrics.NewInMemory()
	w := newTestWorker(purger, pub, rec)

	job := NewJob("owner-1", "v1", time.Now())
	require.NoError(t, w.Handle(context.Background(), job))
	assert.Equal(t, []string{"v1"}, purger.calls)
	assert.Empty(t, pub.jobs)
	assert.Equal(t, uint64(1), rec.Snapshot().SweepJobs["purged"])
}

func TestHandle_RequeuesWithNextAttempt(t *testing.T) {
	purger := &fakePurger{err: &cascade.IncompleteError{VehicleID: "v1", Remaining: 4, Err: errors.New("throttled")}}
	pub := &fakePublisher{}
	rec := metrics.NewInMemory()
	w := newTestWorker(purger, pub, rec)

	require.NoError(t, w.Handle(context.Background(), NewJob("owner-1", "v1", time.Now())))
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, 2, pub.jobs[0].Attempt)
	assert.Equal(t, "v1", pub.jobs[0].VehicleID)
	assert.Equal(t, uint64(1), rec.Snapshot().SweepJobs["requeued"])
}

func TestHandle_DropsAfterMaxAttempts(t *testing.T) {
	purger := &fakePurger{err: errors.New("still failing")}
	pub := &fakePublisher{}
	rec := metrics.NewInMemory()
	w := newTestWorker(purger, pub, rec)

	job := NewJob("owner-1", "v1", time.Now())
	job.Attempt = 3
	require.NoError(t, w.Handle(context.Background(), job))
	assert.Empty(t, pub.jobs)
	assert.Equal(t, uint64(1), rec.Snapshot().SweepJobs["dropped"])
}

func TestHandle_RequeueFailureIsReturned(t *testing.T) {
	purger := &fakePurger{err: errors.New("boom")}
	pub := &fakePublisher{err: errors.New("broker down")}
	w := newTestWorker(purger, pub, nil)

	err := w.Handle(context.Background(), NewJob("owner-1", "v1", time.Now()))
	assert.ErrorContains(t, err, "broker down")
}

func TestWorker_RunAndShutdown(t *testing.T) {
	consumer := &chanConsumer{jobs: make(chan Job), results: make(chan error, 1)}
	purger := &fakePurger{}
	w := NewWorker(consumer, purger, &fakePublisher{}, WorkerOptions{Logger: testutil.DiscardLogger()})

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(context.Background()) }()

	consumer.jobs <- NewJob("owner-1", "v9", time.Now())
	require.NoError(t, <-consumer.results)
	assert.Equal(t, []string{"v9"}, purger.calls)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.NoError(t, <-runErr)
}

func TestJobFromJSON(t *testing.T) {
	job := NewJob("owner-1", "v1", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	data, err := job.ToJSON()
	require.NoError(t, err)

	got, err := JobFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	assert.Contains(t, string(data), `"ownerId":"owner-1"`)
	assert.NotContains(t, string(data), "userId")

	_, err = JobFromJSON([]byte(`{"ownerId":"owner-1"}`))
	assert.ErrorIs(t, err, ErrInvalidJob)

	got, err = JobFromJSON([]byte(`{"vehicleId":"v1","userId":"owner-9","attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, "owner-9", got.OwnerID)
	assert.Equal(t, 2, got.Attempt)
	_, err = JobFromJSON([]byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidJob)

	got, err = JobFromJSON([]byte(`{"vehicleId":"v1"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)
}
