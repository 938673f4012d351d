package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/metrics"
)

const (
	// DefaultMaxAttempts is the number of purge attempts before a job is dropped.
	DefaultMaxAttempts = 5

	// DefaultRetryDelay is the base wait before a failed job is requeued.
	DefaultRetryDelay = 2 * time.Second

	maxRetryDelay = time.Minute
)

// Consumer delivers jobs to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, consumerTag string, handle func(context.Context, Job) error) error
}

// Purger deletes the children of a vehicle.
type Purger interface {
	PurgeChildren(ctx context.Context, vehicleID string) (cascade.Result, error)
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	ConsumerTag string
	Logger      *slog.Logger
	Metrics     metrics.Recorder
}

// Worker consumes sweep jobs and purges orphaned children.
type Worker struct {
	consumer    Consumer
	purger      Purger
	publisher   Publisher
	logger      *slog.Logger
	metrics     metrics.Recorder
	maxAttempts int
	retryDelay  time.Duration
	consumerTag string

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a Worker. Failed jobs are requeued through publisher.
func NewWorker(consumer Consumer, purger Purger, publisher Publisher, opts WorkerOptions) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.ConsumerTag == "" {
		opts.ConsumerTag = NewConsumerTag()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		consumer:    consumer,
		purger:      purger,
		publisher:   publisher,
		logger:      opts.Logger.With("component", "sweep.worker", "consumer_id", opts.ConsumerTag),
		metrics:     metrics.OrNoop(opts.Metrics),
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		consumerTag: opts.ConsumerTag,
	}
}

// Run consumes jobs until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	w.logger.Info("sweep worker started", "max_attempts", w.maxAttempts)
	err := w.consumer.Consume(ctx, w.consumerTag, w.Handle)
	if errors.Is(err, context.Canceled) {
		w.logger.Info("sweep worker stopping")
		return nil
	}
	return err
}

// Shutdown stops the worker, letting an in-flight job finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("sweep worker shutdown initiated")
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("sweep worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("sweep worker shutdown timed out")
		return ctx.Err()
	}
}

// Handle runs one job. A failed purge is republished with the next attempt
// number until the attempt budget is spent, then dropped. The returned error
// is non-nil only when the job could not be handed back to the broker.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	res, err := w.purger.PurgeChildren(ctx, job.VehicleID)
	if err == nil {
		w.metrics.IncSweepJob("purged")
		w.logger.Info("sweep_job_done",
			"vehicle_id", job.VehicleID,
			"attempt", job.Attempt,
			"children", res.Children,
		)
		return nil
	}

	if job.Attempt >= w.maxAttempts {
		w.metrics.IncSweepJob("dropped")
		w.logger.Error("sweep_job_dropped",
			"vehicle_id", job.VehicleID,
			"owner_id", job.OwnerID,
			"attempt", job.Attempt,
			"error", err,
		)
		return nil
	}

	if err := sleepContext(ctx, w.backoff(job.Attempt)); err != nil {
		return err
	}

	next := job
	next.Attempt++
	if perr := w.publisher.PublishSweep(ctx, next); perr != nil {
		return fmt.Errorf("requeue sweep job: %w", perr)
	}
	w.metrics.IncSweepJob("requeued")
	w.logger.Warn("sweep_job_requeued",
		"vehicle_id", job.VehicleID,
		"attempt", next.Attempt,
		"error", err,
	)
	return nil
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.retryDelay << max(attempt-1, 0)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
