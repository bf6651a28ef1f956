package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sift-social/sift/platform"
)

// Handler processes one job. A nil return completes the job; transient
// platform errors are retried with backoff up to the retry cap, anything else
// fails the job outright.
type Handler func(ctx context.Context, job Job) error

// Orchestrator pulls jobs from a Store and dispatches them to registered
// handlers on a bounded worker pool. All outbound platform traffic it causes
// is paced by the shared rate limiter.
type Orchestrator struct {
	Name    string
	Store   Store
	Logger  *slog.Logger
	Limiter *rate.Limiter

	// Parallel bounds concurrently executing jobs.
	Parallel int
	// MaxRetries caps retries for transient failures; a job runs at most
	// MaxRetries+1 times.
	MaxRetries int
	// JobDeadline bounds a single execution attempt.
	JobDeadline time.Duration
	// BucketSize is the idempotency window for Enqueue.
	BucketSize time.Duration

	// PollInterval is how long to sleep when the queue is drained.
	PollInterval time.Duration
	// Backoff computes the retry delay for the given prior attempt count.
	Backoff func(attempt int) time.Duration

	handlers map[string]Handler

	stop chan chan struct{}
}

type OrchestratorOptions struct {
	Parallel     int
	MaxRetries   int
	JobDeadline  time.Duration
	BucketSize   time.Duration
	PollInterval time.Duration
}

func DefaultOrchestratorOptions() *OrchestratorOptions {
	return &OrchestratorOptions{
		Parallel:     4,
		MaxRetries:   2,
		JobDeadline:  2 * time.Minute,
		BucketSize:   15 * time.Minute,
		PollInterval: time.Second,
	}
}

func NewOrchestrator(name string, store Store, limiter *rate.Limiter, opts *OrchestratorOptions) *Orchestrator {
	if opts == nil {
		opts = DefaultOrchestratorOptions()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Orchestrator{
		Name:         name,
		Store:        store,
		Logger:       slog.With("source", "orchestrator", "name", name),
		Limiter:      limiter,
		Parallel:     opts.Parallel,
		MaxRetries:   opts.MaxRetries,
		JobDeadline:  opts.JobDeadline,
		BucketSize:   opts.BucketSize,
		PollInterval: opts.PollInterval,
		Backoff:      computeExponentialBackoff,
		handlers:     make(map[string]Handler),
		stop:         make(chan chan struct{}, 1),
	}
}

// HandleFunc registers the handler for a job kind. Not safe to call after
// Start.
func (o *Orchestrator) HandleFunc(kind string, h Handler) {
	o.handlers[kind] = h
}

// Enqueue schedules work in the current idempotency bucket. The bool reports
// whether a new job was created.
func (o *Orchestrator) Enqueue(ctx context.Context, kind, target, payload string) (Job, bool, error) {
	return o.EnqueueAt(ctx, kind, target, payload, time.Now().UTC().Truncate(o.BucketSize))
}

// EnqueueAt schedules work in an explicit bucket; manual re-triggers pass a
// fresh timestamp to sidestep the idempotency window.
func (o *Orchestrator) EnqueueAt(ctx context.Context, kind, target, payload string, bucket time.Time) (Job, bool, error) {
	job, created, err := o.Store.EnqueueJob(ctx, kind, target, payload, bucket)
	if err != nil {
		return nil, false, fmt.Errorf("enqueueing %s job for %s: %w", kind, target, err)
	}
	if created {
		jobsEnqueued.WithLabelValues(o.Name, kind).Inc()
	}
	return job, created, nil
}

// Start runs the dispatch loop until Stop is called. The loop is the only
// claimer, so claim-then-mark is race free; workers run the handlers.
func (o *Orchestrator) Start() {
	ctx := context.Background()

	log := o.Logger
	log.Info("starting job orchestrator")

	sem := semaphore.NewWeighted(int64(o.Parallel))

	for {
		select {
		case stopped := <-o.stop:
			log.Info("stopping job orchestrator")
			sem.Acquire(ctx, int64(o.Parallel))
			close(stopped)
			return
		default:
		}

		job, err := o.Store.NextEnqueuedJob(ctx)
		if err != nil {
			log.Error("failed to get next enqueued job", "error", err)
			time.Sleep(o.PollInterval)
			continue
		} else if job == nil {
			time.Sleep(o.PollInterval)
			continue
		}

		if err := job.SetState(ctx, StateInProgress); err != nil {
			log.Error("failed to mark job in progress", "key", job.Key(), "error", err)
			continue
		}

		sem.Acquire(ctx, 1)
		go func(j Job) {
			defer sem.Release(1)
			o.execute(ctx, j)
		}(job)
	}
}

// Stop shuts down the dispatch loop and waits for in-flight jobs.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.Logger.Info("stopping job orchestrator")
	stopped := make(chan struct{})
	o.stop <- stopped
	select {
	case <-stopped:
		o.Logger.Info("job orchestrator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) execute(ctx context.Context, job Job) {
	log := o.Logger.With("kind", job.Kind(), "target", job.Target(), "key", job.Key())

	handler, ok := o.handlers[job.Kind()]
	if !ok {
		log.Error("no handler registered for job kind")
		o.finish(ctx, job, StateFailed)
		return
	}

	if err := o.Limiter.Wait(ctx); err != nil {
		log.Error("rate limiter wait failed", "error", err)
		o.finish(ctx, job, StateFailed)
		return
	}

	start := time.Now()
	jctx, cancel := context.WithTimeout(ctx, o.JobDeadline)
	err := handler(jctx, job)
	cancel()

	if err == nil {
		log.Info("job complete", "duration", time.Since(start))
		o.finish(ctx, job, StateComplete)
		return
	}

	// A blown deadline counts as transient: the platform may just be slow.
	transient := platform.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
	if !transient {
		log.Error("job failed permanently", "error", err, "attempts", job.RetryCount()+1)
		o.finish(ctx, job, StateFailed)
		return
	}

	if job.RetryCount() >= o.MaxRetries {
		log.Error("job failed after exhausting retries", "error", err, "attempts", job.RetryCount()+1)
		o.finish(ctx, job, StateFailed)
		return
	}

	delay := o.Backoff(job.RetryCount())
	log.Warn("job failed, retrying", "error", err, "retry_in", delay)
	if rerr := job.Retry(ctx, time.Now().Add(delay)); rerr != nil {
		log.Error("failed to schedule job retry", "error", rerr)
		return
	}
	jobsRetried.WithLabelValues(o.Name, job.Kind()).Inc()
}

func (o *Orchestrator) finish(ctx context.Context, job Job, state string) {
	if err := job.SetState(ctx, state); err != nil {
		o.Logger.Error("failed to set job state", "key", job.Key(), "state", state, "error", err)
		return
	}
	jobsProcessed.WithLabelValues(o.Name, job.Kind(), state).Inc()
}

func computeExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 10 * time.Second
}
