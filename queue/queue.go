package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/retry"
	"github.com/poiesic/opsmind/storage"
)

const (
	// DefaultPollInterval bounds how long an idle worker sleeps between checks.
	DefaultPollInterval = 5 * time.Second

	defaultEventPoolSize = 4
	releaseTimeout       = 5 * time.Second
)

// Handler processes one job and returns how many chunks it produced.
type Handler func(ctx context.Context, job *core.Job) (int, error)

// Queue is a durable FIFO of ingestion jobs served by a single worker.
// Failed attempts are rescheduled with exponential backoff until the
// retry policy is exhausted; the job is then kept in the failed state.
type Queue struct {
	jobs         storage.JobRepository
	handler      Handler
	policy       retry.Policy
	claimPolicy  retry.Policy
	pollInterval time.Duration
	poolSize     int
	pool         *ants.Pool
	now          func() time.Time
	notify       chan struct{}
	running      atomic.Bool
	logger       *slog.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// Option configures a Queue.
type Option func(*Queue) error

// WithPolicy sets the retry policy for failed jobs.
// Default is retry.DefaultPolicy(): 3 attempts, 1s base delay, doubling.
func WithPolicy(p retry.Policy) Option {
	return func(q *Queue) error {
		if err := p.Validate(); err != nil {
			return err
		}
		q.policy = p
		return nil
	}
}

// WithPollInterval sets the longest idle sleep of the worker.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive: %s", d)
		}
		q.pollInterval = d
		return nil
	}
}

// WithEventPoolSize sets how many listener invocations may run at once.
func WithEventPoolSize(size int) Option {
	return func(q *Queue) error {
		if size < 1 {
			size = 1
		}
		q.poolSize = size
		return nil
	}
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) error {
		if now != nil {
			q.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) error {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
		return nil
	}
}

// New creates a queue over jobs that runs handler for each claimed job.
func New(jobs storage.JobRepository, handler Handler, opts ...Option) (*Queue, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	q := &Queue{
		jobs:         jobs,
		handler:      handler,
		policy:       retry.DefaultPolicy(),
		pollInterval: DefaultPollInterval,
		poolSize:     defaultEventPoolSize,
		now:          time.Now,
		notify:       make(chan struct{}, 1),
		listeners:    make(map[int]Listener),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}

	// Claims race only with other processes sharing the store, so a few
	// quick retries are enough.
	q.claimPolicy = retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
		ShouldRetry: func(err error) bool { return errors.Is(err, storage.ErrConflict) },
	}

	pool, err := ants.NewPool(q.poolSize)
	if err != nil {
		return nil, err
	}
	q.pool = pool
	q.logger = q.logger.With("component", "queue")
	return q, nil
}

// Close waits briefly for pending event deliveries and releases the pool.
func (q *Queue) Close() error {
	return q.pool.ReleaseTimeout(releaseTimeout)
}

// Subscribe registers fn for every event and returns a function that removes it.
func (q *Queue) Subscribe(fn Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

// Enqueue stores a waiting job for payload and wakes the worker.
// Returns the new job ID.
func (q *Queue) Enqueue(ctx context.Context, payload core.JobPayload) (string, error) {
	if strings.TrimSpace(payload.FilePath) == "" {
		return "", ErrMissingFilePath
	}
	now := q.now().UTC()
	job := &core.Job{
		ID:          uuid.NewString(),
		Payload:     payload,
		MaxAttempts: q.policy.MaxAttempts,
		EnqueuedAt:  now,
		RunAt:       now,
	}
	created, err := q.jobs.Create(ctx, job)
	if err != nil {
		return "", err
	}
	q.logger.Info("job enqueued", "job", created.ID, "file", payload.FilePath)
	q.wake()
	return created.ID, nil
}

// Get returns a job by ID. Completed jobs are removed and return storage.ErrNotFound.
func (q *Queue) Get(ctx context.Context, id string) (*core.Job, error) {
	return q.jobs.Get(ctx, id)
}

// List returns jobs in state, or every retained job when state is empty.
func (q *Queue) List(ctx context.Context, state core.JobState) ([]*core.Job, error) {
	return q.jobs.List(ctx, state)
}

// Recover settles jobs left active by a worker that died mid-attempt.
// The lost attempt counts: a job that has used its attempts is failed,
// anything else goes back to the front of the schedule.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	stalled, err := q.jobs.List(ctx, core.JobStateActive)
	if err != nil {
		return 0, err
	}
	now := q.now().UTC()
	for _, job := range stalled {
		logger := q.logger.With("job", job.ID, "file", job.Payload.FilePath, "attempt", job.Attempts)
		if q.policyFor(job).Exhausted(job.Attempts) {
			job.LastError = ErrStalled.Error()
			if err := q.jobs.MarkFailed(ctx, job); err != nil {
				return 0, err
			}
			logger.Error("stalled job failed")
			q.emit(Event{Type: EventFailed, JobID: job.ID, FilePath: job.Payload.FilePath, Attempt: job.Attempts, Error: job.LastError})
			continue
		}
		job.RunAt = now
		if err := q.jobs.Reschedule(ctx, job); err != nil {
			return 0, err
		}
		logger.Warn("recovered stalled job")
	}
	return len(stalled), nil
}

// Run recovers stalled jobs and then processes jobs one at a time until ctx ends.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer q.running.Store(false)

	if _, err := q.Recover(ctx); err != nil {
		return err
	}
	q.logger.Info("worker started")

	for {
		processed, err := q.ProcessNext(ctx)
		if ctx.Err() != nil {
			q.logger.Info("worker stopped")
			return nil
		}
		if err != nil {
			q.logger.Error("failed to process job", "err", err)
		}
		if processed {
			continue
		}
		if !q.sleep(ctx, q.idleDelay(ctx)) {
			q.logger.Info("worker stopped")
			return nil
		}
	}
}

// idleDelay returns how long to wait before the next scheduled job, capped by the poll interval.
func (q *Queue) idleDelay(ctx context.Context) time.Duration {
	next, ok, err := q.jobs.NextRunAt(ctx)
	if err != nil || !ok {
		return q.pollInterval
	}
	return min(max(next.Sub(q.now()), 0), q.pollInterval)
}

// sleep waits for d, a new job, or cancellation. Returns false on cancellation.
func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-q.notify:
		return true
	case <-timer.C:
		return true
	}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// ProcessNext claims and handles the earliest ready job.
// Returns false when no job was ready.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	var job *core.Job
	err := retry.Do(ctx, q.claimPolicy, func() error {
		var err error
		job, err = q.jobs.ClaimNext(ctx, q.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	logger := q.logger.With("job", job.ID, "file", job.Payload.FilePath, "attempt", job.Attempts)
	logger.Info("job started")

	chunks, err := q.execute(ctx, job)
	if err == nil {
		if err := q.jobs.Complete(ctx, job.ID); err != nil {
			return true, err
		}
		logger.Info("job completed", "chunks", chunks)
		q.emit(Event{Type: EventCompleted, JobID: job.ID, FilePath: job.Payload.FilePath, Attempt: job.Attempts, Chunks: chunks})
		return true, nil
	}

	if ctx.Err() != nil {
		// Shutdown is not the document's fault, so the attempt is handed back.
		logger.Warn("job interrupted", "err", err)
		if err := q.release(context.WithoutCancel(ctx), job); err != nil {
			logger.Error("failed to release interrupted job", "err", err)
		}
		return true, ctx.Err()
	}

	policy := q.policyFor(job)
	job.LastError = err.Error()
	if policy.Exhausted(job.Attempts) || !policy.Retryable(err) || errors.Is(err, ErrMissingFilePath) {
		if err := q.jobs.MarkFailed(ctx, job); err != nil {
			return true, err
		}
		logger.Error("job failed", "err", err)
		q.emit(Event{Type: EventFailed, JobID: job.ID, FilePath: job.Payload.FilePath, Attempt: job.Attempts, Error: job.LastError})
		return true, nil
	}

	job.RunAt = q.now().UTC().Add(policy.Delay(job.Attempts))
	if err := q.jobs.Reschedule(ctx, job); err != nil {
		return true, err
	}
	logger.Warn("job attempt failed, retrying", "err", err, "retryAt", job.RunAt)
	q.emit(Event{Type: EventRetrying, JobID: job.ID, FilePath: job.Payload.FilePath, Attempt: job.Attempts, Error: job.LastError, RetryAt: job.RunAt})
	return true, nil
}

// release returns an interrupted job to waiting without charging the attempt.
func (q *Queue) release(ctx context.Context, job *core.Job) error {
	job.Attempts = max(job.Attempts-1, 0)
	job.RunAt = q.now().UTC()
	return q.jobs.Reschedule(ctx, job)
}

// policyFor bounds attempts by the job's own limit, fixed when it was enqueued.
func (q *Queue) policyFor(job *core.Job) retry.Policy {
	p := q.policy
	if job.MaxAttempts > 0 {
		p.MaxAttempts = job.MaxAttempts
	}
	return p
}

// execute runs the handler, turning a panic into an error.
func (q *Queue) execute(ctx context.Context, job *core.Job) (chunks int, err error) {
	if strings.TrimSpace(job.Payload.FilePath) == "" {
		return 0, ErrMissingFilePath
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

// emit delivers ev to every listener on the event pool.
func (q *Queue) emit(ev Event) {
	ev.At = q.now().UTC()

	q.mu.RLock()
	listeners := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.mu.RUnlock()

	for _, l := range listeners {
		if err := q.pool.Submit(func() { l(ev) }); err != nil {
			q.logger.Warn("dropping queue event", "event", ev.Type, "job", ev.JobID, "err", err)
		}
	}
}
