package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

const maxJobBackoff = time.Hour

// JobQueueOptions configures retry behaviour.
type JobQueueOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	Lease       time.Duration
}

// JobQueueUseCase owns the job lifecycle. It implements domain.Enqueuer.
type JobQueueUseCase struct {
	store  domain.JobStore
	opts   JobQueueOptions
	logger *slog.Logger
	now    Clock
}

func NewJobQueueUseCase(store domain.JobStore, opts JobQueueOptions, logger *slog.Logger, now Clock) *JobQueueUseCase {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = domain.DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 30 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 30 * time.Second
	}
	return &JobQueueUseCase{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "job_queue"),
		now:    clockOrNow(now),
	}
}

// Enqueue stores a PENDING job. A nil scheduledAt means run as soon as possible.
func (q *JobQueueUseCase) Enqueue(ctx context.Context, jobType string, payload map[string]any, priority int, scheduledAt *time.Time) (string, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return "", fmt.Errorf("%w: job_type is required", domain.ErrInvalidArgument)
	}
	now := q.now()
	job := domain.Job{
		JobType:     jobType,
		Payload:     payload,
		Priority:    priority,
		Status:      domain.JobPending,
		MaxAttempts: q.opts.MaxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if scheduledAt != nil {
		job.ScheduledAt = scheduledAt.UTC()
	}
	id, err := q.store.Enqueue(ctx, job)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	q.logger.Debug("Job enqueued", "job_id", id, "job_type", jobType, "priority", priority)
	return id, nil
}

// Poll leases up to limit runnable jobs.
func (q *JobQueueUseCase) Poll(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	jobs, err := q.store.Poll(ctx, limit, q.now(), q.opts.Lease)
	if err != nil {
		return nil, fmt.Errorf("poll jobs: %w", err)
	}
	return jobs, nil
}

func (q *JobQueueUseCase) Complete(ctx context.Context, id string) error {
	if err := q.store.Complete(ctx, id, q.now()); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a failed attempt and reschedules the job with exponential backoff.
// The returned job is FAILED once its attempts are exhausted.
func (q *JobQueueUseCase) Fail(ctx context.Context, id string, cause error) (*domain.Job, error) {
	current, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}
	now := q.now()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	job, err := q.store.Fail(ctx, id, domain.JobFailure{
		Error:   msg,
		At:      now,
		RetryAt: now.Add(q.Backoff(current.Attempts + 1)),
	})
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}
	if job.Status == domain.JobFailed {
		q.logger.Error("Job exhausted its attempts", "job_id", id, "job_type", job.JobType, "attempts", job.Attempts, "error", msg)
	} else {
		q.logger.Warn("Job failed, retry scheduled", "job_id", id, "job_type", job.JobType, "attempt", job.Attempts, "retry_at", job.ScheduledAt, "error", msg)
	}
	return job, nil
}

// Backoff returns the delay before retrying after the given attempt number (1-based).
func (q *JobQueueUseCase) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := q.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxJobBackoff {
			return maxJobBackoff
		}
	}
	return d
}

// Retry re-enqueues a FAILED job with a fresh attempt budget.
func (q *JobQueueUseCase) Retry(ctx context.Context, id string) (*domain.Job, error) {
	job, err := q.store.Retry(ctx, id, q.now())
	if err != nil {
		return nil, fmt.Errorf("retry job %s: %w", id, err)
	}
	q.logger.Info("Job manually retried", "job_id", id, "job_type", job.JobType)
	return job, nil
}

func (q *JobQueueUseCase) Get(ctx context.Context, id string) (*domain.Job, error) {
	return q.store.Get(ctx, id)
}

func (q *JobQueueUseCase) Stats(ctx context.Context) (domain.QueueStats, error) {
	return q.store.Stats(ctx)
}
