package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

// JobHandler executes one job. A returned error fails the attempt.
type JobHandler func(ctx context.Context, job domain.Job) error

// ProcessJobsUseCase polls the queue and dispatches jobs to handlers by type.
type ProcessJobsUseCase struct {
	queue     *JobQueueUseCase
	batchSize int
	metrics   *metrics.SignalMetrics
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewProcessJobsUseCase(queue *JobQueueUseCase, batchSize int, m *metrics.SignalMetrics, logger *slog.Logger) *ProcessJobsUseCase {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ProcessJobsUseCase{
		queue:     queue,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger.With("component", "job_worker"),
		handlers:  make(map[string]JobHandler),
	}
}

// Register binds a handler to a job type, replacing any previous one.
func (uc *ProcessJobsUseCase) Register(jobType string, h JobHandler) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.handlers[jobType] = h
}

func (uc *ProcessJobsUseCase) handler(jobType string) (JobHandler, bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	h, ok := uc.handlers[jobType]
	return h, ok
}

// ProcessBatch polls one batch and runs it. It returns the number of jobs completed.
func (uc *ProcessJobsUseCase) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := uc.queue.Poll(ctx, uc.batchSize)
	if err != nil {
		uc.logger.Error("Failed to poll jobs", "error", err)
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	completed := 0
	for _, job := range jobs {
		if uc.dispatch(ctx, job) {
			completed++
		}
	}
	uc.logger.Debug("Processed job batch", "polled", len(jobs), "completed", completed)
	return completed, nil
}

func (uc *ProcessJobsUseCase) dispatch(ctx context.Context, job domain.Job) bool {
	ctx, span := otel.Tracer("job-worker").Start(ctx, "JobDispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempt", job.Attempts+1),
	)

	log := uc.logger.With("job_id", job.ID, "job_type", job.JobType)

	var runErr error
	h, ok := uc.handler(job.JobType)
	if !ok {
		runErr = fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.JobType)
	} else {
		runErr = h(ctx, job)
	}

	if runErr == nil {
		if err := uc.queue.Complete(ctx, job.ID); err != nil {
			log.Error("Failed to mark job completed", "error", err)
			return false
		}
		uc.metrics.JobProcessed(job.JobType, "completed")
		return true
	}

	span.RecordError(runErr)
	span.SetStatus(codes.Error, runErr.Error())
	failed, err := uc.queue.Fail(ctx, job.ID, runErr)
	if err != nil {
		log.Error("Failed to record job failure", "error", err, "cause", runErr)
		return false
	}
	if failed.Status == domain.JobFailed || errors.Is(runErr, domain.ErrUnknownJobType) {
		uc.metrics.JobProcessed(job.JobType, "failed")
	} else {
		uc.metrics.JobProcessed(job.JobType, "retried")
	}
	return false
}

// Run processes batches on every interval until ctx is cancelled.
func (uc *ProcessJobsUseCase) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uc.logger.Info("Job worker started", "interval", interval, "batch_size", uc.batchSize)

Loop:
	for {
		select {
		case <-ticker.C:
			// Drain while full batches keep coming.
			for {
				n, err := uc.ProcessBatch(ctx)
				if err != nil || n < uc.batchSize || ctx.Err() != nil {
					break
				}
			}
		case <-ctx.Done():
			break Loop
		}
	}
	uc.logger.Info("Job worker stopped")
}
