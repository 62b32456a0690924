package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
)

func TestJobStore_PollOrderAndLease(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	low, _ := s.Enqueue(ctx, domain.Job{JobType: "x", Priority: 0, ScheduledAt: now.Add(-2 * time.Minute)})
	highLate, _ := s.Enqueue(ctx, domain.Job{JobType: "x", Priority: 10, ScheduledAt: now.Add(-time.Minute)})
	highEarly, _ := s.Enqueue(ctx, domain.Job{JobType: "x", Priority: 10, ScheduledAt: now.Add(-3 * time.Minute)})
	_, _ = s.Enqueue(ctx, domain.Job{JobType: "x", Priority: 99, ScheduledAt: now.Add(time.Hour)})

	jobs, err := s.Poll(ctx, 10, now, 30*time.Second)
	require.NoError(t, err)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{highEarly, highLate, low}, ids)

	// Leased jobs are invisible until the lease lapses.
	jobs, _ = s.Poll(ctx, 10, now.Add(10*time.Second), 30*time.Second)
	assert.Empty(t, jobs)
	jobs, _ = s.Poll(ctx, 10, now.Add(31*time.Second), 30*time.Second)
	assert.Len(t, jobs, 3)
}

func TestJobStore_FailExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	now := time.Now()

	id, err := s.Enqueue(ctx, domain.Job{JobType: "alert.escalate", MaxAttempts: 3, ScheduledAt: now})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		j, err := s.Fail(ctx, id, domain.JobFailure{Error: "boom", At: now, RetryAt: now})
		require.NoError(t, err)
		assert.Equal(t, i, j.Attempts)
	}

	j, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, j.Status)
	assert.Equal(t, "boom", j.ErrorMessage)

	jobs, _ := s.Poll(ctx, 10, now.Add(time.Hour), time.Second)
	assert.Empty(t, jobs)

	_, err = s.Fail(ctx, id, domain.JobFailure{Error: "again", At: now})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	retried, err := s.Retry(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, retried.Status)
	assert.Zero(t, retried.Attempts)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
}

func TestJobStore_CompleteOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	now := time.Now()

	id, err := s.Enqueue(ctx, domain.Job{JobType: "alert.escalate", MaxAttempts: 3, ScheduledAt: now})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Fail(ctx, id, domain.JobFailure{Error: "boom", At: now, RetryAt: now})
		require.NoError(t, err)
	}

	// A late worker finishing an exhausted job must not revive it.
	err = s.Complete(ctx, id, now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	j, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, j.Status)

	_, err = s.Retry(ctx, id, now)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, id, now))
	assert.ErrorIs(t, s.Complete(ctx, id, now), domain.ErrInvalidTransition)

	assert.ErrorIs(t, s.Complete(ctx, "missing", now), domain.ErrNotFound)
}
