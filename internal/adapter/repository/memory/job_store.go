package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
)

// JobStore is an in-memory domain.JobStore.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func (s *JobStore) Enqueue(_ context.Context, job domain.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = domain.DefaultMaxAttempts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
	return job.ID, nil
}

func (s *JobStore) Poll(_ context.Context, limit int, now time.Time, lease time.Duration) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*domain.Job
	for _, j := range s.jobs {
		if j.Pollable(now) {
			ready = append(ready, j)
		}
	}
	sort.Slice(ready, func(a, b int) bool {
		if ready[a].Priority != ready[b].Priority {
			return ready[a].Priority > ready[b].Priority
		}
		return ready[a].ScheduledAt.Before(ready[b].ScheduledAt)
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]domain.Job, 0, len(ready))
	for _, j := range ready {
		out = append(out, *j)
		j.ScheduledAt = now.Add(lease)
	}
	return out, nil
}

func (s *JobStore) Complete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != domain.JobPending {
		return domain.ErrInvalidTransition
	}
	j.Status = domain.JobCompleted
	j.LastAttemptAt = &at
	return nil
}

func (s *JobStore) Fail(_ context.Context, id string, failure domain.JobFailure) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != domain.JobPending {
		return nil, domain.ErrInvalidTransition
	}
	at := failure.At
	j.Attempts++
	j.ErrorMessage = failure.Error
	j.LastAttemptAt = &at
	if j.Attempts >= j.MaxAttempts {
		j.Status = domain.JobFailed
	} else {
		j.ScheduledAt = failure.RetryAt
	}
	out := *j
	return &out, nil
}

func (s *JobStore) Retry(_ context.Context, id string, at time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != domain.JobFailed {
		return nil, domain.ErrInvalidTransition
	}
	j.Status = domain.JobPending
	j.Attempts = 0
	j.ScheduledAt = at
	out := *j
	return &out, nil
}

func (s *JobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (s *JobStore) Stats(_ context.Context) (domain.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.QueueStats
	for _, j := range s.jobs {
		switch j.Status {
		case domain.JobPending:
			st.Pending++
			if st.OldestPending == nil || j.CreatedAt.Before(*st.OldestPending) {
				created := j.CreatedAt
				st.OldestPending = &created
			}
		case domain.JobCompleted:
			st.Completed++
		case domain.JobFailed:
			st.Failed++
		}
	}
	return st, nil
}
