package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
)

const jobColumns = `id, job_type, payload, priority, status, attempts, max_attempts,
	scheduled_at, last_attempt_at, error_message, created_at`

// JobStore implements domain.JobStore on the jobs table.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a PostgreSQL job store.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = domain.DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	payload, err := marshalJSON(job.Payload)
	if err != nil {
		return "", err
	}
	if payload == nil {
		payload = "{}"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, payload, priority, status, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6, $7)`,
		job.ID, job.JobType, payload, job.Priority, job.MaxAttempts, job.ScheduledAt, job.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// Poll claims ready rows with SKIP LOCKED so concurrent workers never block on or
// double-claim the same job, then leases them by pushing scheduled_at forward.
func (s *JobStore) Poll(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH next AS (
			SELECT id, scheduled_at FROM jobs
			WHERE status = 'PENDING' AND scheduled_at <= $1 AND attempts < max_attempts
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j SET scheduled_at = $3
		FROM next WHERE j.id = next.id
		RETURNING j.id, j.job_type, j.payload, j.priority, j.status, j.attempts, j.max_attempts,
			next.scheduled_at, j.last_attempt_at, j.error_message, j.created_at`,
		now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to poll jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the CTE order.
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].Priority != jobs[b].Priority {
			return jobs[a].Priority > jobs[b].Priority
		}
		return jobs[a].ScheduledAt.Before(jobs[b].ScheduledAt)
	})
	return jobs, nil
}

// Complete only applies to PENDING jobs; FAILED jobs need a Retry first.
func (s *JobStore) Complete(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'COMPLETED', last_attempt_at = $2 WHERE id = $1 AND status = 'PENDING'`, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// Fail increments attempts and decides the next state in a single statement.
func (s *JobStore) Fail(ctx context.Context, id string, failure domain.JobFailure) (*domain.Job, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET
			attempts = attempts + 1,
			error_message = $2,
			last_attempt_at = $3,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'FAILED' ELSE status END,
			scheduled_at = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_at ELSE $4 END
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+jobColumns, id, failure.Error, failure.At, failure.RetryAt)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidTransition
	}
	return job, err
}

func (s *JobStore) Retry(ctx context.Context, id string, at time.Time) (*domain.Job, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = 'PENDING', attempts = 0, scheduled_at = $2
		WHERE id = $1 AND status = 'FAILED'
		RETURNING `+jobColumns, id, at)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidTransition
	}
	return job, err
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	return scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (s *JobStore) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*), min(created_at) FROM jobs GROUP BY status`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	defer rows.Close()

	var st domain.QueueStats
	for rows.Next() {
		var status domain.JobStatus
		var n int64
		var oldest sql.NullTime
		if err := rows.Scan(&status, &n, &oldest); err != nil {
			return domain.QueueStats{}, err
		}
		switch status {
		case domain.JobPending:
			st.Pending = n
			if oldest.Valid {
				st.OldestPending = &oldest.Time
			}
		case domain.JobCompleted:
			st.Completed = n
		case domain.JobFailed:
			st.Failed = n
		}
	}
	return st, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j        domain.Job
		payload  []byte
		lastAt   sql.NullTime
		errorMsg sql.NullString
	)
	err := row.Scan(&j.ID, &j.JobType, &payload, &j.Priority, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.ScheduledAt, &lastAt, &errorMsg, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}
	if lastAt.Valid {
		j.LastAttemptAt = &lastAt.Time
	}
	j.ErrorMessage = errorMsg.String
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
