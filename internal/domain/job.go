package domain

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Job types dispatched by the worker.
const (
	JobAlertEscalate     = "alert.escalate"
	JobUrgentAlertNotify = "urgent_alert.notify"
)

// Job priorities. Higher values are polled first.
const (
	JobPriorityNormal    = 0
	JobPriorityImmediate = 10
)

// DefaultMaxAttempts is used when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

// Job is a durable, retryable unit of asynchronous work.
type Job struct {
	ID            string         `json:"id"`
	JobType       string         `json:"job_type"`
	Payload       map[string]any `json:"payload"`
	Priority      int            `json:"priority"`
	Status        JobStatus      `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"max_attempts"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Pollable reports whether the job may be handed to a worker at now.
func (j Job) Pollable(now time.Time) bool {
	return j.Status == JobPending && j.Attempts < j.MaxAttempts && !j.ScheduledAt.After(now)
}

// JobFailure describes one failed attempt.
type JobFailure struct {
	Error string
	At    time.Time
	// RetryAt is the next scheduled time if attempts remain.
	RetryAt time.Time
}
