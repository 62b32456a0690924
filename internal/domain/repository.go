package domain

import (
	"context"
	"time"
)

// CounterStore is the append-only store of time-stamped metric samples.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Record appends a sample.
	Record(ctx context.Context, sample MetricSample) error

	// QueryWindow returns every sample of the type with Timestamp >= since, oldest first.
	QueryWindow(ctx context.Context, metricType string, since time.Time) ([]MetricSample, error)

	// CountWindow returns the number of samples of the type with Timestamp >= since.
	CountWindow(ctx context.Context, metricType string, since time.Time) (int64, error)

	// AddIfBelow atomically drops samples of key older than windowStart, counts the rest
	// and appends a sample at now only if the count is below limit.
	AddIfBelow(ctx context.Context, key string, windowStart, now time.Time, limit int) (WindowCount, error)

	// Compact deletes samples older than before across all types.
	Compact(ctx context.Context, before time.Time) (int64, error)
}

// AlertStore persists ActiveAlerts. At most one non-resolved alert may exist per rule name.
type AlertStore interface {
	// CreateIfNoneActive inserts the alert unless a non-resolved alert for the same
	// rule already exists. It reports whether the alert was created.
	CreateIfNoneActive(ctx context.Context, alert *ActiveAlert) (bool, error)

	// GetActive returns the non-resolved alert for a rule, or ErrNotFound.
	GetActive(ctx context.Context, ruleName string) (*ActiveAlert, error)

	Get(ctx context.Context, id string) (*ActiveAlert, error)
	List(ctx context.Context, filter AlertFilter) ([]ActiveAlert, error)

	// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED.
	Acknowledge(ctx context.Context, id, by string, at time.Time) (*ActiveAlert, error)

	// Resolve marks an alert RESOLVED. Resolving a resolved alert returns it unchanged
	// with changed=false; changed is true only for the call that performed the transition.
	Resolve(ctx context.Context, id string, at time.Time) (alert *ActiveAlert, changed bool, err error)

	// ResolveOlderThan resolves every non-resolved alert triggered before cutoff.
	ResolveOlderThan(ctx context.Context, cutoff, at time.Time) ([]ActiveAlert, error)
}

// UrgentStore holds short-lived urgent alerts and their tiered pending queues.
type UrgentStore interface {
	// Create stores the alert for ttl and appends it to its tier queue.
	Create(ctx context.Context, alert UrgentAlert, ttl time.Duration) error

	Get(ctx context.Context, id string) (*UrgentAlert, error)

	// MarkProcessed flips a live alert to PROCESSED and removes it from its tier queue.
	// Unknown or expired ids are not an error.
	MarkProcessed(ctx context.Context, id string) error

	// Pending returns unexpired PENDING alert ids, URGENT tier first, FIFO within a tier.
	Pending(ctx context.Context, now time.Time) ([]string, error)

	// Purge drops queue entries whose alert has expired.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// JobStore persists background jobs.
type JobStore interface {
	Enqueue(ctx context.Context, job Job) (string, error)

	// Poll returns up to limit pollable jobs ordered by priority desc, scheduled_at asc,
	// and leases them by moving scheduled_at to now+lease.
	Poll(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]Job, error)

	Complete(ctx context.Context, id string, at time.Time) error

	// Fail records a failed attempt. The job becomes FAILED once attempts reach max_attempts.
	Fail(ctx context.Context, id string, failure JobFailure) (*Job, error)

	// Retry resets a FAILED job to PENDING with a fresh attempt budget.
	Retry(ctx context.Context, id string, at time.Time) (*Job, error)

	Get(ctx context.Context, id string) (*Job, error)

	// Stats summarizes the queue for the admin surface.
	Stats(ctx context.Context) (QueueStats, error)
}

// WALRepository is the local write-ahead log used when the counter store backend is down.
type WALRepository interface {
	// Write appends a sample to the current segment.
	Write(ctx context.Context, sample MetricSample) error

	// Replay feeds every buffered sample to handler, oldest segment first, and
	// discards what was handled. Samples written during a replay are kept.
	Replay(ctx context.Context, handler func(sample MetricSample) error) error
}

// Publisher delivers a message to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

// Enqueuer schedules a follow-up job.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]any, priority int, scheduledAt *time.Time) (string, error)
}

// Notifier delivers an out-of-band notification for a job.
type Notifier interface {
	Notify(ctx context.Context, subject string, body map[string]any) error
}
