package domain

import "time"

// QueueStats summarizes the background job queue.
type QueueStats struct {
	Pending       int64      `json:"pending"`
	Completed     int64      `json:"completed"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// BackendHealth reports the reachability of a storage backend.
type BackendHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// StatusReport is served on the admin status endpoint.
type StatusReport struct {
	Backends      []BackendHealth `json:"backends"`
	Queue         QueueStats      `json:"queue"`
	PendingUrgent int             `json:"pending_urgent"`
	Subscribers   int             `json:"subscribers"`
	LastTick      *time.Time      `json:"last_evaluator_tick,omitempty"`
}
