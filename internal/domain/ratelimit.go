package domain

import "time"

// Limit is a sliding-window request allowance.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Decision is the outcome of a rate-limit check. Metadata fields are always populated,
// including when the limiter fails open.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Key        string        `json:"key"`
	Scope      string        `json:"scope"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	Window     time.Duration `json:"-"`
	RetryAfter time.Duration `json:"-"`
	// Degraded is set when the store could not be consulted and the request was let through.
	Degraded bool `json:"degraded,omitempty"`
}
