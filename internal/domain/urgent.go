package domain

import "time"

// UrgentStatus is the processing state of an UrgentAlert.
type UrgentStatus string

const (
	UrgentPending   UrgentStatus = "PENDING"
	UrgentProcessed UrgentStatus = "PROCESSED"
)

// Priority is the pending-queue tier. Urgent items always drain before normal ones.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityNormal Priority = "NORMAL"
)

// Tiers lists priorities in drain order.
var Tiers = []Priority{PriorityUrgent, PriorityNormal}

// UrgentAlert is a short-lived, entity-scoped alert. It is discarded at ExpiresAt
// whether or not it was processed.
type UrgentAlert struct {
	ID        string       `json:"id"`
	EntityID  string       `json:"entity_id"`
	Category  string       `json:"category"`
	Message   string       `json:"message"`
	OldValue  string       `json:"old_value,omitempty"`
	NewValue  string       `json:"new_value"`
	Priority  Priority     `json:"priority"`
	Status    UrgentStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the alert's TTL has elapsed at now.
func (a UrgentAlert) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Transition is an entity state change reported by an external collaborator.
type Transition struct {
	EntityID string `json:"entity_id"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Category string `json:"category"`
}
