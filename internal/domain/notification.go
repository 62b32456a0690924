package domain

import "time"

// Fan-out channels.
const (
	GlobalChannel = "alerts"
)

// Message types published on fan-out channels.
const (
	EventAlertTriggered     = "alert.triggered"
	EventAlertAcknowledged  = "alert.acknowledged"
	EventAlertResolved      = "alert.resolved"
	EventRuleToggled        = "rule.toggled"
	EventUrgentAlertCreated = "urgent_alert.created"
	EventEntityTransition   = "entity.transition"
)

// EntityChannel returns the channel scoped to a single entity, e.g. "patient:42".
func EntityChannel(category, entityID string) string {
	return category + ":" + entityID
}

// Message is the envelope delivered to subscribers.
type Message struct {
	Type      string         `json:"type"`
	EntityID  string         `json:"entity_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Subscription binds a subscriber to a channel, optionally narrowed by attribute filters.
type Subscription struct {
	ID           string            `json:"id"`
	SubscriberID string            `json:"subscriber_id"`
	Channel      string            `json:"channel"`
	Filter       map[string]string `json:"filter,omitempty"`
}
