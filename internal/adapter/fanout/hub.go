package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

// Hub is the in-process subscription registry. Delivery is best-effort and
// at-most-once: nothing is buffered for subscribers that are not attached.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.SignalMetrics

	mu            sync.RWMutex
	subscribers   map[string]Subscriber
	subscriptions map[string]map[string]domain.Subscription // subscriber id -> subscription id -> subscription
}

// NewHub creates an empty hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.SignalMetrics) *Hub {
	return &Hub{
		logger:        logger.With("component", "fanout_hub"),
		metrics:       m,
		subscribers:   make(map[string]Subscriber),
		subscriptions: make(map[string]map[string]domain.Subscription),
	}
}

// Attach registers a connected subscriber. Re-attaching an id replaces the old connection.
func (h *Hub) Attach(s Subscriber) {
	h.mu.Lock()
	old, replaced := h.subscribers[s.ID()]
	h.subscribers[s.ID()] = s
	if _, ok := h.subscriptions[s.ID()]; !ok {
		h.subscriptions[s.ID()] = make(map[string]domain.Subscription)
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	if replaced && old != s {
		old.Close()
	}
	h.metrics.SetSubscribers(n)
}

// Detach closes the subscriber and deletes all of its subscriptions.
func (h *Hub) Detach(subscriberID string) {
	h.mu.Lock()
	s, ok := h.subscribers[subscriberID]
	delete(h.subscribers, subscriberID)
	delete(h.subscriptions, subscriberID)
	n := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		s.Close()
		h.metrics.SetSubscribers(n)
	}
}

// Release detaches s if it is still the connection registered under its id. A
// connection that was replaced by a reconnect is only closed.
func (h *Hub) Release(s Subscriber) {
	h.mu.Lock()
	current, ok := h.subscribers[s.ID()]
	registered := ok && current == s
	if registered {
		delete(h.subscribers, s.ID())
		delete(h.subscriptions, s.ID())
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	s.Close()
	if registered {
		h.metrics.SetSubscribers(n)
	}
}

// Subscribe binds an attached subscriber to a channel. Subscribing twice with the same
// channel and filter returns the existing subscription.
func (h *Hub) Subscribe(subscriberID, channel string, filter map[string]string) (domain.Subscription, error) {
	if channel == "" {
		return domain.Subscription{}, fmt.Errorf("%w: empty channel", domain.ErrInvalidArgument)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[subscriberID]
	if !ok {
		return domain.Subscription{}, fmt.Errorf("subscriber %s: %w", subscriberID, domain.ErrNotFound)
	}
	for _, existing := range subs {
		if existing.Channel == channel && maps.Equal(existing.Filter, filter) {
			return existing, nil
		}
	}

	sub := domain.Subscription{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		Channel:      channel,
		Filter:       maps.Clone(filter),
	}
	subs[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes every subscription of the subscriber on channel. Unknown
// subscribers and channels are ignored.
func (h *Hub) Unsubscribe(subscriberID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscriptions[subscriberID] {
		if sub.Channel == channel {
			delete(h.subscriptions[subscriberID], id)
		}
	}
}

// Subscriptions returns a snapshot of a subscriber's subscriptions.
func (h *Hub) Subscriptions(subscriberID string) []domain.Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Subscription, 0, len(h.subscriptions[subscriberID]))
	for _, sub := range h.subscriptions[subscriberID] {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers msg to every attached subscriber with a matching subscription.
// Each subscriber receives the message at most once. Subscribers that have gone away
// are detached; slow ones miss the message.
func (h *Hub) Publish(_ context.Context, channel string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.RLock()
	var targets []Subscriber
	for id, subs := range h.subscriptions {
		for _, sub := range subs {
			if channelMatches(sub.Channel, channel) && filterMatches(sub.Filter, msg) {
				if s, ok := h.subscribers[id]; ok {
					targets = append(targets, s)
				}
				break
			}
		}
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, s := range targets {
		err := s.Send(payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrClosed):
			dropped++
			h.Detach(s.ID())
		default:
			dropped++
			h.logger.Warn("Dropping message for slow subscriber", "subscriber_id", s.ID(), "channel", channel, "error", err)
		}
	}
	h.metrics.FanoutResult(delivered, dropped)
	return nil
}
