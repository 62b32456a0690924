package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

// SampleRecorder accepts metric samples. RecordMetricUseCase satisfies it.
type SampleRecorder interface {
	Record(ctx context.Context, sample domain.MetricSample) error
}

// UrgentAlertOptions configures transition classification.
type UrgentAlertOptions struct {
	TTL           time.Duration
	UrgentValues  []string
	TerminalValue string
}

// UrgentAlertUseCase turns entity transitions into short-lived urgent alerts.
// Storage failures are logged and never returned to the reporter.
type UrgentAlertUseCase struct {
	store     domain.UrgentStore
	recorder  SampleRecorder
	publisher domain.Publisher
	enqueuer  domain.Enqueuer
	ttl       time.Duration
	urgent    map[string]struct{}
	terminal  string
	metrics   *metrics.SignalMetrics
	logger    *slog.Logger
	now       Clock
}

// NewUrgentAlertUseCase creates the service. recorder, publisher and enqueuer may be nil.
func NewUrgentAlertUseCase(store domain.UrgentStore, recorder SampleRecorder, publisher domain.Publisher, enqueuer domain.Enqueuer, opts UrgentAlertOptions, m *metrics.SignalMetrics, logger *slog.Logger, now Clock) *UrgentAlertUseCase {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	urgent := make(map[string]struct{}, len(opts.UrgentValues))
	for _, v := range opts.UrgentValues {
		if v = normalizeValue(v); v != "" {
			urgent[v] = struct{}{}
		}
	}
	return &UrgentAlertUseCase{
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		enqueuer:  enqueuer,
		ttl:       opts.TTL,
		urgent:    urgent,
		terminal:  normalizeValue(opts.TerminalValue),
		metrics:   m,
		logger:    logger.With("component", "urgent_alerts"),
		now:       clockOrNow(now),
	}
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Classify returns the tier for a transition, or false when it is not urgent.
func (uc *UrgentAlertUseCase) Classify(oldValue, newValue string) (domain.Priority, bool) {
	oldValue, newValue = normalizeValue(oldValue), normalizeValue(newValue)
	if _, ok := uc.urgent[newValue]; ok {
		return domain.PriorityUrgent, true
	}
	if uc.terminal != "" && oldValue != newValue && newValue == uc.terminal {
		return domain.PriorityNormal, true
	}
	return "", false
}

// ReportTransition records the transition and, when it is urgent, creates an alert,
// announces it on the entity and global channels and schedules a notification job.
// It returns the created alert, or nil when the transition was not urgent or could
// not be stored.
func (uc *UrgentAlertUseCase) ReportTransition(ctx context.Context, tr domain.Transition) (*domain.UrgentAlert, error) {
	tr.EntityID = strings.TrimSpace(tr.EntityID)
	if tr.EntityID == "" || strings.TrimSpace(tr.NewValue) == "" {
		return nil, fmt.Errorf("%w: entity_id and new_value are required", domain.ErrInvalidArgument)
	}
	if tr.Category == "" {
		tr.Category = "patient"
	}
	now := uc.now()
	log := uc.logger.With("entity_id", tr.EntityID, "category", tr.Category)

	if uc.recorder != nil {
		sample := domain.MetricSample{
			Type:      domain.StatusSampleType(normalizeValue(tr.NewValue)),
			Value:     1,
			Timestamp: now,
			Metadata:  map[string]any{"entity_id": tr.EntityID, "old_value": tr.OldValue, "category": tr.Category},
		}
		if err := uc.recorder.Record(ctx, sample); err != nil {
			log.Warn("Failed to record transition sample", "error", err)
		}
	}

	priority, urgent := uc.Classify(tr.OldValue, tr.NewValue)
	if !urgent {
		uc.publish(ctx, domain.EntityChannel(tr.Category, tr.EntityID), domain.Message{
			Type:      domain.EventEntityTransition,
			EntityID:  tr.EntityID,
			Timestamp: now,
			Payload:   map[string]any{"old_value": tr.OldValue, "new_value": tr.NewValue, "category": tr.Category},
		})
		return nil, nil
	}

	alert := domain.UrgentAlert{
		ID:        uuid.NewString(),
		EntityID:  tr.EntityID,
		Category:  tr.Category,
		Message:   fmt.Sprintf("%s %s changed from %q to %q", tr.Category, tr.EntityID, tr.OldValue, tr.NewValue),
		OldValue:  tr.OldValue,
		NewValue:  tr.NewValue,
		Priority:  priority,
		Status:    domain.UrgentPending,
		CreatedAt: now,
		ExpiresAt: now.Add(uc.ttl),
	}
	if err := uc.store.Create(ctx, alert, uc.ttl); err != nil {
		log.Error("Failed to store urgent alert", "error", err)
		return nil, nil
	}
	log.Info("Urgent alert created", "alert_id", alert.ID, "priority", priority, "new_value", tr.NewValue)
	uc.metrics.UrgentAlertCreated(string(priority))

	msg := domain.Message{
		Type:      domain.EventUrgentAlertCreated,
		EntityID:  alert.EntityID,
		Timestamp: now,
		Payload:   urgentPayload(alert),
	}
	uc.publish(ctx, domain.EntityChannel(alert.Category, alert.EntityID), msg)
	uc.publish(ctx, domain.GlobalChannel, msg)

	if uc.enqueuer != nil {
		jobPriority := domain.JobPriorityNormal
		if priority == domain.PriorityUrgent {
			jobPriority = domain.JobPriorityImmediate
		}
		if _, err := uc.enqueuer.Enqueue(ctx, domain.JobUrgentAlertNotify, urgentPayload(alert), jobPriority, nil); err != nil {
			log.Error("Failed to enqueue urgent alert notification", "alert_id", alert.ID, "error", err)
		}
	}
	return &alert, nil
}

// Pending returns the ids awaiting delivery, URGENT tier first.
func (uc *UrgentAlertUseCase) Pending(ctx context.Context) ([]string, error) {
	ids, err := uc.store.Pending(ctx, uc.now())
	if err != nil {
		uc.logger.Warn("Failed to read pending urgent alerts", "error", err)
		return nil, nil
	}
	return ids, nil
}

func (uc *UrgentAlertUseCase) Get(ctx context.Context, id string) (*domain.UrgentAlert, error) {
	return uc.store.Get(ctx, id)
}

// MarkProcessed flips an alert to PROCESSED. Unknown or expired ids are ignored.
func (uc *UrgentAlertUseCase) MarkProcessed(ctx context.Context, id string) error {
	if err := uc.store.MarkProcessed(ctx, id); err != nil {
		uc.logger.Warn("Failed to mark urgent alert processed", "alert_id", id, "error", err)
	}
	return nil
}

// Purge drops expired entries from the pending queues. It runs as evaluator maintenance.
func (uc *UrgentAlertUseCase) Purge(ctx context.Context) error {
	n, err := uc.store.Purge(ctx, uc.now())
	if err != nil {
		return fmt.Errorf("purge urgent alerts: %w", err)
	}
	if n > 0 {
		uc.logger.Debug("Purged expired urgent alerts", "count", n)
	}
	return nil
}

func (uc *UrgentAlertUseCase) publish(ctx context.Context, channel string, msg domain.Message) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, channel, msg); err != nil {
		uc.logger.Warn("Failed to publish", "channel", channel, "type", msg.Type, "error", err)
	}
}

func urgentPayload(a domain.UrgentAlert) map[string]any {
	return map[string]any{
		"alert_id":   a.ID,
		"entity_id":  a.EntityID,
		"category":   a.Category,
		"message":    a.Message,
		"old_value":  a.OldValue,
		"new_value":  a.NewValue,
		"priority":   string(a.Priority),
		"expires_at": a.ExpiresAt,
	}
}
