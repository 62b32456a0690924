package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/V4T54L/carepulse/internal/domain"
)

// AlertAdminUseCase serves the operator surface over alerts and rules. Every state
// change is announced on the global channel.
type AlertAdminUseCase struct {
	alerts    domain.AlertStore
	catalog   *RuleCatalog
	publisher domain.Publisher
	logger    *slog.Logger
	now       Clock
}

func NewAlertAdminUseCase(alerts domain.AlertStore, catalog *RuleCatalog, publisher domain.Publisher, logger *slog.Logger, now Clock) *AlertAdminUseCase {
	return &AlertAdminUseCase{
		alerts:    alerts,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger.With("component", "alert_admin"),
		now:       clockOrNow(now),
	}
}

func (uc *AlertAdminUseCase) List(ctx context.Context, filter domain.AlertFilter) ([]domain.ActiveAlert, error) {
	if filter.Status != "" {
		switch filter.Status {
		case domain.AlertActive, domain.AlertAcknowledged, domain.AlertResolved:
		default:
			return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, filter.Status)
		}
	}
	return uc.alerts.List(ctx, filter)
}

func (uc *AlertAdminUseCase) Get(ctx context.Context, id string) (*domain.ActiveAlert, error) {
	return uc.alerts.Get(ctx, id)
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED on behalf of by.
func (uc *AlertAdminUseCase) Acknowledge(ctx context.Context, id, by string) (*domain.ActiveAlert, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return nil, fmt.Errorf("%w: acknowledged_by is required", domain.ErrInvalidArgument)
	}
	alert, err := uc.alerts.Acknowledge(ctx, id, by, uc.now())
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	uc.logger.Info("Alert acknowledged", "alert_id", id, "by", by)
	uc.publish(ctx, domain.EventAlertAcknowledged, alertPayload(*alert))
	return alert, nil
}

// Resolve marks an alert RESOLVED. Resolving an already resolved alert returns it
// unchanged and publishes nothing.
func (uc *AlertAdminUseCase) Resolve(ctx context.Context, id string) (*domain.ActiveAlert, error) {
	alert, changed, err := uc.alerts.Resolve(ctx, id, uc.now())
	if err != nil {
		return nil, fmt.Errorf("resolve alert %s: %w", id, err)
	}
	if changed {
		uc.logger.Info("Alert resolved", "alert_id", id, "rule", alert.RuleName)
		uc.publish(ctx, domain.EventAlertResolved, alertPayload(*alert))
	}
	return alert, nil
}

func (uc *AlertAdminUseCase) Rules() []domain.AlertRule {
	return uc.catalog.List()
}

// SetRuleEnabled toggles a rule. Open alerts of a disabled rule are left as they are.
func (uc *AlertAdminUseCase) SetRuleEnabled(ctx context.Context, name string, enabled bool) (domain.AlertRule, error) {
	rule, err := uc.catalog.SetEnabled(name, enabled)
	if err != nil {
		return domain.AlertRule{}, err
	}
	uc.logger.Info("Rule toggled", "rule", name, "enabled", enabled)
	uc.publish(ctx, domain.EventRuleToggled, map[string]any{
		"rule_name": rule.Name,
		"enabled":   rule.Enabled,
		"severity":  string(rule.Severity),
	})
	return rule, nil
}

func (uc *AlertAdminUseCase) publish(ctx context.Context, eventType string, payload map[string]any) {
	if uc.publisher == nil {
		return
	}
	msg := domain.Message{Type: eventType, Timestamp: uc.now(), Payload: payload}
	if err := uc.publisher.Publish(ctx, domain.GlobalChannel, msg); err != nil {
		uc.logger.Warn("Failed to publish alert event", "type", eventType, "error", err)
	}
}
