package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/V4T54L/carepulse/internal/domain"
)

// EscalationHandler notifies on-call staff about a CRITICAL or HIGH alert.
func EscalationHandler(notifier domain.Notifier) JobHandler {
	return func(ctx context.Context, job domain.Job) error {
		if _, ok := job.Payload["alert_id"].(string); !ok {
			return fmt.Errorf("%w: escalation payload has no alert_id", domain.ErrInvalidArgument)
		}
		return notifier.Notify(ctx, fmt.Sprintf("[%v] %v", job.Payload["severity"], job.Payload["title"]), job.Payload)
	}
}

// UrgentNotifyHandler delivers an urgent alert and marks it processed. An alert that
// expired before delivery is dropped without notifying.
func UrgentNotifyHandler(notifier domain.Notifier, urgent *UrgentAlertUseCase) JobHandler {
	return func(ctx context.Context, job domain.Job) error {
		id, ok := job.Payload["alert_id"].(string)
		if !ok {
			return fmt.Errorf("%w: urgent payload has no alert_id", domain.ErrInvalidArgument)
		}
		alert, err := urgent.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if alert.Status == domain.UrgentProcessed {
			return nil
		}
		if err := notifier.Notify(ctx, fmt.Sprintf("[%s] %s", alert.Priority, alert.Message), urgentPayload(*alert)); err != nil {
			return err
		}
		return urgent.MarkProcessed(ctx, id)
	}
}
