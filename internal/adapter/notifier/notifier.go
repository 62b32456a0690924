// Package notifier delivers job notifications outside the process.
package notifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/V4T54L/carepulse/internal/domain"
)

// LogNotifier writes notifications to the structured log. It is the fallback when no
// webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, subject string, body map[string]any) error {
	attrs := []any{"subject", subject}
	for k, v := range body {
		attrs = append(attrs, k, v)
	}
	n.logger.InfoContext(ctx, "Notification", attrs...)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, subject string, body map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
