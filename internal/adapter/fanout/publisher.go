package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/V4T54L/carepulse/internal/adapter/pii"
	"github.com/V4T54L/carepulse/internal/domain"
)

// MultiPublisher publishes to every wrapped publisher and joins their errors.
type MultiPublisher struct {
	publishers []domain.Publisher
}

// NewMultiPublisher skips nil publishers.
func NewMultiPublisher(publishers ...domain.Publisher) MultiPublisher {
	filtered := make([]domain.Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return MultiPublisher{publishers: filtered}
}

func (m MultiPublisher) Publish(ctx context.Context, channel string, msg domain.Message) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish to %s: %w", channel, errors.Join(errs...))
	}
	return nil
}

// RedactingPublisher masks protected fields before handing the message on.
type RedactingPublisher struct {
	next     domain.Publisher
	redactor *pii.Redactor
}

func NewRedactingPublisher(next domain.Publisher, redactor *pii.Redactor) *RedactingPublisher {
	return &RedactingPublisher{next: next, redactor: redactor}
}

func (r *RedactingPublisher) Publish(ctx context.Context, channel string, msg domain.Message) error {
	msg, _ = r.redactor.Redact(msg)
	return r.next.Publish(ctx, channel, msg)
}
