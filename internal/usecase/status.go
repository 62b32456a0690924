package usecase

import (
	"context"
	"log/slog"

	"github.com/V4T54L/carepulse/internal/domain"
)

// BackendProbe reports whether a storage backend is reachable.
type BackendProbe struct {
	Name  string
	Check func(ctx context.Context) bool
}

// SubscriberCounter is implemented by the fan-out hub.
type SubscriberCounter interface {
	Count() int
}

// StatusUseCase assembles the admin status report. Any dependency may be nil.
type StatusUseCase struct {
	probes      []BackendProbe
	jobs        *JobQueueUseCase
	urgent      *UrgentAlertUseCase
	subscribers SubscriberCounter
	evaluator   *RuleEvaluator
	logger      *slog.Logger
}

func NewStatusUseCase(probes []BackendProbe, jobs *JobQueueUseCase, urgent *UrgentAlertUseCase, subscribers SubscriberCounter, evaluator *RuleEvaluator, logger *slog.Logger) *StatusUseCase {
	return &StatusUseCase{
		probes:      probes,
		jobs:        jobs,
		urgent:      urgent,
		subscribers: subscribers,
		evaluator:   evaluator,
		logger:      logger.With("component", "status"),
	}
}

// Report never fails; unreachable parts are reported as empty.
func (uc *StatusUseCase) Report(ctx context.Context) domain.StatusReport {
	report := domain.StatusReport{Backends: make([]domain.BackendHealth, 0, len(uc.probes))}
	for _, p := range uc.probes {
		report.Backends = append(report.Backends, domain.BackendHealth{Name: p.Name, Available: p.Check(ctx)})
	}
	if uc.jobs != nil {
		stats, err := uc.jobs.Stats(ctx)
		if err != nil {
			uc.logger.Warn("Failed to read queue stats", "error", err)
		}
		report.Queue = stats
	}
	if uc.urgent != nil {
		ids, _ := uc.urgent.Pending(ctx)
		report.PendingUrgent = len(ids)
	}
	if uc.subscribers != nil {
		report.Subscribers = uc.subscribers.Count()
	}
	if uc.evaluator != nil {
		if t, ok := uc.evaluator.LastTick(); ok {
			report.LastTick = &t
		}
	}
	return report
}

// Healthy reports whether every backend probe passes.
func (uc *StatusUseCase) Healthy(ctx context.Context) bool {
	for _, p := range uc.probes {
		if !p.Check(ctx) {
			return false
		}
	}
	return true
}
