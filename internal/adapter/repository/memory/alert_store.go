package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
)

// AlertStore is an in-memory domain.AlertStore.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*domain.ActiveAlert
	// open indexes the non-resolved alert id per rule name.
	open map[string]string
}

// NewAlertStore creates an empty in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		alerts: make(map[string]*domain.ActiveAlert),
		open:   make(map[string]string),
	}
}

func (s *AlertStore) CreateIfNoneActive(_ context.Context, alert *domain.ActiveAlert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[alert.RuleName]; exists {
		return false, nil
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = domain.AlertActive
	}
	stored := *alert
	s.alerts[alert.ID] = &stored
	s.open[alert.RuleName] = alert.ID
	return true, nil
}

func (s *AlertStore) GetActive(_ context.Context, ruleName string) (*domain.ActiveAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.open[ruleName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a := *s.alerts[id]
	return &a, nil
}

func (s *AlertStore) Get(_ context.Context, id string) (*domain.ActiveAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *AlertStore) List(_ context.Context, filter domain.AlertFilter) ([]domain.ActiveAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ActiveAlert
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.RuleName != "" && a.RuleName != filter.RuleName {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *AlertStore) Acknowledge(_ context.Context, id, by string, at time.Time) (*domain.ActiveAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if a.Status != domain.AlertActive {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, a.Status, domain.AlertAcknowledged)
	}
	a.Status = domain.AlertAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &at
	out := *a
	return &out, nil
}

func (s *AlertStore) Resolve(_ context.Context, id string, at time.Time) (*domain.ActiveAlert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	changed := s.resolveLocked(a, at)
	out := *a
	return &out, changed, nil
}

func (s *AlertStore) resolveLocked(a *domain.ActiveAlert, at time.Time) bool {
	if a.Status == domain.AlertResolved {
		return false
	}
	a.Status = domain.AlertResolved
	a.ResolvedAt = &at
	if s.open[a.RuleName] == a.ID {
		delete(s.open, a.RuleName)
	}
	return true
}

func (s *AlertStore) ResolveOlderThan(_ context.Context, cutoff, at time.Time) ([]domain.ActiveAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var resolved []domain.ActiveAlert
	for _, id := range s.open {
		a := s.alerts[id]
		if a.TriggeredAt.Before(cutoff) {
			s.resolveLocked(a, at)
			resolved = append(resolved, *a)
		}
	}
	return resolved, nil
}
