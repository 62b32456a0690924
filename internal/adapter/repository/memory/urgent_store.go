package memory

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

// UrgentStore is an in-memory domain.UrgentStore. Expired alerts are dropped lazily
// on read and by Purge.
type UrgentStore struct {
	mu     sync.Mutex
	alerts map[string]domain.UrgentAlert
	queues map[domain.Priority][]string
	now    func() time.Time
}

// NewUrgentStore creates an empty in-memory urgent store using the given clock.
func NewUrgentStore(now func() time.Time) *UrgentStore {
	if now == nil {
		now = time.Now
	}
	return &UrgentStore{
		alerts: make(map[string]domain.UrgentAlert),
		queues: make(map[domain.Priority][]string),
		now:    now,
	}
}

func (s *UrgentStore) Create(_ context.Context, alert domain.UrgentAlert, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ExpiresAt.IsZero() {
		alert.ExpiresAt = alert.CreatedAt.Add(ttl)
	}
	s.alerts[alert.ID] = alert
	s.queues[alert.Priority] = append(s.queues[alert.Priority], alert.ID)
	return nil
}

func (s *UrgentStore) Get(_ context.Context, id string) (*domain.UrgentAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.liveLocked(id, s.now())
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *UrgentStore) liveLocked(id string, now time.Time) (domain.UrgentAlert, bool) {
	a, ok := s.alerts[id]
	if !ok {
		return domain.UrgentAlert{}, false
	}
	if a.Expired(now) {
		delete(s.alerts, id)
		return domain.UrgentAlert{}, false
	}
	return a, true
}

func (s *UrgentStore) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.liveLocked(id, s.now())
	if !ok {
		return nil
	}
	a.Status = domain.UrgentProcessed
	s.alerts[id] = a
	s.removeLocked(a.Priority, id)
	return nil
}

func (s *UrgentStore) removeLocked(p domain.Priority, id string) {
	q := s.queues[p]
	for i, qid := range q {
		if qid == id {
			s.queues[p] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

func (s *UrgentStore) Pending(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, tier := range domain.Tiers {
		for _, id := range s.queues[tier] {
			a, ok := s.liveLocked(id, now)
			if ok && a.Status == domain.UrgentPending {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (s *UrgentStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for tier, q := range s.queues {
		kept := q[:0]
		for _, id := range q {
			if _, ok := s.liveLocked(id, now); ok {
				kept = append(kept, id)
			} else {
				purged++
			}
		}
		s.queues[tier] = kept
	}
	for id, a := range s.alerts {
		if a.Expired(now) {
			delete(s.alerts, id)
		}
	}
	return purged, nil
}
