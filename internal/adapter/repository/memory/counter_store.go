package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
)

// CounterStore is an in-memory domain.CounterStore. Samples of each type are kept
// sorted by timestamp.
type CounterStore struct {
	mu      sync.Mutex
	samples map[string][]domain.MetricSample
}

// NewCounterStore creates an empty in-memory counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{samples: make(map[string][]domain.MetricSample)}
}

func (s *CounterStore) Record(_ context.Context, sample domain.MetricSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(sample)
	return nil
}

func (s *CounterStore) insertLocked(sample domain.MetricSample) {
	list := s.samples[sample.Type]
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(sample.Timestamp) })
	list = append(list, domain.MetricSample{})
	copy(list[i+1:], list[i:])
	list[i] = sample
	s.samples[sample.Type] = list
}

// firstAtOrAfter returns the index of the first sample with Timestamp >= since.
func firstAtOrAfter(list []domain.MetricSample, since time.Time) int {
	return sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(since) })
}

func (s *CounterStore) QueryWindow(_ context.Context, metricType string, since time.Time) ([]domain.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.samples[metricType]
	i := firstAtOrAfter(list, since)
	out := make([]domain.MetricSample, len(list)-i)
	copy(out, list[i:])
	return out, nil
}

func (s *CounterStore) CountWindow(_ context.Context, metricType string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.samples[metricType]
	return int64(len(list) - firstAtOrAfter(list, since)), nil
}

func (s *CounterStore) AddIfBelow(_ context.Context, key string, windowStart, now time.Time, limit int) (domain.WindowCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.samples[key]
	if i := firstAtOrAfter(list, windowStart); i > 0 {
		list = append([]domain.MetricSample(nil), list[i:]...)
		s.samples[key] = list
	}

	if len(list) >= limit {
		return domain.WindowCount{Count: len(list), Oldest: list[0].Timestamp}, nil
	}

	s.insertLocked(domain.MetricSample{ID: uuid.NewString(), Type: key, Value: 1, Timestamp: now})
	list = s.samples[key]
	return domain.WindowCount{Admitted: true, Count: len(list), Oldest: list[0].Timestamp}, nil
}

func (s *CounterStore) Compact(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for t, list := range s.samples {
		i := firstAtOrAfter(list, before)
		if i == 0 {
			continue
		}
		removed += int64(i)
		if i == len(list) {
			delete(s.samples, t)
			continue
		}
		s.samples[t] = append([]domain.MetricSample(nil), list[i:]...)
	}
	return removed, nil
}
