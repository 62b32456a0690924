package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

// MockCounterStore is a mock implementation of domain.CounterStore for testing.
type MockCounterStore struct {
	mu         sync.Mutex
	Samples    []domain.MetricSample
	Compacted  []time.Time
	RecordErr  error
	QueryErr   error
	AddErr     error
	CompactErr error
	// AddDelay simulates a slow backend in AddIfBelow.
	AddDelay time.Duration
}

func (m *MockCounterStore) Record(ctx context.Context, sample domain.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Samples = append(m.Samples, sample)
	return nil
}

func (m *MockCounterStore) QueryWindow(ctx context.Context, metricType string, since time.Time) ([]domain.MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var out []domain.MetricSample
	for _, s := range m.Samples {
		if s.Type == metricType && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockCounterStore) CountWindow(ctx context.Context, metricType string, since time.Time) (int64, error) {
	samples, err := m.QueryWindow(ctx, metricType, since)
	return int64(len(samples)), err
}

func (m *MockCounterStore) AddIfBelow(ctx context.Context, key string, windowStart, now time.Time, limit int) (domain.WindowCount, error) {
	if m.AddDelay > 0 {
		select {
		case <-time.After(m.AddDelay):
		case <-ctx.Done():
			return domain.WindowCount{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return domain.WindowCount{}, m.AddErr
	}
	var count int
	var oldest time.Time
	for _, s := range m.Samples {
		if s.Type == key && !s.Timestamp.Before(windowStart) {
			if count == 0 || s.Timestamp.Before(oldest) {
				oldest = s.Timestamp
			}
			count++
		}
	}
	if count >= limit {
		return domain.WindowCount{Count: count, Oldest: oldest}, nil
	}
	m.Samples = append(m.Samples, domain.MetricSample{Type: key, Value: 1, Timestamp: now})
	if count == 0 {
		oldest = now
	}
	return domain.WindowCount{Admitted: true, Count: count + 1, Oldest: oldest}, nil
}

func (m *MockCounterStore) Compact(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompactErr != nil {
		return 0, m.CompactErr
	}
	m.Compacted = append(m.Compacted, before)
	return 0, nil
}

// Published is one recorded MockPublisher call.
type Published struct {
	Channel string
	Message domain.Message
}

// MockPublisher records published messages.
type MockPublisher struct {
	mu         sync.Mutex
	Messages   []Published
	PublishErr error
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Messages = append(m.Messages, Published{Channel: channel, Message: msg})
	return nil
}

// Channels returns the channels published to, in order.
func (m *MockPublisher) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Messages))
	for _, p := range m.Messages {
		out = append(out, p.Channel)
	}
	return out
}

// EnqueuedJob is one recorded MockEnqueuer call.
type EnqueuedJob struct {
	JobType     string
	Payload     map[string]any
	Priority    int
	ScheduledAt *time.Time
}

// MockEnqueuer records enqueued jobs.
type MockEnqueuer struct {
	mu         sync.Mutex
	Jobs       []EnqueuedJob
	EnqueueErr error
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, jobType string, payload map[string]any, priority int, scheduledAt *time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return "", m.EnqueueErr
	}
	m.Jobs = append(m.Jobs, EnqueuedJob{JobType: jobType, Payload: payload, Priority: priority, ScheduledAt: scheduledAt})
	return "job-" + jobType, nil
}

// Notification is one recorded MockNotifier call.
type Notification struct {
	Subject string
	Body    map[string]any
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu        sync.Mutex
	Sent      []Notification
	NotifyErr error
}

func (m *MockNotifier) Notify(ctx context.Context, subject string, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.Sent = append(m.Sent, Notification{Subject: subject, Body: body})
	return nil
}

// MockWALRepository is a mock implementation of domain.WALRepository.
type MockWALRepository struct {
	mu       sync.Mutex
	Written  []domain.MetricSample
	WriteErr error
}

func (m *MockWALRepository) Write(ctx context.Context, sample domain.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Written = append(m.Written, sample)
	return nil
}

func (m *MockWALRepository) Replay(ctx context.Context, handler func(sample domain.MetricSample) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.Written) > 0 {
		if err := handler(m.Written[0]); err != nil {
			return err
		}
		m.Written = m.Written[1:]
	}
	return nil
}
