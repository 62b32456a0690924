package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
)

func TestAlertStore_DedupUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateIfNoneActive(ctx, &domain.ActiveAlert{RuleName: "high_error_rate", TriggeredAt: now})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	open, err := s.List(ctx, domain.AlertFilter{Status: domain.AlertActive})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAlertStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	now := time.Now()

	a := &domain.ActiveAlert{RuleName: "high_api_latency", Severity: domain.SeverityHigh, TriggeredAt: now}
	ok, err := s.CreateIfNoneActive(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, a.ID)

	acked, err := s.Acknowledge(ctx, a.ID, "nurse-7", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertAcknowledged, acked.Status)
	assert.Equal(t, "nurse-7", acked.AcknowledgedBy)

	_, err = s.Acknowledge(ctx, a.ID, "nurse-8", now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	// Acknowledged alerts still block a new one for the same rule.
	ok, _ = s.CreateIfNoneActive(ctx, &domain.ActiveAlert{RuleName: "high_api_latency", TriggeredAt: now})
	assert.False(t, ok)

	resolvedAt := now.Add(2 * time.Minute)
	res, changed, err := s.Resolve(ctx, a.ID, resolvedAt)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.AlertResolved, res.Status)

	again, changed, err := s.Resolve(ctx, a.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, resolvedAt, *again.ResolvedAt)

	_, err = s.GetActive(ctx, "high_api_latency")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ok, _ = s.CreateIfNoneActive(ctx, &domain.ActiveAlert{RuleName: "high_api_latency", TriggeredAt: now})
	assert.True(t, ok)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAlertStore_ResolveOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	now := time.Now()

	_, _ = s.CreateIfNoneActive(ctx, &domain.ActiveAlert{RuleName: "old", TriggeredAt: now.Add(-31 * 24 * time.Hour)})
	_, _ = s.CreateIfNoneActive(ctx, &domain.ActiveAlert{RuleName: "fresh", TriggeredAt: now.Add(-time.Hour)})

	resolved, err := s.ResolveOlderThan(ctx, now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "old", resolved[0].RuleName)

	_, err = s.GetActive(ctx, "fresh")
	assert.NoError(t, err)
}
