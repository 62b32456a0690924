package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
)

func TestCounterStore_QueryWindow(t *testing.T) {
	ctx := context.Background()
	s := NewCounterStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Recorded out of order on purpose.
	for _, off := range []int{30, 10, 50, 20} {
		require.NoError(t, s.Record(ctx, domain.MetricSample{Type: "api_request", Value: float64(off), Timestamp: base.Add(time.Duration(off) * time.Second)}))
	}
	require.NoError(t, s.Record(ctx, domain.MetricSample{Type: "db_query", Value: 1, Timestamp: base}))

	got, err := s.QueryWindow(ctx, "api_request", base.Add(20*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{20, 30, 50}, []float64{got[0].Value, got[1].Value, got[2].Value})
	for _, sample := range got {
		assert.NotEmpty(t, sample.ID)
	}

	n, err := s.CountWindow(ctx, "api_request", base)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	n, err = s.CountWindow(ctx, "unknown", base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCounterStore_AddIfBelow(t *testing.T) {
	ctx := context.Background()
	s := NewCounterStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	key := domain.RequestSampleType("GET", "client-a")

	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		res, err := s.AddIfBelow(ctx, key, now.Add(-time.Minute), now, 5)
		require.NoError(t, err)
		assert.True(t, res.Admitted, "request %d", i+1)
		assert.Equal(t, i+1, res.Count)
		assert.Equal(t, base, res.Oldest)
	}

	now := base.Add(10 * time.Second)
	res, err := s.AddIfBelow(ctx, key, now.Add(-time.Minute), now, 5)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, 5, res.Count)

	// After the first sample slides out one slot frees up.
	now = base.Add(time.Minute + 500*time.Millisecond)
	res, err = s.AddIfBelow(ctx, key, now.Add(-time.Minute), now, 5)
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, base.Add(time.Second), res.Oldest)
}

func TestCounterStore_Compact(t *testing.T) {
	ctx := context.Background()
	s := NewCounterStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Record(ctx, domain.MetricSample{Type: "a", Timestamp: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, s.Record(ctx, domain.MetricSample{Type: "b", Timestamp: base}))

	removed, err := s.Compact(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	n, _ := s.CountWindow(ctx, "a", time.Time{})
	assert.EqualValues(t, 2, n)
	n, _ = s.CountWindow(ctx, "b", time.Time{})
	assert.Zero(t, n)
}
