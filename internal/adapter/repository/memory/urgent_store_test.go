package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestUrgentStore_TierOrderAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := NewUrgentStore(clock.Now)

	create := func(id string, p domain.Priority) {
		require.NoError(t, s.Create(ctx, domain.UrgentAlert{
			ID: id, Priority: p, Status: domain.UrgentPending, CreatedAt: clock.Now(),
		}, time.Hour))
		clock.Advance(time.Second)
	}
	create("n1", domain.PriorityNormal)
	create("u1", domain.PriorityUrgent)
	create("n2", domain.PriorityNormal)
	create("u2", domain.PriorityUrgent)

	pending, err := s.Pending(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "n1", "n2"}, pending)

	require.NoError(t, s.MarkProcessed(ctx, "u1"))
	require.NoError(t, s.MarkProcessed(ctx, "does-not-exist"))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UrgentProcessed, got.Status)

	pending, _ = s.Pending(ctx, clock.Now())
	assert.Equal(t, []string{"u2", "n1", "n2"}, pending)

	clock.Advance(time.Hour)
	pending, _ = s.Pending(ctx, clock.Now())
	assert.Empty(t, pending)

	_, err = s.Get(ctx, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, s.MarkProcessed(ctx, "u2"))
}

func TestUrgentStore_Purge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := NewUrgentStore(clock.Now)

	require.NoError(t, s.Create(ctx, domain.UrgentAlert{ID: "a", Priority: domain.PriorityUrgent, Status: domain.UrgentPending, CreatedAt: clock.Now()}, time.Minute))
	require.NoError(t, s.Create(ctx, domain.UrgentAlert{ID: "b", Priority: domain.PriorityUrgent, Status: domain.UrgentPending, CreatedAt: clock.Now()}, time.Hour))

	purged, err := s.Purge(ctx, clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}
