package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func TestStatusUseCase_Report(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	queue := newTestQueue(&now)
	_, err := queue.Enqueue(ctx, domain.JobAlertEscalate, nil, domain.JobPriorityImmediate, nil)
	require.NoError(t, err)

	f := newUrgentFixture(t)
	_, err = f.uc.ReportTransition(ctx, domain.Transition{EntityID: "1", OldValue: "active", NewValue: "critical"})
	require.NoError(t, err)

	probes := []BackendProbe{
		{Name: "redis", Check: func(context.Context) bool { return true }},
		{Name: "postgres", Check: func(context.Context) bool { return false }},
	}
	uc := NewStatusUseCase(probes, queue, f.uc, fixedCount(3), nil, logger.Discard())

	report := uc.Report(ctx)
	assert.Equal(t, []domain.BackendHealth{{Name: "redis", Available: true}, {Name: "postgres", Available: false}}, report.Backends)
	assert.Equal(t, int64(1), report.Queue.Pending)
	assert.Equal(t, 1, report.PendingUrgent)
	assert.Equal(t, 3, report.Subscribers)
	assert.Nil(t, report.LastTick)
	assert.False(t, uc.Healthy(ctx))
}
