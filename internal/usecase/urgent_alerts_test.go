package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/adapter/repository/memory"
	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/domain/mocks"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
)

type urgentFixture struct {
	now       time.Time
	store     *memory.UrgentStore
	counters  *mocks.MockCounterStore
	publisher *mocks.MockPublisher
	enqueuer  *mocks.MockEnqueuer
	uc        *UrgentAlertUseCase
}

func newUrgentFixture(t *testing.T) *urgentFixture {
	t.Helper()
	f := &urgentFixture{
		now:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		counters:  &mocks.MockCounterStore{},
		publisher: &mocks.MockPublisher{},
		enqueuer:  &mocks.MockEnqueuer{},
	}
	clock := func() time.Time { return f.now }
	f.store = memory.NewUrgentStore(clock)
	recorder := NewRecordMetricUseCase(f.counters, nil, logger.Discard(), clock)
	f.uc = NewUrgentAlertUseCase(f.store, recorder, f.publisher, f.enqueuer, UrgentAlertOptions{
		TTL:           time.Hour,
		UrgentValues:  []string{"critical"},
		TerminalValue: "discharged",
	}, nil, logger.Discard(), clock)
	return f
}

func TestUrgentAlertUseCase_CriticalTransition(t *testing.T) {
	f := newUrgentFixture(t)
	ctx := context.Background()

	alert, err := f.uc.ReportTransition(ctx, domain.Transition{EntityID: "42", OldValue: "active", NewValue: "critical", Category: "patient"})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, domain.PriorityUrgent, alert.Priority)
	assert.Equal(t, domain.UrgentPending, alert.Status)
	assert.Equal(t, f.now.Add(time.Hour), alert.ExpiresAt)

	pending, err := f.uc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{alert.ID}, pending)

	assert.Equal(t, []string{"patient:42", domain.GlobalChannel}, f.publisher.Channels())
	for _, m := range f.publisher.Messages {
		assert.Equal(t, domain.EventUrgentAlertCreated, m.Message.Type)
		assert.Equal(t, "42", m.Message.EntityID)
	}

	require.Len(t, f.enqueuer.Jobs, 1)
	assert.Equal(t, domain.JobUrgentAlertNotify, f.enqueuer.Jobs[0].JobType)
	assert.Equal(t, domain.JobPriorityImmediate, f.enqueuer.Jobs[0].Priority)

	n, err := f.counters.CountWindow(ctx, domain.StatusSampleType("critical"), f.now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUrgentAlertUseCase_Classify(t *testing.T) {
	f := newUrgentFixture(t)

	testCases := []struct {
		name     string
		old, new string
		want     domain.Priority
		urgent   bool
	}{
		{name: "becomes critical", old: "active", new: "critical", want: domain.PriorityUrgent, urgent: true},
		{name: "stays critical", old: "critical", new: "critical", want: domain.PriorityUrgent, urgent: true},
		{name: "case insensitive", old: "active", new: " Critical ", want: domain.PriorityUrgent, urgent: true},
		{name: "discharged", old: "active", new: "discharged", want: domain.PriorityNormal, urgent: true},
		{name: "already discharged", old: "discharged", new: "discharged"},
		{name: "routine", old: "active", new: "stable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, urgent := f.uc.Classify(tc.old, tc.new)
			assert.Equal(t, tc.urgent, urgent)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUrgentAlertUseCase_RoutineTransition(t *testing.T) {
	f := newUrgentFixture(t)

	alert, err := f.uc.ReportTransition(context.Background(), domain.Transition{EntityID: "7", OldValue: "active", NewValue: "stable"})
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, []string{"patient:7"}, f.publisher.Channels())
	assert.Equal(t, domain.EventEntityTransition, f.publisher.Messages[0].Message.Type)
	assert.Empty(t, f.enqueuer.Jobs)

	_, err = f.uc.ReportTransition(context.Background(), domain.Transition{NewValue: "critical"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUrgentAlertUseCase_TierOrderAndTTL(t *testing.T) {
	f := newUrgentFixture(t)
	ctx := context.Background()

	discharged, err := f.uc.ReportTransition(ctx, domain.Transition{EntityID: "1", OldValue: "active", NewValue: "discharged"})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	first, err := f.uc.ReportTransition(ctx, domain.Transition{EntityID: "2", OldValue: "active", NewValue: "critical"})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	second, err := f.uc.ReportTransition(ctx, domain.Transition{EntityID: "3", OldValue: "stable", NewValue: "critical"})
	require.NoError(t, err)

	pending, err := f.uc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID, discharged.ID}, pending)

	require.NoError(t, f.uc.MarkProcessed(ctx, first.ID))
	require.NoError(t, f.uc.MarkProcessed(ctx, "unknown"))
	pending, err = f.uc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, discharged.ID}, pending)

	// The discharge alert was created two minutes before the others.
	f.now = discharged.ExpiresAt
	pending, err = f.uc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, pending)

	f.now = second.ExpiresAt
	pending, err = f.uc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.NoError(t, f.uc.MarkProcessed(ctx, second.ID))
	require.NoError(t, f.uc.Purge(ctx))
}

type failingUrgentStore struct {
	*memory.UrgentStore
}

func (failingUrgentStore) Create(context.Context, domain.UrgentAlert, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}

func (failingUrgentStore) Pending(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestUrgentAlertUseCase_StorageFailureIsSwallowed(t *testing.T) {
	pub := &mocks.MockPublisher{}
	enq := &mocks.MockEnqueuer{}
	uc := NewUrgentAlertUseCase(failingUrgentStore{memory.NewUrgentStore(nil)}, nil, pub, enq,
		UrgentAlertOptions{UrgentValues: []string{"critical"}}, nil, logger.Discard(), nil)

	alert, err := uc.ReportTransition(context.Background(), domain.Transition{EntityID: "9", OldValue: "active", NewValue: "critical"})
	assert.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, pub.Messages)
	assert.Empty(t, enq.Jobs)

	pending, err := uc.Pending(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, pending)
}
