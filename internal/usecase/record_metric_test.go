package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/domain/mocks"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
)

type batchStore struct {
	*mocks.MockCounterStore
	batches [][]domain.MetricSample
}

func (b *batchStore) RecordBatch(ctx context.Context, samples []domain.MetricSample) error {
	b.batches = append(b.batches, samples)
	return nil
}

func TestRecordMetricUseCase_Record(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("fills id and timestamp", func(t *testing.T) {
		store := &mocks.MockCounterStore{}
		uc := NewRecordMetricUseCase(store, nil, logger.Discard(), func() time.Time { return now })

		require.NoError(t, uc.Record(ctx, domain.MetricSample{Type: " db_query ", Value: 42}))
		require.Len(t, store.Samples, 1)
		assert.Equal(t, domain.MetricDBQuery, store.Samples[0].Type)
		assert.NotEmpty(t, store.Samples[0].ID)
		assert.Equal(t, now, store.Samples[0].Timestamp)
	})

	t.Run("rejects missing type", func(t *testing.T) {
		uc := NewRecordMetricUseCase(&mocks.MockCounterStore{}, nil, logger.Discard(), nil)
		assert.ErrorIs(t, uc.Record(ctx, domain.MetricSample{Value: 1}), domain.ErrInvalidArgument)
	})

	t.Run("bounds client timestamps", func(t *testing.T) {
		tests := []struct {
			name    string
			ts      time.Time
			wantErr bool
		}{
			{"past", now.Add(-time.Hour), false},
			{"within skew", now.Add(MaxClockSkew), false},
			{"beyond skew", now.Add(MaxClockSkew + time.Second), true},
			{"far future", now.AddDate(1, 0, 0), true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := &mocks.MockCounterStore{}
				uc := NewRecordMetricUseCase(store, nil, logger.Discard(), func() time.Time { return now })

				err := uc.Record(ctx, domain.MetricSample{Type: domain.MetricDBQuery, Value: 5, Timestamp: tt.ts})
				if tt.wantErr {
					assert.ErrorIs(t, err, domain.ErrInvalidArgument)
					assert.Empty(t, store.Samples)
					return
				}
				require.NoError(t, err)
				assert.Len(t, store.Samples, 1)
			})
		}
	})

	t.Run("rejects a batch with a future sample", func(t *testing.T) {
		store := &batchStore{MockCounterStore: &mocks.MockCounterStore{}}
		uc := NewRecordMetricUseCase(store, nil, logger.Discard(), func() time.Time { return now })

		err := uc.RecordBatch(ctx, []domain.MetricSample{
			{Type: domain.MetricDBQuery, Value: 1},
			{Type: domain.MetricDBQuery, Value: 2, Timestamp: now.Add(time.Hour)},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Empty(t, store.batches)
	})

	t.Run("swallows storage errors", func(t *testing.T) {
		store := &mocks.MockCounterStore{RecordErr: errors.New("redis down")}
		uc := NewRecordMetricUseCase(store, nil, logger.Discard(), nil)
		assert.NoError(t, uc.Record(ctx, domain.MetricSample{Type: domain.MetricMemoryUsage, Value: 91}))
	})
}

func TestRecordMetricUseCase_RecordBatch(t *testing.T) {
	ctx := context.Background()

	store := &batchStore{MockCounterStore: &mocks.MockCounterStore{}}
	uc := NewRecordMetricUseCase(store, nil, logger.Discard(), nil)
	require.NoError(t, uc.RecordBatch(ctx, []domain.MetricSample{
		{Type: domain.MetricDBQuery, Value: 1},
		{Type: domain.MetricDBQuery, Value: 2},
	}))
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)
	assert.Empty(t, store.Samples)

	plain := &mocks.MockCounterStore{}
	uc = NewRecordMetricUseCase(plain, nil, logger.Discard(), nil)
	require.NoError(t, uc.RecordBatch(ctx, []domain.MetricSample{{Type: "a"}, {Type: "b"}}))
	assert.Len(t, plain.Samples, 2)

	err := uc.RecordBatch(ctx, []domain.MetricSample{{Type: "a"}, {}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRecordMetricUseCase_RecordRequest(t *testing.T) {
	store := &mocks.MockCounterStore{}
	uc := NewRecordMetricUseCase(store, nil, logger.Discard(), nil)

	uc.RecordRequest(context.Background(), "GET", "/api/v1/alerts", 503, 1500*time.Microsecond)
	require.Len(t, store.Samples, 1)
	s := store.Samples[0]
	assert.Equal(t, domain.MetricAPIRequest, s.Type)
	assert.InDelta(t, 1.5, s.Value, 1e-9)
	assert.Equal(t, 503, s.Metadata["status_code"])
	assert.True(t, s.IsError())
}
