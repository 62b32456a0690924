package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

// MaxClockSkew is how far past the server clock a client timestamp may be.
const MaxClockSkew = time.Minute

// BatchRecorder is implemented by counter stores with a bulk write path.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, samples []domain.MetricSample) error
}

// RecordMetricUseCase appends samples to the counter store. Storage failures are
// logged and never reach the caller.
type RecordMetricUseCase struct {
	store   domain.CounterStore
	metrics *metrics.SignalMetrics
	logger  *slog.Logger
	now     Clock
}

// NewRecordMetricUseCase creates a new RecordMetricUseCase.
func NewRecordMetricUseCase(store domain.CounterStore, m *metrics.SignalMetrics, logger *slog.Logger, now Clock) *RecordMetricUseCase {
	return &RecordMetricUseCase{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "record_metric"),
		now:     clockOrNow(now),
	}
}

// Record stores one sample. Only malformed input is reported as an error.
func (uc *RecordMetricUseCase) Record(ctx context.Context, sample domain.MetricSample) error {
	if err := uc.prepare(&sample); err != nil {
		return err
	}
	err := uc.store.Record(ctx, sample)
	uc.metrics.SampleRecorded(family(sample.Type), err)
	if err != nil {
		uc.logger.Warn("Failed to record sample", "type", sample.Type, "error", err)
	}
	return nil
}

// RecordBatch stores several samples, in one round trip when the store supports it.
func (uc *RecordMetricUseCase) RecordBatch(ctx context.Context, samples []domain.MetricSample) error {
	for i := range samples {
		if err := uc.prepare(&samples[i]); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}

	if br, ok := uc.store.(BatchRecorder); ok {
		err := br.RecordBatch(ctx, samples)
		for _, s := range samples {
			uc.metrics.SampleRecorded(family(s.Type), err)
		}
		if err != nil {
			uc.logger.Warn("Failed to record sample batch", "count", len(samples), "error", err)
		}
		return nil
	}

	for _, s := range samples {
		err := uc.store.Record(ctx, s)
		uc.metrics.SampleRecorded(family(s.Type), err)
		if err != nil {
			uc.logger.Warn("Failed to record sample", "type", s.Type, "error", err)
		}
	}
	return nil
}

// RecordRequest records an api_request sample for a served HTTP request.
func (uc *RecordMetricUseCase) RecordRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	_ = uc.Record(ctx, domain.MetricSample{
		Type:  domain.MetricAPIRequest,
		Value: float64(latency.Microseconds()) / 1000,
		Metadata: map[string]any{
			"method":      method,
			"route":       route,
			"status_code": status,
			"error":       status >= 500,
		},
	})
}

func (uc *RecordMetricUseCase) prepare(sample *domain.MetricSample) error {
	sample.Type = strings.TrimSpace(sample.Type)
	if sample.Type == "" {
		return fmt.Errorf("%w: metric type is required", domain.ErrInvalidArgument)
	}
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	now := uc.now()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	if sample.Timestamp.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp %s is ahead of server time", domain.ErrInvalidArgument, sample.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// family collapses parameterized types such as "request:GET:client" for metric labels.
func family(metricType string) string {
	if i := strings.IndexByte(metricType, ':'); i > 0 {
		return metricType[:i]
	}
	return metricType
}
