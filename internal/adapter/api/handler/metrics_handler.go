package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/usecase"
)

type metricRequest struct {
	Type      string         `json:"type"`
	Value     float64        `json:"value"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m metricRequest) sample() domain.MetricSample {
	s := domain.MetricSample{Type: m.Type, Value: m.Value, Metadata: m.Metadata}
	if m.Timestamp != nil {
		s.Timestamp = m.Timestamp.UTC()
	}
	return s
}

// MetricsHandler accepts metric samples, singly or as {"samples": [...]}.
type MetricsHandler struct {
	recorder *usecase.RecordMetricUseCase
	logger   *slog.Logger
}

func NewMetricsHandler(recorder *usecase.RecordMetricUseCase, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{recorder: recorder, logger: logger}
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		metricRequest
		Samples []metricRequest `json:"samples"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if len(body.Samples) > 0 {
		samples := make([]domain.MetricSample, len(body.Samples))
		for i, m := range body.Samples {
			samples[i] = m.sample()
		}
		if err := h.recorder.RecordBatch(r.Context(), samples); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(samples)})
		return
	}

	if err := h.recorder.Record(r.Context(), body.sample()); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": 1})
}
