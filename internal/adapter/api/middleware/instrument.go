package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
)

// RequestRecorder is implemented by usecase.RecordMetricUseCase.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, latency time.Duration)
}

// Instrument records every served request as an api_request sample and a Prometheus
// observation, labelled by route pattern. Streaming routes should not be wrapped.
func Instrument(recorder RequestRecorder, m *metrics.SignalMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.HTTPRequest(r.Method, route, status, latency)
			if recorder != nil {
				recorder.RecordRequest(context.WithoutCancel(r.Context()), r.Method, route, status, latency)
			}
		})
	}
}
