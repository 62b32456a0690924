package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/carepulse/internal/adapter/api/handler"
	"github.com/V4T54L/carepulse/internal/usecase"
)

// NewAdminRouter serves health, Prometheus metrics and the status report on the admin port.
func NewAdminRouter(status *usecase.StatusUseCase, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	adminHandler := handler.NewAdminHandler(status, logger)

	r.Get("/health", adminHandler.HealthCheck)
	r.Get("/admin/status", adminHandler.Status)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
