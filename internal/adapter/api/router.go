package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/carepulse/internal/adapter/api/handler"
	"github.com/V4T54L/carepulse/internal/adapter/api/middleware"
	"github.com/V4T54L/carepulse/internal/adapter/fanout"
	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/usecase"
)

const requestTimeout = 30 * time.Second

// Deps are the services behind the public API.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.SignalMetrics
	Recorder *usecase.RecordMetricUseCase
	Limiter  *usecase.RateLimiter
	Urgent   *usecase.UrgentAlertUseCase
	Alerts   *usecase.AlertAdminUseCase
	Jobs     *usecase.JobQueueUseCase
	Hub      *fanout.Hub
}

// NewRouter creates and configures the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.RateLimit(d.Limiter, d.Logger))

	metricsHandler := handler.NewMetricsHandler(d.Recorder, d.Logger)
	rateLimitHandler := handler.NewRateLimitHandler(d.Limiter, d.Logger)
	transitionHandler := handler.NewTransitionHandler(d.Urgent, d.Logger)
	urgentHandler := handler.NewUrgentHandler(d.Urgent, d.Logger)
	alertHandler := handler.NewAlertHandler(d.Alerts, d.Logger)
	jobHandler := handler.NewJobHandler(d.Jobs, d.Logger)
	streamHandler := handler.NewStreamHandler(d.Hub, d.Logger)

	// Long-lived streams are neither timed out nor recorded as request samples.
	r.Get("/ws", streamHandler.WebSocket)
	r.Get("/api/v1/stream", streamHandler.SSE)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(middleware.Instrument(d.Recorder, d.Metrics))

		r.Route("/api/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/metrics", metricsHandler)
			r.Method(http.MethodPost, "/ratelimit/check", rateLimitHandler)
			r.Method(http.MethodPost, "/transitions", transitionHandler)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Get("/{id}", alertHandler.Get)
				r.Post("/{id}/acknowledge", alertHandler.Acknowledge)
				r.Post("/{id}/resolve", alertHandler.Resolve)
			})

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", alertHandler.Rules)
				r.Post("/{name}/enable", alertHandler.EnableRule)
				r.Post("/{name}/disable", alertHandler.DisableRule)
			})

			r.Route("/urgent", func(r chi.Router) {
				r.Get("/pending", urgentHandler.Pending)
				r.Get("/{id}", urgentHandler.Get)
				r.Post("/{id}/processed", urgentHandler.MarkProcessed)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", jobHandler.Enqueue)
				r.Get("/poll", jobHandler.Poll)
				r.Get("/{id}", jobHandler.Get)
				r.Post("/{id}/complete", jobHandler.Complete)
				r.Post("/{id}/fail", jobHandler.Fail)
				r.Post("/{id}/retry", jobHandler.Retry)
			})
		})
	})

	return r
}
