package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/adapter/notifier"
	"github.com/V4T54L/carepulse/internal/adapter/repository/memory"
	"github.com/V4T54L/carepulse/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/carepulse/internal/adapter/repository/redis"
	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/config"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
	"github.com/V4T54L/carepulse/internal/usecase"
)

const webhookTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New("worker", cfg.LogLevel)
	log.Info("starting job worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JobBackend != config.BackendPostgres {
		// An in-memory queue is private to signald, so a separate worker would never see a job.
		log.Error("the job worker needs JOB_BACKEND=postgres", "job_backend", cfg.JobBackend)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := postgres.Migrate(ctx, db, log); err != nil {
		log.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	var urgentStore domain.UrgentStore
	if cfg.UrgentBackend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			log.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		log.Info("connected to redis")
		urgentStore = redisrepo.NewUrgentStore(redisClient, log)
	} else {
		log.Warn("urgent alerts are in memory; urgent notifications from signald will be dropped")
		urgentStore = memory.NewUrgentStore(nil)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewSignalMetrics(reg)

	queue := usecase.NewJobQueueUseCase(postgres.NewJobStore(db), usecase.JobQueueOptions{
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
		Lease:       cfg.JobLease,
	}, log, nil)
	urgent := usecase.NewUrgentAlertUseCase(urgentStore, nil, nil, nil, usecase.UrgentAlertOptions{
		TTL:           cfg.UrgentTTL,
		UrgentValues:  cfg.UrgentValues,
		TerminalValue: cfg.TerminalValue,
	}, m, log, nil)

	notify := notifier.Multi{notifier.NewLogNotifier(log)}
	if len(cfg.WebhookURLs) > 0 {
		notify = append(notify, notifier.NewWebhookNotifier(cfg.WebhookURLs, webhookTimeout, log))
	}

	worker := usecase.NewProcessJobsUseCase(queue, cfg.JobBatchSize, m, log)
	worker.Register(domain.JobAlertEscalate, usecase.EscalationHandler(notify))
	worker.Register(domain.JobUrgentAlertNotify, usecase.UrgentNotifyHandler(notify, urgent))

	metricsServer := &http.Server{
		Addr:    cfg.WorkerMetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Info("starting worker metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("worker metrics server failed", "error", err)
		}
	}()

	worker.Run(ctx, cfg.JobPollInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("worker metrics server shutdown failed", "error", err)
	}
	log.Info("job worker shut down gracefully")
}
