package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/carepulse/internal/adapter/api"
	"github.com/V4T54L/carepulse/internal/adapter/fanout"
	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/adapter/notifier"
	"github.com/V4T54L/carepulse/internal/adapter/pii"
	"github.com/V4T54L/carepulse/internal/adapter/repository/memory"
	"github.com/V4T54L/carepulse/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/carepulse/internal/adapter/repository/redis"
	"github.com/V4T54L/carepulse/internal/adapter/repository/wal"
	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/config"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
	"github.com/V4T54L/carepulse/internal/usecase"

	_ "github.com/lib/pq"
)

const (
	healthCheckInterval = 5 * time.Second
	webhookTimeout      = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New("signald", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("signald exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("servers shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSignalMetrics(reg)

	// --- Connections ---
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not connect to redis, samples will go to the WAL until it recovers", "error", err)
		}
	}

	var db *sql.DB
	if cfg.NeedsPostgres() {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return err
		}
	}

	var probes []usecase.BackendProbe

	// --- Stores ---
	var counters domain.CounterStore
	switch cfg.CounterBackend {
	case config.BackendMemory:
		counters = memory.NewCounterStore()
	case config.BackendPostgres:
		counters = postgres.NewCounterStore(db, log)
	default:
		sampleLog, err := wal.NewSampleLog(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, log)
		if err != nil {
			return fmt.Errorf("initialize WAL: %w", err)
		}
		defer sampleLog.Close()
		store := redisrepo.NewCounterStore(redisClient, log, sampleLog, m)
		if err := redisClient.Ping(ctx).Err(); err == nil {
			if err := store.ReplayWAL(ctx); err != nil {
				log.Error("failed to replay WAL on startup", "error", err)
			}
		}
		go store.StartHealthCheck(ctx, healthCheckInterval)
		probes = append(probes, usecase.BackendProbe{
			Name:  "redis",
			Check: func(context.Context) bool { return store.Available() },
		})
		counters = store
	}

	var alerts domain.AlertStore
	if cfg.AlertBackend == config.BackendMemory {
		alerts = memory.NewAlertStore()
	} else {
		alerts = postgres.NewAlertStore(db)
	}

	var urgentStore domain.UrgentStore
	if cfg.UrgentBackend == config.BackendMemory {
		urgentStore = memory.NewUrgentStore(nil)
	} else {
		urgentStore = redisrepo.NewUrgentStore(redisClient, log)
	}

	var jobStore domain.JobStore
	if cfg.JobBackend == config.BackendMemory {
		jobStore = memory.NewJobStore()
	} else {
		jobStore = postgres.NewJobStore(db)
	}

	if db != nil {
		probes = append(probes, usecase.BackendProbe{
			Name: "postgres",
			Check: func(ctx context.Context) bool {
				pingCtx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				return db.PingContext(pingCtx) == nil
			},
		})
	}

	// --- Fan-out ---
	hub := fanout.NewHub(log, m)
	var delivery domain.Publisher = hub
	if cfg.FanoutBackend == config.FanoutRedis {
		bridge := fanout.NewRedisBridge(redisClient, hub, log)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Error("fan-out bridge stopped", "error", err)
			}
		}()
		delivery = bridge
	}
	outbound := []domain.Publisher{delivery}
	if len(cfg.KafkaBrokers) > 0 {
		mirror := fanout.NewKafkaMirror(fanout.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), cfg.KafkaTimeout, log)
		defer mirror.Close()
		outbound = append(outbound, mirror)
	}
	redactor := pii.NewRedactor(cfg.PHIFields(), log)
	publisher := fanout.NewRedactingPublisher(fanout.NewMultiPublisher(outbound...), redactor)

	// --- Use cases ---
	recorder := usecase.NewRecordMetricUseCase(counters, m, log, nil)
	limiter := usecase.NewRateLimiter(counters, cfg.RateLimitVerbs, cfg.RateLimitEndpoints, cfg.StoreTimeout, m, log, nil)
	queue := usecase.NewJobQueueUseCase(jobStore, usecase.JobQueueOptions{
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
		Lease:       cfg.JobLease,
	}, log, nil)
	urgent := usecase.NewUrgentAlertUseCase(urgentStore, recorder, publisher, queue, usecase.UrgentAlertOptions{
		TTL:           cfg.UrgentTTL,
		UrgentValues:  cfg.UrgentValues,
		TerminalValue: cfg.TerminalValue,
	}, m, log, nil)
	catalog := usecase.NewRuleCatalog(usecase.DefaultRules())
	admin := usecase.NewAlertAdminUseCase(alerts, catalog, publisher, log, nil)
	evaluator := usecase.NewRuleEvaluator(catalog, counters, alerts, publisher, queue, usecase.EvaluatorOptions{
		RuleTimeout:    cfg.EvaluatorRuleTimeout,
		AutoResolveAge: cfg.AlertAutoResolveAge,
		ExtraWindows:   cfg.Windows(),
	}, m, log, nil)
	evaluator.AddMaintenance("urgent_purge", urgent.Purge)
	status := usecase.NewStatusUseCase(probes, queue, urgent, hub, evaluator, log)

	go evaluator.Run(ctx, cfg.EvaluatorInterval)

	if cfg.RunsEmbeddedWorker() {
		notify := notifier.Multi{notifier.NewLogNotifier(log)}
		if len(cfg.WebhookURLs) > 0 {
			notify = append(notify, notifier.NewWebhookNotifier(cfg.WebhookURLs, webhookTimeout, log))
		}
		worker := usecase.NewProcessJobsUseCase(queue, cfg.JobBatchSize, m, log)
		worker.Register(domain.JobAlertEscalate, usecase.EscalationHandler(notify))
		worker.Register(domain.JobUrgentAlertNotify, usecase.UrgentNotifyHandler(notify, urgent))
		log.Info("running embedded job worker", "job_backend", cfg.JobBackend)
		go worker.Run(ctx, cfg.JobPollInterval)
	}

	// --- Servers ---
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewAdminRouter(status, reg, log),
	}
	apiServer := &http.Server{
		Addr: cfg.APIServerAddr,
		Handler: api.NewRouter(api.Deps{
			Logger:   log,
			Metrics:  m,
			Recorder: recorder,
			Limiter:  limiter,
			Urgent:   urgent,
			Alerts:   admin,
			Jobs:     queue,
			Hub:      hub,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		log.Info("starting server", "name", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("admin", adminServer)
	go serve("api", apiServer)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	log.Info("shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	return runErr
}
