package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/window"
)

// MaintenanceFunc runs after every evaluator tick.
type MaintenanceFunc func(ctx context.Context) error

// EvaluatorOptions configures a RuleEvaluator.
type EvaluatorOptions struct {
	RuleTimeout    time.Duration
	AutoResolveAge time.Duration
	// ExtraWindows are retention windows outside the catalog, e.g. rate-limit windows.
	ExtraWindows []time.Duration
}

// TickReport summarizes one evaluation pass.
type TickReport struct {
	Evaluated int
	Triggered []string
	Created   []string
	Skipped   []string
	Resolved  int
	Compacted int64
}

// RuleEvaluator periodically evaluates the enabled rules against the counter store
// and raises at most one open alert per rule.
type RuleEvaluator struct {
	catalog     *RuleCatalog
	counters    domain.CounterStore
	alerts      domain.AlertStore
	publisher   domain.Publisher
	enqueuer    domain.Enqueuer
	opts        EvaluatorOptions
	maintenance []namedMaintenance
	metrics     *metrics.SignalMetrics
	logger      *slog.Logger
	now         Clock

	running  atomic.Bool
	lastTick atomic.Int64
}

type namedMaintenance struct {
	name string
	fn   MaintenanceFunc
}

// NewRuleEvaluator creates a RuleEvaluator. publisher and enqueuer may be nil.
func NewRuleEvaluator(catalog *RuleCatalog, counters domain.CounterStore, alerts domain.AlertStore, publisher domain.Publisher, enqueuer domain.Enqueuer, opts EvaluatorOptions, m *metrics.SignalMetrics, logger *slog.Logger, now Clock) *RuleEvaluator {
	return &RuleEvaluator{
		catalog:   catalog,
		counters:  counters,
		alerts:    alerts,
		publisher: publisher,
		enqueuer:  enqueuer,
		opts:      opts,
		metrics:   m,
		logger:    logger.With("component", "rule_evaluator"),
		now:       clockOrNow(now),
	}
}

// AddMaintenance registers a job to run after each tick, such as purging expired urgent alerts.
func (e *RuleEvaluator) AddMaintenance(name string, fn MaintenanceFunc) {
	e.maintenance = append(e.maintenance, namedMaintenance{name: name, fn: fn})
}

// LastTick returns when the last completed tick started.
func (e *RuleEvaluator) LastTick() (time.Time, bool) {
	ns := e.lastTick.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns).UTC(), true
}

// Run ticks immediately and then on every interval until ctx is cancelled.
// A tick already in progress when ctx is cancelled runs to completion.
func (e *RuleEvaluator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	e.logger.Info("Starting rule evaluator", "interval", interval, "rules", len(e.catalog.Enabled()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tickCtx := context.WithoutCancel(ctx)
	e.Tick(tickCtx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			e.Tick(tickCtx)
		}
	}
	e.logger.Info("Rule evaluator stopped")
}

// Tick performs one evaluation pass. It returns false without doing anything when
// another pass is already in flight.
func (e *RuleEvaluator) Tick(ctx context.Context) (TickReport, bool) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("Previous evaluation still running, skipping tick")
		e.metrics.EvaluatorTick("skipped", 0)
		return TickReport{}, false
	}
	defer e.running.Store(false)

	ctx, span := otel.Tracer("rule-evaluator").Start(ctx, "EvaluatorTick")
	defer span.End()

	start := e.now()
	var report TickReport

	for _, rule := range e.catalog.Enabled() {
		report.Evaluated++
		triggered, created, err := e.evaluateRule(ctx, rule, start)
		if err != nil {
			report.Skipped = append(report.Skipped, rule.Name)
			continue
		}
		if triggered {
			report.Triggered = append(report.Triggered, rule.Name)
		}
		if created != nil {
			report.Created = append(report.Created, created.ID)
		}
	}

	report.Resolved = e.autoResolve(ctx, start)
	report.Compacted = e.compact(ctx, start)
	for _, m := range e.maintenance {
		if err := m.fn(ctx); err != nil {
			e.logger.Warn("Maintenance task failed", "task", m.name, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("rules.evaluated", report.Evaluated),
		attribute.Int("alerts.created", len(report.Created)),
		attribute.Int("rules.skipped", len(report.Skipped)),
	)
	if len(report.Skipped) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d rules skipped", len(report.Skipped)))
	}

	e.lastTick.Store(start.UnixNano())
	e.metrics.EvaluatorTick("completed", e.now().Sub(start))
	e.logger.Debug("Evaluation tick completed",
		"evaluated", report.Evaluated, "triggered", len(report.Triggered),
		"created", len(report.Created), "skipped", len(report.Skipped))
	return report, true
}

// evaluateRule returns an error only when the rule had to be skipped.
func (e *RuleEvaluator) evaluateRule(ctx context.Context, rule domain.AlertRule, now time.Time) (bool, *domain.ActiveAlert, error) {
	log := e.logger.With("rule", rule.Name)

	if e.opts.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RuleTimeout)
		defer cancel()
	}

	since := window.Start(now, rule.Window())
	var (
		value float64
		ok    bool
		count int
		err   error
	)
	if rule.Statistic == domain.StatCount {
		var n int64
		n, err = e.counters.CountWindow(ctx, rule.MetricType, since)
		value, ok, count = float64(n), n > 0, int(n)
	} else {
		var samples []domain.MetricSample
		samples, err = e.counters.QueryWindow(ctx, rule.MetricType, since)
		if err == nil {
			count = len(samples)
			value, ok, err = computeStatistic(rule.Statistic, samples)
			if err != nil {
				log.Error("Skipping rule with invalid definition", "error", err)
				return false, nil, err
			}
		}
	}
	if err != nil {
		log.Warn("Skipping rule, counter store unavailable", "error", err)
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	triggered, err := rule.Comparator.Compare(value, rule.Threshold)
	if err != nil {
		log.Error("Skipping rule with invalid definition", "error", err)
		return false, nil, err
	}
	if !triggered {
		return false, nil, nil
	}

	alert := &domain.ActiveAlert{
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		Title:       fmt.Sprintf("%s: %s %s %g", rule.Name, rule.Statistic, rule.Comparator, rule.Threshold),
		Description: rule.Description,
		Details: map[string]any{
			"category":       rule.Category,
			"metric_type":    rule.MetricType,
			"statistic":      string(rule.Statistic),
			"value":          value,
			"threshold":      rule.Threshold,
			"comparator":     string(rule.Comparator),
			"window_seconds": rule.WindowSeconds,
			"sample_count":   count,
		},
		TriggeredAt: now,
		Status:      domain.AlertActive,
	}
	created, err := e.alerts.CreateIfNoneActive(ctx, alert)
	if err != nil {
		log.Warn("Skipping rule, alert store unavailable", "error", err)
		return true, nil, err
	}
	if !created {
		log.Debug("Rule still firing, alert already open")
		return true, nil, nil
	}

	log.Info("Alert triggered", "alert_id", alert.ID, "severity", alert.Severity, "value", value)
	e.metrics.AlertTriggered(rule.Name, string(rule.Severity))
	e.announce(ctx, *alert)
	return true, alert, nil
}

func (e *RuleEvaluator) announce(ctx context.Context, alert domain.ActiveAlert) {
	if e.publisher != nil {
		msg := domain.Message{
			Type:      domain.EventAlertTriggered,
			Timestamp: alert.TriggeredAt,
			Payload:   alertPayload(alert),
		}
		if err := e.publisher.Publish(ctx, domain.GlobalChannel, msg); err != nil {
			e.logger.Warn("Failed to publish alert", "alert_id", alert.ID, "error", err)
		}
	}

	if e.enqueuer != nil && alert.Severity.Escalates() {
		payload := map[string]any{
			"alert_id":  alert.ID,
			"rule_name": alert.RuleName,
			"severity":  string(alert.Severity),
			"title":     alert.Title,
		}
		if _, err := e.enqueuer.Enqueue(ctx, domain.JobAlertEscalate, payload, domain.JobPriorityImmediate, nil); err != nil {
			e.logger.Error("Failed to enqueue escalation", "alert_id", alert.ID, "error", err)
		}
	}
}

func (e *RuleEvaluator) autoResolve(ctx context.Context, now time.Time) int {
	if e.opts.AutoResolveAge <= 0 {
		return 0
	}
	resolved, err := e.alerts.ResolveOlderThan(ctx, now.Add(-e.opts.AutoResolveAge), now)
	if err != nil {
		e.logger.Warn("Auto-resolve sweep failed", "error", err)
		return 0
	}
	for _, a := range resolved {
		e.logger.Info("Alert auto-resolved", "alert_id", a.ID, "rule", a.RuleName)
		if e.publisher == nil {
			continue
		}
		msg := domain.Message{Type: domain.EventAlertResolved, Timestamp: now, Payload: alertPayload(a)}
		if err := e.publisher.Publish(ctx, domain.GlobalChannel, msg); err != nil {
			e.logger.Warn("Failed to publish resolution", "alert_id", a.ID, "error", err)
		}
	}
	return len(resolved)
}

// compact drops samples older than the longest window still in use.
func (e *RuleEvaluator) compact(ctx context.Context, now time.Time) int64 {
	windows := append(e.catalog.Windows(), e.opts.ExtraWindows...)
	horizon := window.Longest(windows...)
	if horizon <= 0 {
		return 0
	}
	n, err := e.counters.Compact(ctx, now.Add(-horizon))
	if err != nil {
		e.logger.Warn("Compaction failed", "error", err)
		return 0
	}
	if n > 0 {
		e.logger.Debug("Compacted samples", "removed", n, "horizon", horizon)
	}
	return n
}

func alertPayload(a domain.ActiveAlert) map[string]any {
	p := map[string]any{
		"alert_id":     a.ID,
		"rule_name":    a.RuleName,
		"severity":     string(a.Severity),
		"title":        a.Title,
		"description":  a.Description,
		"status":       string(a.Status),
		"triggered_at": a.TriggeredAt,
	}
	if a.Details != nil {
		p["details"] = a.Details
	}
	if a.AcknowledgedBy != "" {
		p["acknowledged_by"] = a.AcknowledgedBy
	}
	return p
}
