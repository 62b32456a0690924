package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

// RateLimiter admits requests with a sliding-window count per key and scope.
// The count-and-append step is delegated to the store, which performs it atomically.
type RateLimiter struct {
	store     domain.CounterStore
	verbs     map[string]domain.Limit
	endpoints map[string]domain.Limit
	timeout   time.Duration
	metrics   *metrics.SignalMetrics
	logger    *slog.Logger
	now       Clock
}

// NewRateLimiter creates a limiter. Endpoint keys look like "POST /api/v1/transitions",
// verb keys like "GET". Each store call is bounded by timeout.
func NewRateLimiter(store domain.CounterStore, verbs, endpoints map[string]domain.Limit, timeout time.Duration, m *metrics.SignalMetrics, logger *slog.Logger, now Clock) *RateLimiter {
	return &RateLimiter{
		store:     store,
		verbs:     verbs,
		endpoints: endpoints,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With("component", "rate_limiter"),
		now:       clockOrNow(now),
	}
}

// Resolve picks the limit for a request: the exact endpoint limit if configured,
// otherwise the verb limit.
func (rl *RateLimiter) Resolve(method, route string) (scope string, limit domain.Limit, ok bool) {
	scope = method + " " + route
	if l, found := rl.endpoints[scope]; found {
		return scope, l, true
	}
	if l, found := rl.verbs[method]; found {
		return method, l, true
	}
	return "", domain.Limit{}, false
}

// CheckRequest resolves the scope for method and route and checks it. ok is false
// when no limit applies.
func (rl *RateLimiter) CheckRequest(ctx context.Context, key, method, route string) (domain.Decision, bool) {
	scope, limit, ok := rl.Resolve(method, route)
	if !ok {
		return domain.Decision{}, false
	}
	return rl.Check(ctx, key, scope, limit), true
}

// Check admits or rejects one request for key within scope. Backend errors and
// timeouts let the request through with default metadata.
func (rl *RateLimiter) Check(ctx context.Context, key, scope string, limit domain.Limit) domain.Decision {
	now := rl.now()
	d := domain.Decision{
		Key:    key,
		Scope:  scope,
		Limit:  limit.Requests,
		Window: limit.Window,
	}

	if limit.Requests <= 0 || limit.Window <= 0 {
		rl.logger.Error("Ignoring invalid rate limit", "scope", scope, "requests", limit.Requests, "window", limit.Window)
		return rl.failOpen(d, now)
	}

	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	res, err := rl.store.AddIfBelow(ctx, domain.RequestSampleType(scope, key), now.Add(-limit.Window), now, limit.Requests)
	if err != nil {
		rl.logger.Warn("Rate limit store unavailable, failing open", "scope", scope, "key", key, "error", err)
		return rl.failOpen(d, now)
	}

	d.Allowed = res.Admitted
	d.Remaining = max(limit.Requests-res.Count, 0)
	oldest := res.Oldest
	if oldest.IsZero() {
		oldest = now
	}
	d.ResetAt = oldest.Add(limit.Window)
	if !d.Allowed {
		d.RetryAfter = max(d.ResetAt.Sub(now), time.Second)
		rl.metrics.RateLimitDecision(scope, "rejected")
	} else {
		rl.metrics.RateLimitDecision(scope, "allowed")
	}
	return d
}

func (rl *RateLimiter) failOpen(d domain.Decision, now time.Time) domain.Decision {
	d.Allowed = true
	d.Degraded = true
	d.Remaining = d.Limit
	d.ResetAt = now.Add(d.Window)
	rl.metrics.RateLimitDecision(d.Scope, "degraded")
	return d
}
