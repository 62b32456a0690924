package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

// ClientIDHeader identifies the caller for rate limiting. The client IP is used when absent.
const ClientIDHeader = "X-Client-ID"

// RequestLimiter is implemented by usecase.RateLimiter.
type RequestLimiter interface {
	CheckRequest(ctx context.Context, key, method, route string) (domain.Decision, bool)
}

// RateLimit rejects requests over their sliding-window limit with a JSON 429 and
// annotates every limited response with X-RateLimit-* headers.
func RateLimit(limiter RequestLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			d, ok := limiter.CheckRequest(r.Context(), key, r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			h.Set("X-RateLimit-Window", strconv.Itoa(int(d.Window/time.Second)))

			if !d.Allowed {
				retry := int((d.RetryAfter + time.Second - 1) / time.Second)
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","retry_after_seconds":` + strconv.Itoa(retry) + `}`))
				logger.Info("Request rate limited", "key", key, "scope", d.Scope, "retry_after", retry)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
