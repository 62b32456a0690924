package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/usecase"
)

// RateLimitHandler exposes the limiter to external callers that enforce limits themselves.
type RateLimitHandler struct {
	limiter *usecase.RateLimiter
	logger  *slog.Logger
}

func NewRateLimitHandler(limiter *usecase.RateLimiter, logger *slog.Logger) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, logger: logger}
}

type rateLimitResponse struct {
	domain.Decision
	WindowSeconds     int `json:"window_seconds"`
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// ServeHTTP checks {"key","scope","limit","window_seconds"}. When limit is omitted the
// configured limit for scope (an endpoint like "POST /api/v1/transitions" or a verb) applies.
func (h *RateLimitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key           string `json:"key"`
		Scope         string `json:"scope"`
		Limit         int    `json:"limit"`
		WindowSeconds int    `json:"window_seconds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Key, req.Scope = strings.TrimSpace(req.Key), strings.TrimSpace(req.Scope)
	if req.Key == "" || req.Scope == "" {
		writeError(w, http.StatusBadRequest, "key and scope are required")
		return
	}

	var d domain.Decision
	if req.Limit > 0 || req.WindowSeconds > 0 {
		if req.Limit <= 0 || req.WindowSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "limit and window_seconds must both be positive")
			return
		}
		d = h.limiter.Check(r.Context(), req.Key, req.Scope, domain.Limit{Requests: req.Limit, Window: time.Duration(req.WindowSeconds) * time.Second})
	} else {
		method, route, _ := strings.Cut(req.Scope, " ")
		var ok bool
		d, ok = h.limiter.CheckRequest(r.Context(), req.Key, method, route)
		if !ok {
			writeError(w, http.StatusNotFound, "no limit configured for scope")
			return
		}
	}

	resp := rateLimitResponse{Decision: d, WindowSeconds: int(d.Window / time.Second)}
	status := http.StatusOK
	if !d.Allowed {
		resp.RetryAfterSeconds = int((d.RetryAfter + time.Second - 1) / time.Second)
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, resp)
}
