package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
)

type stubLimiter struct {
	decision domain.Decision
	ok       bool
	keys     []string
	routes   []string
}

func (s *stubLimiter) CheckRequest(_ context.Context, key, method, route string) (domain.Decision, bool) {
	s.keys = append(s.keys, key)
	s.routes = append(s.routes, method+" "+route)
	return s.decision, s.ok
}

type recordedRequest struct {
	method, route string
	status        int
}

type stubRecorder struct {
	requests []recordedRequest
}

func (s *stubRecorder) RecordRequest(_ context.Context, method, route string, status int, _ time.Duration) {
	s.requests = append(s.requests, recordedRequest{method, route, status})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	reset := time.Unix(1_700_000_060, 0)

	testCases := []struct {
		name           string
		limiter        *stubLimiter
		clientID       string
		expectedStatus int
		expectedKey    string
		checkHeaders   func(t *testing.T, h http.Header)
		checkBody      func(t *testing.T, body []byte)
	}{
		{
			name: "Allowed request carries headers",
			limiter: &stubLimiter{ok: true, decision: domain.Decision{
				Allowed: true, Limit: 30, Remaining: 29, ResetAt: reset, Window: time.Minute,
			}},
			clientID:       "ward-7",
			expectedStatus: http.StatusOK,
			expectedKey:    "ward-7",
			checkHeaders: func(t *testing.T, h http.Header) {
				assert.Equal(t, "30", h.Get("X-RateLimit-Limit"))
				assert.Equal(t, "29", h.Get("X-RateLimit-Remaining"))
				assert.Equal(t, "1700000060", h.Get("X-RateLimit-Reset"))
				assert.Equal(t, "60", h.Get("X-RateLimit-Window"))
				assert.Empty(t, h.Get("Retry-After"))
			},
		},
		{
			name: "Rejected request gets JSON 429",
			limiter: &stubLimiter{ok: true, decision: domain.Decision{
				Allowed: false, Limit: 30, Remaining: 0, ResetAt: reset, Window: time.Minute, RetryAfter: 54500 * time.Millisecond,
			}},
			expectedStatus: http.StatusTooManyRequests,
			expectedKey:    "192.0.2.1",
			checkHeaders: func(t *testing.T, h http.Header) {
				assert.Equal(t, "55", h.Get("Retry-After"))
				assert.Equal(t, "application/json", h.Get("Content-Type"))
				assert.Equal(t, "0", h.Get("X-RateLimit-Remaining"))
			},
			checkBody: func(t *testing.T, body []byte) {
				var out map[string]any
				require.NoError(t, json.Unmarshal(body, &out))
				assert.Equal(t, "rate limit exceeded", out["error"])
				assert.Equal(t, float64(55), out["retry_after_seconds"])
			},
		},
		{
			name:           "Unlimited route passes through untouched",
			limiter:        &stubLimiter{ok: false},
			expectedStatus: http.StatusOK,
			expectedKey:    "192.0.2.1",
			checkHeaders: func(t *testing.T, h http.Header) {
				assert.Empty(t, h.Get("X-RateLimit-Limit"))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mw := RateLimit(tc.limiter, logger.Discard())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transitions", nil)
			if tc.clientID != "" {
				req.Header.Set(ClientIDHeader, tc.clientID)
			}
			rr := httptest.NewRecorder()

			mw(okHandler()).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			require.Len(t, tc.limiter.keys, 1)
			assert.Equal(t, tc.expectedKey, tc.limiter.keys[0])
			assert.Equal(t, "POST /api/v1/transitions", tc.limiter.routes[0])
			if tc.checkHeaders != nil {
				tc.checkHeaders(t, rr.Header())
			}
			if tc.checkBody != nil {
				tc.checkBody(t, rr.Body.Bytes())
			}
		})
	}
}

func TestInstrument_UsesRoutePattern(t *testing.T) {
	rec := &stubRecorder{}
	r := chi.NewRouter()
	r.Use(Instrument(rec, nil))
	r.Get("/api/v1/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/quiet", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/api/v1/alerts/abc", "/boom", "/quiet"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []recordedRequest{
		{http.MethodGet, "/api/v1/alerts/{id}", http.StatusNotFound},
		{http.MethodGet, "/boom", http.StatusBadGateway},
		{http.MethodGet, "/quiet", http.StatusOK},
	}, rec.requests)
}

func TestLogging_ErrorLevelForServerErrors(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "test", "info")

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "handled request", entry["msg"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status"])
	assert.Equal(t, "/api/v1/rules", entry["path"])
}
