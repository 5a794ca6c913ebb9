// Package ratelimit bounds per-client request rates at the gateway edge.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"taskgate/internal/platform/httpjson"
	"taskgate/internal/platform/metrics"
	dErrors "taskgate/pkg/domainerrors"
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key within a window. Implementations must be
// safe for concurrent use.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter is the per-IP rate limiting middleware.
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a Limiter allowing limit requests per window per client IP.
func New(store Store, limit int, window time.Duration, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, logger: logger, metrics: m}
}

// Middleware enforces the limit. Store failures fail open: an unreachable
// counter backend must not take down the whole edge.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		result, err := l.store.Allow(r.Context(), ip, l.limit, l.window)
		if err != nil {
			l.logger.ErrorContext(r.Context(), "rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if l.metrics != nil {
				l.metrics.RateLimitedRequests.Inc()
			}
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.ResetAt).Seconds())+1, 10))
			httpjson.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, please try again later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the peer address. The gateway is the edge: forwarding
// headers are client-controllable here and deliberately ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
