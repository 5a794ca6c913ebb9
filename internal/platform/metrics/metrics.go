// Package metrics declares the Prometheus instruments used across both
// binaries. Instruments are created against an injected registerer so tests
// can use isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ProxiedRequests        *prometheus.CounterVec
	UpstreamErrors         *prometheus.CounterVec
	AuthFailures           *prometheus.CounterVec
	KeyFetchAttempts       *prometheus.CounterVec
	RateLimitedRequests    prometheus.Counter
	ActiveSubscriptions    prometheus.Gauge
	NotificationsPublished prometheus.Counter
	NotificationsDropped   prometheus.Counter
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProxiedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_proxied_requests_total",
			Help: "Requests forwarded to a backend, by route prefix and status class",
		}, []string{"route", "status_class"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_upstream_errors_total",
			Help: "Downstream transport failures converted to 502 responses, by route prefix",
		}, []string{"route"}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_auth_failures_total",
			Help: "Rejected protected-route requests, by rejection reason",
		}, []string{"reason"}),
		KeyFetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_key_fetch_attempts_total",
			Help: "Verification key fetch attempts, by outcome",
		}, []string{"outcome"}),
		RateLimitedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskgate_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskgate_active_subscriptions",
			Help: "Currently open notification subscriptions",
		}),
		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskgate_notifications_published_total",
			Help: "Notifications published to the event bus",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskgate_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber buffer was full",
		}),
	}
}
