// Package proxy forwards inbound requests to backend services, injecting
// verified identity as trusted headers and tunneling protocol upgrades.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"taskgate/internal/auth"
	"taskgate/internal/platform/httpjson"
	"taskgate/internal/platform/metrics"
	"taskgate/internal/platform/middleware"
	dErrors "taskgate/pkg/domainerrors"
)

// Forwarder is the reverse proxy for a single route rule.
type Forwarder struct {
	rule    Rule
	proxy   *httputil.ReverseProxy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewForwarder builds the reverse proxy for rule. timeout bounds how long
// the backend may take to produce response headers; beyond it the request
// is answered with the uniform upstream-unavailable response rather than
// leaking the connection.
func NewForwarder(rule Rule, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Forwarder {
	f := &Forwarder{rule: rule, logger: logger, metrics: m}

	rp := &httputil.ReverseProxy{
		Rewrite: f.rewrite,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
		},
		ErrorHandler:   f.handleError,
		ModifyResponse: f.countResponse,
	}
	if rule.Streaming {
		// Streamed frames must reach the client as they arrive.
		rp.FlushInterval = -1
	}
	f.proxy = rp
	return f
}

// Rule returns the route rule this forwarder serves.
func (f *Forwarder) Rule() Rule { return f.rule }

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.proxy.ServeHTTP(w, r)
}

// rewrite points the outbound request at the backend and establishes the
// trusted header boundary: client-supplied identity headers are always
// stripped, and verified identity is injected only on protected rules.
func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.rule.Target)
	pr.Out.Host = f.rule.Target.Host
	pr.SetXForwarded()

	StripTrustedHeaders(pr.Out.Header)
	if f.rule.RequireAuth {
		if claims, ok := auth.IdentityFromContext(pr.In.Context()); ok {
			TrustedHeadersFromClaims(claims).Apply(pr.Out.Header)
		}
	}
}

func (f *Forwarder) countResponse(resp *http.Response) error {
	if f.metrics != nil {
		f.metrics.ProxiedRequests.WithLabelValues(f.rule.Prefix, statusClass(resp.StatusCode)).Inc()
	}
	return nil
}

// handleError converts every downstream transport failure into the uniform
// upstream-unavailable response. The target host goes to the log, never to
// the client.
func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if f.metrics != nil {
		f.metrics.UpstreamErrors.WithLabelValues(f.rule.Prefix).Inc()
	}
	f.logger.ErrorContext(r.Context(), "upstream request failed",
		"route", f.rule.Prefix,
		"target", f.rule.Target.Host,
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	// The client went away; there is nobody left to answer.
	if errors.Is(err, context.Canceled) {
		return
	}

	httpjson.WriteError(w, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "service unavailable", err))
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
