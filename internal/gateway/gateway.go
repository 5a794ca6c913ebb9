// Package gateway assembles the public edge: the route table, the
// middleware chain, the verification-gated forwarders, and the health and
// metrics endpoints.
package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskgate/internal/auth"
	"taskgate/internal/platform/config"
	"taskgate/internal/platform/httpjson"
	"taskgate/internal/platform/metrics"
	"taskgate/internal/platform/middleware"
	"taskgate/internal/proxy"
	"taskgate/internal/ratelimit"
	"taskgate/internal/signingkey"
	dErrors "taskgate/pkg/domainerrors"
)

// Routes builds the static route table from configuration. The /api/auth
// prefix stays public so clients can obtain tokens in the first place;
// everything else requires a verified token before the backend sees the
// request.
func Routes(cfg config.Gateway) ([]proxy.Rule, error) {
	specs := []struct {
		prefix      string
		target      string
		requireAuth bool
		streaming   bool
	}{
		{prefix: "/api/auth", target: cfg.UserServiceURL},
		{prefix: "/api/users", target: cfg.UserServiceURL, requireAuth: true},
		{prefix: "/api/teams", target: cfg.UserServiceURL, requireAuth: true},
		{prefix: "/events", target: cfg.EventsServiceURL, requireAuth: true, streaming: true},
	}

	rules := make([]proxy.Rule, 0, len(specs))
	for _, s := range specs {
		rule, err := proxy.NewRule(s.prefix, s.target, s.requireAuth, s.streaming)
		if err != nil {
			return nil, fmt.Errorf("building route table: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Gateway is the assembled edge handler.
type Gateway struct {
	router chi.Router
	keys   *signingkey.Provider
	cfg    config.Gateway
}

// New wires middleware, forwarders, and operational endpoints into one
// handler. limiter may be nil when rate limiting is disabled.
func New(
	cfg config.Gateway,
	keys *signingkey.Provider,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
	m *metrics.Metrics,
	reg prometheus.Gatherer,
) (*Gateway, error) {
	verifier, err := auth.NewVerifier(keys, cfg.JWTAlgorithm)
	if err != nil {
		return nil, err
	}

	rules, err := Routes(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{router: chi.NewRouter(), keys: keys, cfg: cfg}

	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.Recovery(logger))
	g.router.Use(middleware.Logger(logger))
	g.router.Use(middleware.CORS(cfg.CORSOrigins))
	if limiter != nil {
		g.router.Use(limiter.Middleware)
	}

	g.router.Get("/health", g.handleHealth)
	g.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	requireAuth := auth.RequireAuth(verifier, logger, m)
	for _, rule := range rules {
		var h http.Handler = proxy.NewForwarder(rule, cfg.ProxyTimeout, logger, m)
		if rule.RequireAuth {
			h = requireAuth(h)
		}
		g.router.Handle(rule.Prefix, h)
		g.router.Handle(rule.Prefix+"/*", h)
	}

	g.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})

	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// handleHealth reports liveness. It answers 200 regardless of downstream
// state; the per-service detail is informational so operators can see what
// the gateway is fronting and whether verification is possible yet.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	keyState := "pending"
	if g.keys.Ready() {
		keyState = "ready"
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"services": map[string]string{
			"users":  g.cfg.UserServiceURL,
			"events": g.cfg.EventsServiceURL,
		},
		"signingKey": keyState,
	})
}
