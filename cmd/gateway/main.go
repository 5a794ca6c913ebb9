// The gateway binary is the single public entry point. It verifies tokens,
// injects trusted identity headers, and forwards requests to the user and
// events services.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"taskgate/internal/gateway"
	"taskgate/internal/platform/config"
	"taskgate/internal/platform/httpserver"
	"taskgate/internal/platform/logger"
	"taskgate/internal/platform/metrics"
	"taskgate/internal/platform/redis"
	"taskgate/internal/ratelimit"
	"taskgate/internal/signingkey"
)

func main() {
	if err := run(); err != nil {
		logger.New().Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.GatewayFromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	keys := signingkey.NewProvider(cfg.UserServiceURL, cfg.KeyFetchInterval, log, m)

	limiter, closeStore, err := buildLimiter(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, err := gateway.New(cfg, keys, limiter, log, m, reg)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Addr, gw)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return keys.Run(ctx)
	})

	g.Go(func() error {
		log.Info("gateway listening",
			"addr", cfg.Addr,
			"user_service", cfg.UserServiceURL,
			"events_service", cfg.EventsServiceURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down gateway", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("gateway stopped")
	return nil
}

// buildLimiter picks the rate limit store: Redis when configured, in-memory
// otherwise, none at all when disabled. The returned func releases the
// Redis connection.
func buildLimiter(ctx context.Context, cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) (*ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimitOff {
		return nil, noop, nil
	}

	client, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	if client != nil {
		log.Info("rate limiting with redis store", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow.String())
		store := ratelimit.NewRedisStore(client.Client)
		return ratelimit.New(store, cfg.RateLimit, cfg.RateLimitWindow, log, m),
			func() { _ = client.Close() }, nil
	}

	log.Info("rate limiting with memory store", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow.String())
	return ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimit, cfg.RateLimitWindow, log, m), noop, nil
}
