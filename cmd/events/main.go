// The events binary hosts the realtime notification service: the in-process
// event bus, the WebSocket subscription endpoint, and the publish ingress.
// It runs behind the gateway and trusts the identity headers the gateway
// injects.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"taskgate/internal/eventbus"
	"taskgate/internal/events"
	"taskgate/internal/platform/config"
	"taskgate/internal/platform/httpserver"
	"taskgate/internal/platform/logger"
	"taskgate/internal/platform/metrics"
)

func main() {
	if err := run(); err != nil {
		logger.New().Error("events service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.EventsFromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	bus := eventbus.New(log, m)
	server := events.NewServer(bus, log, reg)
	srv := httpserver.New(cfg.Addr, server)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("events service listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down events service", "timeout", cfg.ShutdownTimeout.String())

		// Streams were hijacked from the HTTP server, Shutdown cannot see
		// them. Close them first so Shutdown only waits for plain requests.
		server.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("events service stopped")
	return nil
}
