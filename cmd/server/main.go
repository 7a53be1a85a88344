package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"idregistry/internal/audit"
	"idregistry/internal/platform/admintoken"
	"idregistry/internal/platform/config"
	"idregistry/internal/platform/httpserver"
	"idregistry/internal/platform/logger"
	platformmetrics "idregistry/internal/platform/metrics"
	"idregistry/internal/ratelimit"
	"idregistry/internal/registry/handler"
	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/outbox"
	"idregistry/internal/registry/quorum"
	"idregistry/internal/registry/service"
	"idregistry/pkg/platform/middleware/auth"
	"idregistry/pkg/platform/middleware/metadata"
	request "idregistry/pkg/platform/middleware/request"
	"idregistry/pkg/platform/middleware/requesttime"
)

const auditBuffer = 1024

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registryMetrics := metrics.NewWithRegisterer(reg)
	httpMetrics := platformmetrics.NewWithRegisterer(reg)

	infra, err := openInfra(ctx, cfg, log, registryMetrics)
	if err != nil {
		return err
	}
	defer infra.Close()

	g, gctx := errgroup.WithContext(ctx)

	auditPublisher, auditWorker := audit.NewAsync(infra.auditStore, auditBuffer, log)
	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	notifications := outbox.New(infra.outbox, infra.dispatcher,
		outbox.WithLogger(log),
		outbox.WithMetrics(registryMetrics),
	)
	g.Go(func() error {
		return notifications.Run(gctx)
	})

	svc := service.New(infra.registrations, infra.settings, quorum.New(),
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(registryMetrics),
		service.WithOutbox(notifications),
	)
	if err := bootstrap(ctx, svc, cfg.Registry, log); err != nil {
		return err
	}

	tokens := admintoken.NewService(cfg.Admin.JWTSigningKey, cfg.Admin.Issuer, cfg.Admin.Audience)
	h := handler.New(svc, audit.NewPublisher(infra.auditStore), log)
	limiter, err := newLimiter(cfg.RateLimit, infra.limiterStore, log)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Use(request.Logger(log))

	r.Get("/healthz", healthHandler(infra.checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Group(func(public chi.Router) {
		if limiter != nil {
			public.Use(ratelimit.Middleware(limiter, log))
		}
		h.Register(public)
	})
	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin(tokens, log))
		h.RegisterAdmin(admin)
	})

	srv := httpserver.New(cfg.Addr, r)
	g.Go(func() error {
		log.Info("starting idregistry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})

	return g.Wait()
}

// newLimiter returns nil when rate limiting is disabled.
func newLimiter(cfg config.RateLimitConfig, store ratelimit.Store, log *slog.Logger) (*ratelimit.Limiter, error) {
	if cfg.Requests <= 0 {
		log.Info("rate limiting disabled")
		return nil, nil
	}
	opts := []ratelimit.Option{ratelimit.WithLogger(log)}
	if _, inMemory := store.(*ratelimit.InMemoryStore); !inMemory {
		opts = append(opts, ratelimit.WithFallback(ratelimit.NewInMemoryStore()))
	}
	return ratelimit.New(store, cfg.Requests, cfg.Window, opts...)
}
