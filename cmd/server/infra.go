package main

import (
	"context"
	"fmt"
	"log/slog"

	"idregistry/internal/audit"
	"idregistry/internal/platform/config"
	redisclient "idregistry/internal/platform/redis"
	"idregistry/internal/ratelimit"
	"idregistry/internal/registry/cache"
	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/notifier"
	"idregistry/internal/registry/outbox"
	"idregistry/internal/registry/service"
	"idregistry/internal/registry/store"
	"idregistry/pkg/platform/circuit"
)

// infra holds the backing services selected by configuration.
type infra struct {
	registrations service.RegistrationStore
	settings      service.SettingsStore
	auditStore    audit.Store
	outbox        outbox.Store
	dispatcher    notifier.Dispatcher
	limiterStore  ratelimit.Store
	checks        []healthCheck
	closers       []func()
}

func (i *infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger, m *metrics.Metrics) (_ *infra, err error) {
	in := &infra{
		outbox:       outbox.NewInMemory(),
		dispatcher:   notifier.Noop{},
		limiterStore: ratelimit.NewInMemoryStore(),
	}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	if cfg.Postgres.DSN != "" {
		db, err := store.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, func() { _ = db.Close() })
		if err := store.Migrate(ctx, db); err != nil {
			return nil, err
		}
		auditStore := audit.NewPostgresStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			return nil, err
		}
		in.registrations = store.NewPostgres(db)
		in.settings = store.NewPostgresSettings(db)
		in.outbox = outbox.NewPostgres(db)
		in.auditStore = auditStore
		in.checks = append(in.checks, healthCheck{name: "postgres", check: db.PingContext})
		log.Info("using postgres store")
	} else {
		in.registrations = store.NewInMemory()
		in.settings = store.NewInMemorySettings()
		in.auditStore = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, registry state is kept in memory")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		in.closers = append(in.closers, func() { _ = rc.Close() })
		in.registrations = cache.New(in.registrations, rc.Client,
			cache.WithTTL(cfg.Redis.CacheTTL),
			cache.WithLogger(log),
			cache.WithMetrics(m),
		)
		in.limiterStore = ratelimit.NewRedisStore(rc.Client)
		in.checks = append(in.checks, healthCheck{name: "redis", check: rc.Health})
		log.Info("registration cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notifier.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, k.Close)
		if err := k.EnsureTopic(ctx, 3, 1); err != nil {
			return nil, fmt.Errorf("bootstrap notification topic: %w", err)
		}
		in.dispatcher = notifier.NewGuarded(k, circuit.New("kafka-notifications"), log)
		in.checks = append(in.checks, healthCheck{name: "kafka", check: k.Ping})
		log.Info("receiver notifications published to kafka", "topic", k.Topic())
	}
	return in, nil
}
