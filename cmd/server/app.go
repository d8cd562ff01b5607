package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sdcatalog/internal/graph/cypher"
	graphmetrics "sdcatalog/internal/graph/metrics"
	"sdcatalog/internal/graph/neo4j"
	httpapi "sdcatalog/internal/http"
	"sdcatalog/internal/platform/config"
	"sdcatalog/internal/platform/kafka"
	"sdcatalog/internal/platform/logger"
	"sdcatalog/internal/platform/metrics"
	"sdcatalog/internal/platform/postgres"
	"sdcatalog/internal/platform/redis"
	"sdcatalog/internal/selfdescription/events"
	sdmetrics "sdcatalog/internal/selfdescription/metrics"
	"sdcatalog/internal/selfdescription/service"
	"sdcatalog/internal/selfdescription/store/blob"
	"sdcatalog/internal/selfdescription/store/metadata"
)

// app is the wired process: stores, graph gateway and lifecycle service.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *metrics.Registry
	graph    *neo4j.Store
	service  *service.Service
	checkers map[string]httpapi.Checker
	closers  []func(context.Context) error
}

func loadConfig(opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(cfg.Log), nil
}

// openGraph connects to Neo4j only; graph-init and query need nothing else.
func openGraph(cfg config.Config, log *slog.Logger, registry *metrics.Registry) (*neo4j.Store, error) {
	return neo4j.New(cfg.Neo4j,
		neo4j.WithLogger(log),
		neo4j.WithMetrics(graphmetrics.New(registry)),
		neo4j.WithGuard(cypher.NewGuard()),
	)
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: metrics.New(),
		checkers: map[string]httpapi.Checker{},
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	graph, err := openGraph(a.cfg, a.logger, a.registry)
	if err != nil {
		return err
	}
	a.graph = graph
	a.closers = append(a.closers, graph.Close)
	a.checkers["neo4j"] = graph.Health
	if err := graph.Bootstrap(ctx); err != nil {
		return err
	}

	var (
		meta  service.MetadataStore
		blobs service.BlobStore
	)
	switch a.cfg.Store {
	case "memory":
		a.logger.WarnContext(ctx, "using in-memory metadata and document stores; data is lost on exit")
		meta = metadata.NewInMemory(a.cfg.Postgres.LockWait)
		blobs = blob.NewInMemory()
	default:
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		pg := metadata.NewPostgres(db, a.cfg.Postgres.LockWait)
		if a.cfg.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		a.checkers["postgres"] = pg.Ping
		meta = pg

		rc, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		a.checkers["redis"] = rc.Health
		blobs = blob.NewRedis(rc.Client, rc.KeyPrefix())
	}

	svcOpts := []service.Option{
		service.WithLogger(a.logger),
		service.WithMetrics(sdmetrics.New(a.registry)),
		service.WithHasURIPredicate(a.cfg.Neo4j.HasURIPredicate),
	}
	kc, err := kafka.New(a.cfg.Kafka)
	if err != nil {
		return err
	}
	if kc != nil {
		a.closers = append(a.closers, func(context.Context) error { kc.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, kc.Client, kc.Topic(), a.cfg.Kafka.Partitions, a.cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}
		a.checkers["kafka"] = kc.Health
		svcOpts = append(svcOpts, service.WithEventPublisher(events.NewKafkaPublisher(kc.Client, kc.Topic())))
	}

	svc, err := service.New(meta, blobs, a.graph, svcOpts...)
	if err != nil {
		return fmt.Errorf("build lifecycle service: %w", err)
	}
	a.service = svc
	return nil
}

// Close releases every opened resource in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
