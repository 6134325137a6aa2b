package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	groupcoordination "gatherly/contexts/collaboration/group-coordination"
	grouppostgres "gatherly/contexts/collaboration/group-coordination/adapters/postgres"
	"gatherly/contexts/collaboration/group-coordination/application/commands"
	groupworkers "gatherly/contexts/collaboration/group-coordination/application/workers"
	"gatherly/contexts/collaboration/group-coordination/ports"
	"gatherly/internal/platform/config"
	"gatherly/internal/platform/db"
	"gatherly/internal/platform/httpserver"
	"gatherly/internal/platform/messaging"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	// events is set only for the in-memory store; with postgres the worker
	// process relays the outbox.
	events *eventPipeline
	logger *slog.Logger
}

type WorkerApp struct {
	postgres *db.Postgres
	events   *eventPipeline
	logger   *slog.Logger
}

// eventPipeline relays the outbox to the bus and logs what it delivers.
type eventPipeline struct {
	bus          *messaging.Kafka
	outboxRelay  groupworkers.OutboxRelay
	activityLog  groupworkers.ActivityLogConsumer
	pollInterval time.Duration
	logger       *slog.Logger
}

func newEventPipeline(
	bus *messaging.Kafka,
	outbox ports.OutboxRepository,
	clock ports.Clock,
	batchSize int,
	pollInterval time.Duration,
	logger *slog.Logger,
) *eventPipeline {
	return &eventPipeline{
		bus: bus,
		outboxRelay: groupworkers.OutboxRelay{
			Outbox:    outbox,
			Publisher: bus,
			Clock:     clock,
			BatchSize: batchSize,
			Logger:    logger,
		},
		activityLog: groupworkers.ActivityLogConsumer{
			Subscriber:    bus,
			Topics:        commands.EventTypes(),
			ConsumerGroup: "group-coordination-activity-log",
			Logger:        logger,
		},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// run subscribes the activity log, then relays the outbox every pollInterval
// until ctx is cancelled. The bus drops events that have no subscriber yet, so
// the subscription must exist before the first relay cycle.
func (p *eventPipeline) run(ctx context.Context) error {
	if err := p.activityLog.Start(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		// RunOnce logs its own failures; the next tick retries.
		_, _ = p.outboxRelay.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if cfg.UseInMemoryStore {
		logger.Warn("using in-memory store",
			"event", "bootstrap_in_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		module := groupcoordination.NewInMemoryModule(logger)
		bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, err
		}
		return &APIApp{
			server: httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort)),
			events: newEventPipeline(bus, module.Store, module.Store, cfg.OutboxBatchSize, cfg.OutboxPollInterval, logger),
			logger: logger,
		}, nil
	}

	pg, repo, err := connectRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	module := groupcoordination.NewModule(groupcoordination.Dependencies{
		Repository:    repo,
		UnitOfWork:    repo,
		Clock:         grouppostgres.SystemClock{},
		IDGenerator:   grouppostgres.UUIDGenerator{},
		GroupPageSize: cfg.GroupPageSize,
		Logger:        logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	pg, repo, err := connectRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		events:   newEventPipeline(kafka, repo, grouppostgres.SystemClock{}, cfg.OutboxBatchSize, cfg.OutboxPollInterval, logger),
		logger:   logger,
	}, nil
}

func connectRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.Postgres, *grouppostgres.Repository, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}

	repo := grouppostgres.NewRepository(pg.DB, logger, cfg.DBLockTimeout)
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	return pg, repo, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	if a.events != nil {
		g.Go(func() error { return a.events.run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.bus.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

// Run relays the outbox on an interval and keeps the activity consumer
// subscribed until ctx is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.events.pollInterval.String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.events.run(gctx) })
	return g.Wait()
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.events != nil {
		errs = append(errs, w.events.bus.Close())
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
