package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/deferq/pkg/config"
	"github.com/dmitrymomot/deferq/pkg/logger"
	"github.com/dmitrymomot/deferq/pkg/mongo"
	"github.com/dmitrymomot/deferq/pkg/pg"
	"github.com/dmitrymomot/deferq/pkg/queue"
	"github.com/dmitrymomot/deferq/pkg/redis"
)

// backends holds the queue storage and target writer chosen by configuration
type backends struct {
	storage queue.ProcessorRepository
	writer  queue.Writer

	checks  map[string]func(context.Context) error
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects only to the databases the selected drivers need
func openBackends(ctx context.Context, app appConfig, qcfg queue.Config, log *slog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]func(context.Context) error)}

	memory := queue.NewMemoryStorage()
	var (
		mongoStorage *mongo.QueueStorage
		mongoWriter  *mongo.DocumentWriter
		pgStorage    *pg.QueueStorage
		pgWriter     *pg.DocumentWriter
		redisWriter  *redis.HashWriter
	)

	if app.uses(driverMongo) {
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return b, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, func() { _ = db.Client().Disconnect(context.Background()) })
		b.checks[driverMongo] = mongo.Healthcheck(db.Client())

		if mongoStorage, err = mongo.NewQueueStorage(db, qcfg.QueueCollection, mongo.WithLogger(log)); err != nil {
			return b, err
		}
		if app.StorageDriver == driverMongo {
			if err := mongoStorage.EnsureIndexes(ctx); err != nil {
				return b, err
			}
		}
		if mongoWriter, err = mongo.NewDocumentWriter(db); err != nil {
			return b, err
		}
		log.InfoContext(ctx, "connected to mongo", slog.String("database", cfg.Database))
	}

	if app.uses(driverPG) {
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return b, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, pool.Close)
		b.checks[driverPG] = pg.Healthcheck(pool)

		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, cfg, log.With(logger.Component("migrations"))); err != nil {
				return b, err
			}
		}
		if pgStorage, err = pg.NewQueueStorage(pool, qcfg.QueueCollection); err != nil {
			return b, err
		}
		if pgWriter, err = pg.NewDocumentWriter(pool, ""); err != nil {
			return b, err
		}
		log.InfoContext(ctx, "connected to postgres")
	}

	if app.uses(driverRedis) {
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return b, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks[driverRedis] = redis.Healthcheck(client)

		if redisWriter, err = redis.NewHashWriter(client, cfg.KeyPrefix); err != nil {
			return b, err
		}
		log.InfoContext(ctx, "connected to redis")
	}

	switch app.StorageDriver {
	case driverMongo:
		b.storage = mongoStorage
	case driverPG:
		b.storage = pgStorage
	case driverMemory:
		b.storage = memory
	default:
		return b, fmt.Errorf("unsupported storage driver %q", app.StorageDriver)
	}

	switch app.WriterDriver {
	case driverMongo:
		b.writer = mongoWriter
	case driverPG:
		b.writer = pgWriter
	case driverRedis:
		b.writer = redisWriter
	case driverMemory:
		b.writer = queue.NewMemoryWriter()
	default:
		return b, fmt.Errorf("unsupported writer driver %q", app.WriterDriver)
	}

	return b, nil
}

// checkHealth runs every backend healthcheck once
func (b *backends) checkHealth(ctx context.Context) error {
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
