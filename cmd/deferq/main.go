// Command deferq runs the drain service: it reclaims expired leases and delivers due
// deferred writes on a fixed interval until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/deferq/pkg/config"
	"github.com/dmitrymomot/deferq/pkg/logger"
	"github.com/dmitrymomot/deferq/pkg/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("deferq stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	var qcfg queue.Config
	if err := config.Load(&qcfg); err != nil {
		return err
	}

	opts := []logger.Option{logger.WithEnvironment(app.Env, app.ServiceName)}
	if app.LogLevel != "" {
		level, err := logger.ParseLevel(app.LogLevel)
		if err != nil {
			return err
		}
		opts = append(opts, logger.WithLevel(level))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, app, qcfg, log)
	defer b.close()
	if err != nil {
		return err
	}

	if err := b.checkHealth(ctx); err != nil {
		return err
	}

	processor, err := queue.NewProcessor(b.storage, b.writer,
		append(qcfg.ProcessorOptions(), queue.WithProcessorLogger(log))...)
	if err != nil {
		return err
	}

	runner, err := queue.NewRunner(processor,
		queue.WithInterval(qcfg.DrainInterval),
		queue.WithRunnerLogger(log))
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "starting drain service",
		slog.String("storage", app.StorageDriver),
		slog.String("writer", app.WriterDriver),
		slog.Duration("interval", qcfg.DrainInterval),
		slog.String("cleanup", string(qcfg.Cleanup)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(runner.Run(gctx))
	g.Go(func() error {
		return watchHealth(gctx, b, qcfg.DrainInterval, log)
	})

	return g.Wait()
}

// watchHealth logs backends that stop answering between drain cycles
func watchHealth(ctx context.Context, b *backends, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.checkHealth(ctx); err != nil {
				log.WarnContext(ctx, "backend healthcheck failed", logger.Error(err))
			}
		}
	}
}
