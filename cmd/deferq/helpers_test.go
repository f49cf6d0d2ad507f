package main

import (
	"io"
	"log/slog"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queueConfigForTest() queue.Config {
	return queue.Config{
		QueueCollection: queue.DefaultQueueCollection,
		BatchSize:       queue.DefaultBatchSize,
		Cleanup:         queue.CleanupDelete,
		LeaseDuration:   queue.DefaultLeaseDuration,
	}
}
