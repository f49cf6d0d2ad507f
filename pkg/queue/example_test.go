package queue_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

func Example() {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := queue.ClockFunc(func() time.Time { return now })

	storage := queue.NewMemoryStorage()
	writer := queue.NewMemoryWriter()

	enqueuer, _ := queue.NewEnqueuer(storage,
		queue.WithDefaultTargetCollection("notifications"),
		queue.WithEnqueuerClock(clock))

	_, _ = enqueuer.Enqueue(ctx,
		queue.Payload{Data: map[string]any{"status": "sent"}},
		queue.WithDocumentID("n-42"),
		queue.WithDelay(time.Hour))

	processor, _ := queue.NewProcessor(storage, writer,
		queue.WithClock(queue.ClockFunc(func() time.Time { return now.Add(2 * time.Hour) })),
		queue.WithProcessorLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	report, _ := processor.Drain(ctx)
	doc, _ := writer.Document(queue.Location{Collection: "notifications", ID: "n-42"})

	fmt.Println("delivered:", report.Delivered)
	fmt.Println("status:", doc["status"])
	fmt.Println("entries left:", storage.Len())

	// Output:
	// delivered: 1
	// status: sent
	// entries left: 0
}
