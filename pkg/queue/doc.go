// Package queue provides a repository-agnostic deferred write queue with at-least-once
// delivery, lease-based crash recovery and expiry of stale writes.
//
// The package is organised around three main components:
//
//   - Enqueuer: persists a future write as a pending entry
//   - Processor: drains the queue: reclaims expired leases, claims due entries and applies their writes
//   - Runner: triggers Processor.Drain on a fixed interval
//
// Components interact only through small interfaces, keeping the delivery logic decoupled
// from persistence. EnqueuerRepository and ProcessorRepository hold queue entries, Writer applies
// a payload at a Location, Clock supplies the time. MemoryStorage and MemoryWriter implement
// them in memory; the mongo and pg packages provide durable implementations.
//
// # Lifecycle
//
//	PENDING ──claim──► PROCESSING ──deliver──► DELIVERED (or deleted, see CleanupPolicy)
//	   ▲                   │
//	   └─────timeout───────┤
//	                       └──────fail──────► FAILED
//
// A claim is a compare-and-swap on the stored state, so overlapping drains never deliver the
// same entry concurrently; the loser records a per-entry failure. An entry stays PROCESSING
// until its lease expires if a worker dies mid-delivery, after which ResetStuck returns it
// to PENDING and increments its Timeouts counter. Writes must tolerate being applied twice.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	writer := queue.NewMemoryWriter()
//
//	enqueuer, _ := queue.NewEnqueuer(storage, queue.WithDefaultTargetCollection("notifications"))
//	_, _ = enqueuer.Enqueue(ctx,
//		queue.Payload{Data: map[string]any{"status": "sent"}, ServerTimestampFields: []string{"sent_at"}},
//		queue.WithDocumentID("n-42"),
//		queue.WithDelay(time.Hour),
//		queue.WithInvalidAfter(time.Now().Add(2*time.Hour)),
//	)
//
//	processor, _ := queue.NewProcessor(storage, writer, queue.WithCleanupPolicy(queue.CleanupKeep))
//	runner, _ := queue.NewRunner(processor, queue.WithInterval(time.Minute))
//	go runner.Run(ctx)()
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrNoTarget, ErrUnexpectedState) can be checked with
// errors.Is. Entry-level failures never abort a batch; Drain only returns an error when the
// storage queries themselves fail.
package queue
