package queue

import (
	"log/slog"
	"time"
)

// ProcessorOption is a functional option for configuring a processor
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	batchSize          int
	leaseDuration      time.Duration
	storeTimeout       time.Duration
	cleanup            CleanupPolicy
	stalenessThreshold time.Duration
	targetCollection   string
	maxConcurrency     int
	clock              Clock
	logger             *slog.Logger
}

// WithBatchSize sets the page size of reclamation and delivery queries
func WithBatchSize(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLeaseDuration sets how long a claim stays valid.
// It should exceed the slowest expected write, otherwise entries are redelivered.
func WithLeaseDuration(d time.Duration) ProcessorOption {
	return func(o *processorOptions) {
		if d > 0 {
			o.leaseDuration = d
		}
	}
}

// WithStoreTimeout bounds each terminal storage update that follows a write.
// It runs on its own deadline so a write that used up the lease can still be recorded.
func WithStoreTimeout(d time.Duration) ProcessorOption {
	return func(o *processorOptions) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// WithCleanupPolicy sets what happens to an entry after a successful delivery
func WithCleanupPolicy(policy CleanupPolicy) ProcessorOption {
	return func(o *processorOptions) {
		if policy.Valid() {
			o.cleanup = policy
		}
	}
}

// WithDefaultStalenessThreshold sets the staleness window for entries that carry none
func WithDefaultStalenessThreshold(d time.Duration) ProcessorOption {
	return func(o *processorOptions) {
		if d > 0 {
			o.stalenessThreshold = d
		}
	}
}

// WithTargetCollection sets the collection used for entries without an explicit collection
func WithTargetCollection(collection string) ProcessorOption {
	return func(o *processorOptions) {
		if collection != "" {
			o.targetCollection = collection
		}
	}
}

// WithMaxConcurrency caps how many entries of a batch are processed at once.
// Defaults to the batch size.
func WithMaxConcurrency(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithClock sets the time source
func WithClock(clock Clock) ProcessorOption {
	return func(o *processorOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithProcessorLogger sets the logger for the processor
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(o *processorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
