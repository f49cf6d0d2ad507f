package queue

import "time"

// Config holds the configuration for the write queue
type Config struct {
	QueueCollection    string        `env:"QUEUE_COLLECTION" envDefault:"write_queue"`
	TargetCollection   string        `env:"QUEUE_TARGET_COLLECTION"`
	MergeWrite         bool          `env:"QUEUE_MERGE_WRITE" envDefault:"false"`
	BatchSize          int           `env:"QUEUE_BATCH_SIZE" envDefault:"100"`
	StalenessThreshold int64         `env:"QUEUE_STALENESS_THRESHOLD_SECONDS" envDefault:"0"`
	Cleanup            CleanupPolicy `env:"QUEUE_CLEANUP" envDefault:"DELETE"`
	LeaseDuration      time.Duration `env:"QUEUE_LEASE_DURATION" envDefault:"60s"`
	StoreTimeout       time.Duration `env:"QUEUE_STORE_TIMEOUT" envDefault:"10s"`
	DrainInterval      time.Duration `env:"QUEUE_DRAIN_INTERVAL" envDefault:"1m"`
	MaxConcurrency     int           `env:"QUEUE_MAX_CONCURRENCY" envDefault:"0"`
}

// Validate checks values that cannot be corrected by falling back to defaults
func (c Config) Validate() error {
	if !c.Cleanup.Valid() {
		return ErrInvalidCleanupPolicy
	}
	return nil
}

// StalenessWindow returns the global staleness threshold as a duration
func (c Config) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessThreshold) * time.Second
}

// EnqueuerOptions translates the config into enqueuer options
func (c Config) EnqueuerOptions() []EnqueuerOption {
	return []EnqueuerOption{
		WithDefaultTargetCollection(c.TargetCollection),
		WithDefaultMerge(c.MergeWrite),
	}
}

// ProcessorOptions translates the config into processor options
func (c Config) ProcessorOptions() []ProcessorOption {
	return []ProcessorOption{
		WithBatchSize(c.BatchSize),
		WithLeaseDuration(c.LeaseDuration),
		WithStoreTimeout(c.StoreTimeout),
		WithCleanupPolicy(c.Cleanup),
		WithDefaultStalenessThreshold(c.StalenessWindow()),
		WithTargetCollection(c.TargetCollection),
		WithMaxConcurrency(c.MaxConcurrency),
	}
}
