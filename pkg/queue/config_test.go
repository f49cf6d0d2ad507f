package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/deferq/pkg/config"
	"github.com/dmitrymomot/deferq/pkg/queue"
)

func TestConfig_Defaults(t *testing.T) {
	config.ResetCache()
	t.Cleanup(config.ResetCache)

	var cfg queue.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, queue.DefaultQueueCollection, cfg.QueueCollection)
	assert.Equal(t, queue.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, queue.CleanupDelete, cfg.Cleanup)
	assert.Equal(t, queue.DefaultLeaseDuration, cfg.LeaseDuration)
	assert.Equal(t, time.Minute, cfg.DrainInterval)
	assert.Equal(t, queue.DefaultStoreTimeout, cfg.StoreTimeout)
	assert.False(t, cfg.MergeWrite)
	assert.Zero(t, cfg.StalenessWindow())
}

func TestConfig_FromEnv(t *testing.T) {
	config.ResetCache()
	t.Cleanup(config.ResetCache)

	t.Setenv("QUEUE_COLLECTION", "deferred")
	t.Setenv("QUEUE_TARGET_COLLECTION", "profiles")
	t.Setenv("QUEUE_MERGE_WRITE", "true")
	t.Setenv("QUEUE_BATCH_SIZE", "25")
	t.Setenv("QUEUE_STALENESS_THRESHOLD_SECONDS", "300")
	t.Setenv("QUEUE_CLEANUP", "KEEP")

	var cfg queue.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "deferred", cfg.QueueCollection)
	assert.Equal(t, "profiles", cfg.TargetCollection)
	assert.True(t, cfg.MergeWrite)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, queue.CleanupKeep, cfg.Cleanup)
	assert.Equal(t, 5*time.Minute, cfg.StalenessWindow())
}

func TestConfig_InvalidCleanup(t *testing.T) {
	config.ResetCache()
	t.Cleanup(config.ResetCache)

	t.Setenv("QUEUE_CLEANUP", "ARCHIVE")

	var cfg queue.Config
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorIs(t, err, queue.ErrInvalidCleanupPolicy)
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()

	cfg := queue.Config{
		TargetCollection:   "profiles",
		MergeWrite:         true,
		BatchSize:          2,
		StalenessThreshold: 60,
		Cleanup:            queue.CleanupKeep,
		LeaseDuration:      time.Minute,
	}

	clock := newTestClock()
	storage := queue.NewMemoryStorage()
	writer := queue.NewMemoryWriter()

	enq, err := queue.NewEnqueuer(storage, append(cfg.EnqueuerOptions(), queue.WithEnqueuerClock(clock))...)
	require.NoError(t, err)

	fresh, err := enq.Enqueue(t.Context(), queue.Payload{Data: map[string]any{"v": 1}}, queue.WithDocumentID("fresh"))
	require.NoError(t, err)
	assert.True(t, fresh.Merge)
	assert.Equal(t, "profiles", fresh.Target.Collection)

	stale, err := enq.Enqueue(t.Context(), queue.Payload{Data: map[string]any{"v": 2}},
		queue.WithDocumentID("stale"),
		queue.WithDeliverTime(clock.Now().Add(-2*time.Minute)))
	require.NoError(t, err)

	opts := append(cfg.ProcessorOptions(), queue.WithClock(clock), queue.WithProcessorLogger(discardLogger()))
	p, err := queue.NewProcessor(storage, writer, opts...)
	require.NoError(t, err)

	report, err := p.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Skipped)

	kept, err := storage.GetEntry(t.Context(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDelivered, kept.State)

	_, ok := writer.Document(queue.Location{Collection: "profiles", ID: "fresh"})
	assert.True(t, ok)
}
