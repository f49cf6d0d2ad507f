package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

func TestMemoryStorage_CreateEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stores a copy", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{Payload: queue.Payload{Data: map[string]any{"a": 1}}})

		entry.Payload.Data["a"] = 2
		stored, err := storage.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Payload.Data["a"])
	})

	t.Run("duplicate id", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{})
		err := storage.CreateEntry(ctx, entry)
		assert.ErrorIs(t, err, queue.ErrEntryExists)
	})

	t.Run("invalid state", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		err := storage.CreateEntry(ctx, &queue.Entry{ID: uuid.New(), State: "DONE"})
		assert.ErrorIs(t, err, queue.ErrUnexpectedState)
	})

	t.Run("nil entry", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, queue.NewMemoryStorage().CreateEntry(ctx, nil))
	})
}

func TestMemoryStorage_FindDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := queue.NewMemoryStorage()

	late := putEntry(t, storage, &queue.Entry{DeliverTime: now.Add(-time.Second)})
	early := putEntry(t, storage, &queue.Entry{DeliverTime: now.Add(-time.Hour)})
	exact := putEntry(t, storage, &queue.Entry{DeliverTime: now})
	putEntry(t, storage, &queue.Entry{DeliverTime: now.Add(time.Second)})
	putEntry(t, storage, &queue.Entry{State: queue.StateFailed, DeliverTime: now.Add(-time.Hour)})

	due, err := storage.FindDue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []uuid.UUID{early.ID, late.ID, exact.ID}, []uuid.UUID{due[0].ID, due[1].ID, due[2].ID})

	limited, err := storage.FindDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStorage_ClaimEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("only one concurrent claim wins", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{DeliverTime: now})

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := storage.ClaimEntry(ctx, entry.ID, now, time.Minute); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, queue.ErrUnexpectedState)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())

		stored, err := storage.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Attempts)
	})

	t.Run("claimed entry leaves the due set", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{DeliverTime: now})

		claimed, err := storage.ClaimEntry(ctx, entry.ID, now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, queue.StateProcessing, claimed.State)

		due, err := storage.FindDue(ctx, now, 0)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("missing entry", func(t *testing.T) {
		t.Parallel()
		_, err := queue.NewMemoryStorage().ClaimEntry(ctx, uuid.New(), now, time.Minute)
		assert.ErrorIs(t, err, queue.ErrEntryNotFound)
	})
}

func TestMemoryStorage_ResetEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("resets an expired lease", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{
			State:           queue.StateProcessing,
			LeaseExpireTime: timePtr(now),
		})

		expired, err := storage.FindExpiredLeases(ctx, now, 0)
		require.NoError(t, err)
		require.Len(t, expired, 1, "a lease expiring exactly now is expired")

		require.NoError(t, storage.ResetEntry(ctx, entry.ID, now))

		stored, err := storage.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatePending, stored.State)
		assert.Equal(t, 1, stored.Timeouts)
		assert.Nil(t, stored.LeaseExpireTime)
	})

	t.Run("refuses a valid lease", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{
			State:           queue.StateProcessing,
			LeaseExpireTime: timePtr(now.Add(time.Second)),
		})

		err := storage.ResetEntry(ctx, entry.ID, now)
		assert.ErrorIs(t, err, queue.ErrUnexpectedState)
	})

	t.Run("refuses a pending entry", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{})

		err := storage.ResetEntry(ctx, entry.ID, now)
		assert.ErrorIs(t, err, queue.ErrUnexpectedState)
	})
}

func TestMemoryStorage_Finish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("complete requires processing", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{})
		assert.ErrorIs(t, storage.CompleteEntry(ctx, entry.ID, 0, now), queue.ErrUnexpectedState)
	})

	t.Run("fail records the error", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{State: queue.StateProcessing, Attempts: 1, LeaseExpireTime: timePtr(now)})
		require.NoError(t, storage.FailEntry(ctx, entry.ID, 1, now, "write rejected"))

		stored, err := storage.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StateFailed, stored.State)
		require.NotNil(t, stored.Error)
		assert.Equal(t, "write rejected", *stored.Error)
		assert.Nil(t, stored.LeaseExpireTime)

		expired, err := storage.FindExpiredLeases(ctx, now.Add(time.Hour), 0)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{State: queue.StateProcessing, Attempts: 1, LeaseExpireTime: timePtr(now)})
		require.NoError(t, storage.DeleteEntry(ctx, entry.ID, 1))
		assert.Zero(t, storage.Len())
		assert.ErrorIs(t, storage.DeleteEntry(ctx, entry.ID, 1), queue.ErrEntryNotFound)

		expired, err := storage.FindExpiredLeases(ctx, now.Add(time.Hour), 0)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("delete requires processing", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{})
		assert.ErrorIs(t, storage.DeleteEntry(ctx, entry.ID, 0), queue.ErrUnexpectedState)
		assert.Equal(t, 1, storage.Len())
	})

	t.Run("superseded claim cannot finish the entry", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := putEntry(t, storage, &queue.Entry{DeliverTime: now})

		first, err := storage.ClaimEntry(ctx, entry.ID, now, time.Minute)
		require.NoError(t, err)
		later := now.Add(time.Minute)
		require.NoError(t, storage.ResetEntry(ctx, entry.ID, later))
		second, err := storage.ClaimEntry(ctx, entry.ID, later, time.Minute)
		require.NoError(t, err)
		require.Equal(t, first.Attempts+1, second.Attempts)

		assert.ErrorIs(t, storage.CompleteEntry(ctx, entry.ID, first.Attempts, later), queue.ErrLeaseLost)
		assert.ErrorIs(t, storage.FailEntry(ctx, entry.ID, first.Attempts, later, "late"), queue.ErrLeaseLost)
		assert.ErrorIs(t, storage.DeleteEntry(ctx, entry.ID, first.Attempts), queue.ErrLeaseLost)

		stored, err := storage.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StateProcessing, stored.State)
		assert.Nil(t, stored.Error)

		require.NoError(t, storage.CompleteEntry(ctx, entry.ID, second.Attempts, later))
	})
}

func TestMemoryWriter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loc := queue.Location{Collection: "users", ID: "42"}

	t.Run("merge keeps existing fields", func(t *testing.T) {
		t.Parallel()

		w := queue.NewMemoryWriter()
		require.NoError(t, w.Write(ctx, loc, map[string]any{"name": "Ada", "plan": "free"}, false))
		require.NoError(t, w.Write(ctx, loc, map[string]any{"plan": "pro"}, true))

		doc, ok := w.Document(loc)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"name": "Ada", "plan": "pro"}, doc)
		assert.Equal(t, 2, w.Writes())
	})

	t.Run("overwrite replaces the document", func(t *testing.T) {
		t.Parallel()

		w := queue.NewMemoryWriter()
		require.NoError(t, w.Write(ctx, loc, map[string]any{"name": "Ada", "plan": "free"}, false))
		require.NoError(t, w.Write(ctx, loc, map[string]any{"plan": "pro"}, false))

		doc, ok := w.Document(loc)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"plan": "pro"}, doc)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		w := queue.NewMemoryWriter()
		assert.ErrorIs(t, w.Write(cctx, loc, map[string]any{"a": 1}, false), context.Canceled)
		_, ok := w.Document(loc)
		assert.False(t, ok)
	})
}
