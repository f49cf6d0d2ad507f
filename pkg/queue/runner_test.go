package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// countingDrainer counts drain cycles and blocks each one until ctx is done when block is set
type countingDrainer struct {
	calls atomic.Int32
	err   error
	block bool
}

func (d *countingDrainer) Drain(ctx context.Context) (queue.Report, error) {
	d.calls.Add(1)
	if d.block {
		<-ctx.Done()
		return queue.Report{}, ctx.Err()
	}
	return queue.Report{}, d.err
}

func newRunner(t *testing.T, d queue.Drainer, interval time.Duration) *queue.Runner {
	t.Helper()
	r, err := queue.NewRunner(d, queue.WithInterval(interval), queue.WithRunnerLogger(discardLogger()))
	require.NoError(t, err)
	return r
}

func TestRunner_NewRunner(t *testing.T) {
	t.Parallel()

	_, err := queue.NewRunner(nil)
	assert.ErrorIs(t, err, queue.ErrDrainerNil)
}

func TestRunner_StartStop(t *testing.T) {
	t.Parallel()

	t.Run("drains immediately and on every tick", func(t *testing.T) {
		t.Parallel()

		d := &countingDrainer{}
		r := newRunner(t, d, 10*time.Millisecond)

		require.NoError(t, r.Start(context.Background()))
		assert.Eventually(t, func() bool { return d.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
		require.NoError(t, r.Stop())

		stopped := d.calls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, stopped, d.calls.Load(), "no drains after stop")
	})

	t.Run("keeps running after drain errors", func(t *testing.T) {
		t.Parallel()

		d := &countingDrainer{err: errors.New("database unavailable")}
		r := newRunner(t, d, 10*time.Millisecond)

		require.NoError(t, r.Start(context.Background()))
		assert.Eventually(t, func() bool { return d.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		require.NoError(t, r.Stop())
	})

	t.Run("double start", func(t *testing.T) {
		t.Parallel()

		r := newRunner(t, &countingDrainer{}, time.Hour)
		require.NoError(t, r.Start(context.Background()))
		assert.ErrorIs(t, r.Start(context.Background()), queue.ErrRunnerStarted)
		require.NoError(t, r.Stop())
	})

	t.Run("stop without start", func(t *testing.T) {
		t.Parallel()

		r := newRunner(t, &countingDrainer{}, time.Hour)
		assert.ErrorIs(t, r.Stop(), queue.ErrRunnerNotStarted)
	})

	t.Run("stop cancels a running drain", func(t *testing.T) {
		t.Parallel()

		d := &countingDrainer{block: true}
		r := newRunner(t, d, time.Hour)

		require.NoError(t, r.Start(context.Background()))
		assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- r.Stop() }()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("stop did not return")
		}
	})

	t.Run("can be restarted", func(t *testing.T) {
		t.Parallel()

		d := &countingDrainer{}
		r := newRunner(t, d, time.Hour)

		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.Stop())
		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.Stop())

		assert.Equal(t, int32(2), d.calls.Load())
	})
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	d := &countingDrainer{}
	r := newRunner(t, d, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.Run(gctx))

	assert.Eventually(t, func() bool { return d.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.NoError(t, g.Wait())
}

func TestRunner_DrainsProcessor(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	storage := queue.NewMemoryStorage()
	writer := queue.NewMemoryWriter()
	putEntry(t, storage, &queue.Entry{DeliverTime: clock.Now()})

	p := newProcessor(t, storage, writer, clock)
	r := newRunner(t, p, time.Hour)

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool { return writer.Writes() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	assert.Zero(t, storage.Len())
}
