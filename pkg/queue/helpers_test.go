package queue_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// testClock is a manually driven queue.Clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// putEntry stores an entry directly, bypassing the enqueuer
func putEntry(t *testing.T, storage *queue.MemoryStorage, entry *queue.Entry) *queue.Entry {
	t.Helper()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.State == "" {
		entry.State = queue.StatePending
	}
	if entry.Target.IsZero() {
		entry.Target = queue.Target{Collection: "docs", DocumentID: entry.ID.String()}
	}
	require.NoError(t, storage.CreateEntry(context.Background(), entry))
	return entry
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// deadlineStorage rejects terminal updates on a done context, as network-backed stores do
type deadlineStorage struct {
	*queue.MemoryStorage
}

func (s deadlineStorage) CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.CompleteEntry(ctx, id, attempt, now)
}

func (s deadlineStorage) FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.FailEntry(ctx, id, attempt, now, errorMsg)
}

func (s deadlineStorage) DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.DeleteEntry(ctx, id, attempt)
}

// MockProcessorRepository is a mock implementation of ProcessorRepository
type MockProcessorRepository struct {
	mock.Mock
}

func (m *MockProcessorRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*queue.Entry), args.Error(1)
}

func (m *MockProcessorRepository) FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*queue.Entry), args.Error(1)
}

func (m *MockProcessorRepository) ClaimEntry(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*queue.Entry, error) {
	args := m.Called(ctx, id, now, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Entry), args.Error(1)
}

func (m *MockProcessorRepository) ResetEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *MockProcessorRepository) CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	return m.Called(ctx, id, attempt, now).Error(0)
}

func (m *MockProcessorRepository) FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error {
	return m.Called(ctx, id, attempt, now, errorMsg).Error(0)
}

func (m *MockProcessorRepository) DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error {
	return m.Called(ctx, id, attempt).Error(0)
}

// MockWriter is a mock implementation of Writer
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Write(ctx context.Context, loc queue.Location, data map[string]any, merge bool) error {
	return m.Called(ctx, loc, data, merge).Error(0)
}
