package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements the queue repositories in memory for testing and local development
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry

	// Index for state-filtered queries
	byState map[State][]uuid.UUID
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[uuid.UUID]*Entry),
		byState: make(map[State][]uuid.UUID),
	}
}

// CreateEntry implements EnqueuerRepository
func (ms *MemoryStorage) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if !entry.State.Valid() {
		return fmt.Errorf("entry %s: %w: %q", entry.ID, ErrUnexpectedState, entry.State)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.entries[entry.ID]; exists {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrEntryExists)
	}

	// Clone entry to prevent external modifications
	ms.entries[entry.ID] = entry.Clone()
	ms.byState[entry.State] = append(ms.byState[entry.State], entry.ID)

	return nil
}

// GetEntry returns a copy of the stored entry
func (ms *MemoryStorage) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entry, exists := ms.entries[id]
	if !exists {
		return nil, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}
	return entry.Clone(), nil
}

// Len returns the number of stored entries
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

// FindDue implements ProcessorRepository
func (ms *MemoryStorage) FindDue(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var due []*Entry
	for _, id := range ms.byState[StatePending] {
		entry := ms.entries[id]
		if !entry.DeliverTime.After(now) {
			due = append(due, entry)
		}
	}

	// Earliest deliver time first, id breaks ties for a stable order
	slices.SortFunc(due, func(a, b *Entry) int {
		if c := a.DeliverTime.Compare(b.DeliverTime); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	return cloneLimited(due, limit), nil
}

// FindExpiredLeases implements ProcessorRepository
func (ms *MemoryStorage) FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var expired []*Entry
	for _, id := range ms.byState[StateProcessing] {
		entry := ms.entries[id]
		if leaseExpired(entry, now) {
			expired = append(expired, entry)
		}
	}

	return cloneLimited(expired, limit), nil
}

// ClaimEntry implements ProcessorRepository
func (ms *MemoryStorage) ClaimEntry(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*Entry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, err := ms.transition(id, EventClaim)
	if err != nil {
		return nil, err
	}

	leaseExpire := now.Add(lease)
	entry.Attempts++
	entry.StartTime = &now
	entry.LeaseExpireTime = &leaseExpire
	entry.UpdateTime = &now

	return entry.Clone(), nil
}

// ResetEntry implements ProcessorRepository
func (ms *MemoryStorage) ResetEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, exists := ms.entries[id]
	if !exists {
		return fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}
	if entry.State == StateProcessing && !leaseExpired(entry, now) {
		return fmt.Errorf("entry %s: %w: lease is still valid", id, ErrUnexpectedState)
	}

	if _, err := ms.transition(id, EventTimeout); err != nil {
		return err
	}

	entry.Timeouts++
	entry.LastTimeoutTime = &now
	entry.LeaseExpireTime = nil
	entry.UpdateTime = &now

	return nil
}

// CompleteEntry implements ProcessorRepository
func (ms *MemoryStorage) CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.owned(id, attempt); err != nil {
		return err
	}
	entry, err := ms.transition(id, EventDeliver)
	if err != nil {
		return err
	}

	entry.UpdateTime = &now
	entry.EndTime = &now
	entry.LeaseExpireTime = nil

	return nil
}

// FailEntry implements ProcessorRepository
func (ms *MemoryStorage) FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.owned(id, attempt); err != nil {
		return err
	}
	entry, err := ms.transition(id, EventFail)
	if err != nil {
		return err
	}

	entry.Error = &errorMsg
	entry.UpdateTime = &now
	entry.EndTime = &now
	entry.LeaseExpireTime = nil

	return nil
}

// DeleteEntry implements ProcessorRepository
func (ms *MemoryStorage) DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.owned(id, attempt); err != nil {
		return err
	}
	if _, err := Transition(ms.entries[id].State, EventDeliver); err != nil {
		return fmt.Errorf("entry %s: %w", id, err)
	}

	ms.removeFromStateIndex(id, StateProcessing)
	delete(ms.entries, id)

	return nil
}

// Helper methods

// transition fires event on the stored entry and keeps the state index in sync.
// Must be called while holding the write lock.
func (ms *MemoryStorage) transition(id uuid.UUID, event Event) (*Entry, error) {
	entry, exists := ms.entries[id]
	if !exists {
		return nil, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}

	next, err := Transition(entry.State, event)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}

	ms.removeFromStateIndex(id, entry.State)
	entry.State = next
	ms.byState[next] = append(ms.byState[next], id)

	return entry, nil
}

// owned reports whether the entry is still held by the claim that made attempt.
// A state mismatch is left to the transition table.
// Must be called while holding the write lock.
func (ms *MemoryStorage) owned(id uuid.UUID, attempt int) error {
	entry, exists := ms.entries[id]
	if !exists {
		return fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}
	if entry.State == StateProcessing && entry.Attempts != attempt {
		return fmt.Errorf("entry %s: %w: attempt %d, current %d", id, ErrLeaseLost, attempt, entry.Attempts)
	}
	return nil
}

func (ms *MemoryStorage) removeFromStateIndex(id uuid.UUID, state State) {
	ms.byState[state] = slices.DeleteFunc(ms.byState[state], func(v uuid.UUID) bool {
		return v == id
	})
}

func leaseExpired(entry *Entry, now time.Time) bool {
	return entry.LeaseExpireTime != nil && !entry.LeaseExpireTime.After(now)
}

func cloneLimited(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
