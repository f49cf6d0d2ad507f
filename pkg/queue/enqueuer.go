package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for entry creation
type EnqueuerRepository interface {
	CreateEntry(ctx context.Context, entry *Entry) error
}

// Enqueuer persists deferred writes as pending queue entries
type Enqueuer struct {
	repo              EnqueuerRepository
	clock             Clock
	defaultCollection string
	defaultMerge      bool
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		clock: SystemClock,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:              repo,
		clock:             options.clock,
		defaultCollection: options.defaultCollection,
		defaultMerge:      options.defaultMerge,
	}, nil
}

// Enqueue stores a new pending entry that writes payload once it is due
func (e *Enqueuer) Enqueue(ctx context.Context, payload Payload, opts ...EnqueueOption) (*Entry, error) {
	options := &enqueueOptions{
		merge: e.defaultMerge,
	}

	for _, opt := range opts {
		opt(options)
	}

	entry, err := e.buildEntry(payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateEntry(ctx, entry); err != nil {
		return nil, errors.Join(ErrEntryCreate, fmt.Errorf("entry %s for %s/%s: %w",
			entry.ID, entry.Target.Collection, entry.Target.DocumentID, err))
	}

	return entry, nil
}

// EnqueueBatch stores one entry per payload, all sharing the same options.
// Entries created before a failure stay in the queue.
func (e *Enqueuer) EnqueueBatch(ctx context.Context, payloads []Payload, opts ...EnqueueOption) ([]*Entry, error) {
	if len(payloads) == 0 {
		return nil, ErrNoItemsToEnqueue
	}

	entries := make([]*Entry, 0, len(payloads))
	for i, p := range payloads {
		entry, err := e.Enqueue(ctx, p, opts...)
		if err != nil {
			return entries, fmt.Errorf("failed to enqueue item %d: %w", i, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// buildEntry constructs an Entry from payload and options
func (e *Enqueuer) buildEntry(payload Payload, options *enqueueOptions) (*Entry, error) {
	loc, err := ResolveLocation(options.target, e.defaultCollection)
	if err != nil {
		return nil, err
	}

	// Pin the generated document id so a redelivery after a crash hits the same document
	target := Target{Collection: loc.Collection, DocumentID: loc.ID}

	now := e.clock.Now()

	deliverTime := now
	if options.deliverTime != nil {
		deliverTime = *options.deliverTime
	} else if options.delay > 0 {
		deliverTime = now.Add(options.delay)
	}

	data := make(map[string]any, len(payload.Data))
	for k, v := range payload.Data {
		data[k] = v
	}
	fields := append([]string(nil), payload.ServerTimestampFields...)
	fields = append(fields, options.serverTimestamps...)

	return &Entry{
		ID:                 uuid.New(),
		State:              StatePending,
		DeliverTime:        deliverTime,
		InvalidAfterTime:   options.invalidAfter,
		StalenessThreshold: options.stalenessThreshold,
		Target:             target,
		Payload: Payload{
			Data:                  data,
			ServerTimestampFields: fields,
		},
		Merge:     options.merge,
		CreatedAt: now,
	}, nil
}
