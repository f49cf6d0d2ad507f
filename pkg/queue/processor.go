package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/deferq/pkg/logger"
)

// ProcessorRepository defines the storage operations the processor relies on.
// Every state-changing method must be a compare-and-swap on the stored state.
type ProcessorRepository interface {
	// FindDue returns pending entries with DeliverTime <= now, earliest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	// FindExpiredLeases returns processing entries with LeaseExpireTime <= now
	FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	// ClaimEntry re-reads the entry and moves it from pending to processing in one transaction.
	// Returns ErrUnexpectedState if the entry is no longer pending.
	ClaimEntry(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*Entry, error)

	// ResetEntry returns a processing entry whose lease expired at or before now to pending
	ResetEntry(ctx context.Context, id uuid.UUID, now time.Time) error

	// The terminal methods below act only for the claim that set Attempts to attempt.
	// Returns ErrLeaseLost if a later claim holds the entry.

	// CompleteEntry marks a processing entry as delivered
	CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error

	// FailEntry marks a processing entry as failed with the given message
	FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error

	// DeleteEntry removes a processing entry record
	DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error
}

// Writer applies a delivered payload to its target location
type Writer interface {
	Write(ctx context.Context, loc Location, data map[string]any, merge bool) error
}

// WriterFunc adapts a function to the Writer interface
type WriterFunc func(ctx context.Context, loc Location, data map[string]any, merge bool) error

func (f WriterFunc) Write(ctx context.Context, loc Location, data map[string]any, merge bool) error {
	return f(ctx, loc, data, merge)
}

// Result is the outcome of processing one entry
type Result struct {
	ID      uuid.UUID
	Success bool
	// Skipped is set when the entry was stale and the write was not applied
	Skipped bool
	Err     error
}

// Report summarizes one drain cycle
type Report struct {
	Reclaimed int
	Delivered int
	Skipped   int
	Failed    int
	Pages     int
}

// Processor delivers due entries and recovers entries whose lease expired
type Processor struct {
	repo   ProcessorRepository
	writer Writer
	clock  Clock
	logger *slog.Logger

	batchSize          int
	leaseDuration      time.Duration
	storeTimeout       time.Duration
	cleanup            CleanupPolicy
	stalenessThreshold time.Duration
	targetCollection   string
	maxConcurrency     int
}

// NewProcessor creates a new queue processor
func NewProcessor(repo ProcessorRepository, writer Writer, opts ...ProcessorOption) (*Processor, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if writer == nil {
		return nil, ErrWriterNil
	}

	options := &processorOptions{
		batchSize:     DefaultBatchSize,
		leaseDuration: DefaultLeaseDuration,
		storeTimeout:  DefaultStoreTimeout,
		cleanup:       CleanupDelete,
		clock:         SystemClock,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.maxConcurrency <= 0 {
		options.maxConcurrency = options.batchSize
	}

	return &Processor{
		repo:               repo,
		writer:             writer,
		clock:              options.clock,
		logger:             options.logger.With(logger.Component("queue_processor")),
		batchSize:          options.batchSize,
		leaseDuration:      options.leaseDuration,
		storeTimeout:       options.storeTimeout,
		cleanup:            options.cleanup,
		stalenessThreshold: options.stalenessThreshold,
		targetCollection:   options.targetCollection,
		maxConcurrency:     options.maxConcurrency,
	}, nil
}

// Drain reclaims entries with expired leases and then delivers every due entry.
// Only failures of the storage queries themselves are returned.
func (p *Processor) Drain(ctx context.Context) (Report, error) {
	start := time.Now()
	ctx = logger.WithCycleID(ctx, uuid.NewString())

	reclaimed, err := p.ResetStuck(ctx)
	if err != nil {
		return Report{Reclaimed: reclaimed}, err
	}

	report, err := p.FetchAndProcess(ctx)
	report.Reclaimed = reclaimed
	if err != nil {
		return report, err
	}

	p.logger.InfoContext(ctx, "drain cycle completed",
		slog.Int("reclaimed", report.Reclaimed),
		slog.Int("delivered", report.Delivered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("pages", report.Pages),
		logger.Duration(time.Since(start)))

	return report, nil
}

// ResetStuck returns processing entries with an expired lease to pending.
// It keeps paging until a page is smaller than the batch size and reports how many entries were reset.
func (p *Processor) ResetStuck(ctx context.Context) (int, error) {
	total := 0

	for {
		now := p.clock.Now()

		entries, err := p.repo.FindExpiredLeases(ctx, now, p.batchSize)
		if err != nil {
			return total, errors.Join(ErrFetchExpiredLeases, err)
		}

		reset := 0
		for _, entry := range entries {
			if err := p.repo.ResetEntry(ctx, entry.ID, now); err != nil {
				p.logger.ErrorContext(ctx, "failed to reset entry with expired lease",
					logger.EntryID(entry.ID),
					logger.Error(err))
				continue
			}
			reset++

			p.logger.WarnContext(ctx, "entry lease expired, returned to pending",
				logger.EntryID(entry.ID),
				logger.Attempts(entry.Attempts),
				logger.Timeouts(entry.Timeouts+1),
				slog.Any("lease_expire_time", entry.LeaseExpireTime))
		}
		total += reset

		// A page without progress would be fetched again unchanged
		if len(entries) < p.batchSize || reset == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// FetchAndProcess delivers all pending entries that are due, one page at a time.
// Entries of a page are processed concurrently; the next page is fetched only when the
// previous one was full.
func (p *Processor) FetchAndProcess(ctx context.Context) (Report, error) {
	var report Report
	attempted := make(map[uuid.UUID]struct{})

	for {
		entries, err := p.repo.FindDue(ctx, p.clock.Now(), p.batchSize)
		if err != nil {
			return report, errors.Join(ErrFetchDue, err)
		}

		// Entries whose claim failed this cycle stay pending; do not spin on them
		fresh := make([]*Entry, 0, len(entries))
		for _, e := range entries {
			if _, seen := attempted[e.ID]; !seen {
				attempted[e.ID] = struct{}{}
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			return report, nil
		}
		report.Pages++

		succeeded := 0
		for _, res := range p.processBatch(ctx, fresh) {
			switch {
			case res.Success && res.Skipped:
				report.Skipped++
				succeeded++
			case res.Success:
				report.Delivered++
				succeeded++
			default:
				report.Failed++
				p.logger.ErrorContext(ctx, "failed to process entry",
					logger.EntryID(res.ID),
					logger.Error(res.Err))
			}
		}

		p.logger.InfoContext(ctx, "processed batch",
			logger.Count(len(fresh)),
			slog.Int("succeeded", succeeded))

		if len(entries) < p.batchSize {
			return report, nil
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
}

// processBatch runs ProcessEntry for every entry and waits for all of them
func (p *Processor) processBatch(ctx context.Context, entries []*Entry) []Result {
	results := make([]Result, len(entries))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)

	for i, entry := range entries {
		g.Go(func() error {
			results[i] = p.ProcessEntry(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ProcessEntry claims a single entry, delivers it unless it is stale and records the outcome.
// Errors are reported in the result and never returned to the caller.
func (p *Processor) ProcessEntry(ctx context.Context, entry *Entry) Result {
	res := Result{ID: entry.ID}

	claimed, err := p.repo.ClaimEntry(ctx, entry.ID, p.clock.Now(), p.leaseDuration)
	if err != nil {
		// The record belongs to whoever holds it now, leave it untouched
		res.Err = fmt.Errorf("failed to claim entry %s: %w", entry.ID, err)
		return res
	}

	p.logger.DebugContext(ctx, "claimed entry",
		logger.EntryID(claimed.ID),
		logger.Attempts(claimed.Attempts))

	// Cancelling the drain does not abandon a claimed entry halfway
	workCtx := context.WithoutCancel(ctx)

	skipped, err := p.deliver(workCtx, claimed)
	if err != nil {
		res.Err = p.fail(workCtx, claimed, err)
		return res
	}

	if err := p.finish(workCtx, claimed); err != nil {
		// The write happened; the entry is redelivered once its lease expires
		res.Err = err
		return res
	}

	res.Success = true
	res.Skipped = skipped
	return res
}

// deliver applies the write of a claimed entry, or skips it when its delivery window has passed
func (p *Processor) deliver(ctx context.Context, entry *Entry) (skipped bool, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in writer: %v", r)
		}
	}()

	now := p.clock.Now()
	if entry.IsStale(now, p.stalenessThreshold) {
		p.logger.WarnContext(ctx, "entry is stale, skipping write",
			logger.EntryID(entry.ID),
			slog.Time("deliver_time", entry.DeliverTime),
			slog.Any("invalid_after_time", entry.InvalidAfterTime))
		return true, nil
	}

	loc, err := ResolveLocation(entry.Target, p.targetCollection)
	if err != nil {
		return false, err
	}

	// The write must not outlive the claim
	writeCtx, cancel := context.WithTimeout(ctx, p.leaseDuration)
	defer cancel()

	if err := p.writer.Write(writeCtx, loc, BuildData(entry.Payload, now), entry.Merge); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", loc, err)
	}

	p.logger.DebugContext(ctx, "entry delivered",
		logger.EntryID(entry.ID),
		logger.Location(loc.String()),
		slog.Bool("merge", entry.Merge))

	return false, nil
}

// finish applies the cleanup policy to a successfully processed entry
func (p *Processor) finish(ctx context.Context, entry *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	switch p.cleanup {
	case CleanupKeep:
		if err := p.repo.CompleteEntry(ctx, entry.ID, entry.Attempts, p.clock.Now()); err != nil {
			return fmt.Errorf("failed to mark entry %s as delivered: %w", entry.ID, err)
		}
	default:
		if err := p.repo.DeleteEntry(ctx, entry.ID, entry.Attempts); err != nil {
			return fmt.Errorf("failed to delete delivered entry %s: %w", entry.ID, err)
		}
	}
	return nil
}

// fail records a terminal failure and returns the error for the result
func (p *Processor) fail(ctx context.Context, entry *Entry, cause error) error {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := p.repo.FailEntry(ctx, entry.ID, entry.Attempts, p.clock.Now(), cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to mark entry %s as failed: %w", entry.ID, err))
	}
	return cause
}
