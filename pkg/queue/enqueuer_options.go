package queue

import "time"

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	clock             Clock
	defaultCollection string
	defaultMerge      bool
}

// WithDefaultTargetCollection sets the collection used when an entry names no target of its own
func WithDefaultTargetCollection(collection string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if collection != "" {
			o.defaultCollection = collection
		}
	}
}

// WithDefaultMerge sets whether entries merge into existing data unless told otherwise
func WithDefaultMerge(merge bool) EnqueuerOption {
	return func(o *enqueuerOptions) {
		o.defaultMerge = merge
	}
}

// WithEnqueuerClock sets the clock used for creation and default delivery times
func WithEnqueuerClock(clock Clock) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	target             Target
	deliverTime        *time.Time
	delay              time.Duration
	invalidAfter       *time.Time
	stalenessThreshold time.Duration
	merge              bool
	serverTimestamps   []string
}

// WithTarget sets the complete write target
func WithTarget(target Target) EnqueueOption {
	return func(o *enqueueOptions) {
		o.target = target
	}
}

// WithDocumentPath writes to the document at a full path such as "users/42"
func WithDocumentPath(path string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.target.Path = path
	}
}

// WithCollection writes into the given collection instead of the default one
func WithCollection(collection string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.target.Collection = collection
	}
}

// WithDocumentID writes to the document with this id
func WithDocumentID(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.target.DocumentID = id
	}
}

// WithDeliverTime sets the earliest time the write may be applied
func WithDeliverTime(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.deliverTime = &t
	}
}

// WithDelay postpones delivery relative to the enqueue time
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithInvalidAfter skips the write if it has not been delivered by t
func WithInvalidAfter(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.invalidAfter = &t
	}
}

// WithStalenessThreshold skips the write if it is delivered later than threshold after its deliver time
func WithStalenessThreshold(threshold time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if threshold > 0 {
			o.stalenessThreshold = threshold
		}
	}
}

// WithMerge chooses between merging into existing data and overwriting it
func WithMerge(merge bool) EnqueueOption {
	return func(o *enqueueOptions) {
		o.merge = merge
	}
}

// WithServerTimestamps marks fields that receive the delivery time
func WithServerTimestamps(fields ...string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.serverTimestamps = append(o.serverTimestamps, fields...)
	}
}
