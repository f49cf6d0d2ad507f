package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrDrainerNil is returned when a runner is built without a drainer
	ErrDrainerNil = errors.New("drainer cannot be nil")

	// ErrWriterNil is returned when a processor is built without a target writer
	ErrWriterNil = errors.New("target writer cannot be nil")

	// ErrNoTarget is returned when neither an explicit target nor a default collection is available
	ErrNoTarget = errors.New("no write target: set a document path, collection or default target collection")

	// ErrInvalidPath is returned when a document path does not point at a document
	ErrInvalidPath = errors.New("document path must have an even number of non-empty segments")

	// ErrInvalidCleanupPolicy is returned for cleanup policies other than DELETE and KEEP
	ErrInvalidCleanupPolicy = errors.New("cleanup policy must be DELETE or KEEP")

	// ErrEntryCreate is returned when entry creation in storage fails
	ErrEntryCreate = errors.New("failed to create entry in storage")

	// ErrEntryNotFound is returned when an entry does not exist in storage
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrEntryExists is returned when an entry with the same id is already stored
	ErrEntryExists = errors.New("queue entry already exists")

	// ErrUnexpectedState is returned when an entry is not in the state a transition requires
	ErrUnexpectedState = errors.New("unexpected entry state")

	// ErrLeaseLost is returned when a terminal update comes from a claim that a later claim replaced
	ErrLeaseLost = errors.New("entry lease is held by a later claim")

	// ErrFetchDue is returned when the due entries query fails
	ErrFetchDue = errors.New("failed to fetch due entries")

	// ErrFetchExpiredLeases is returned when the expired leases query fails
	ErrFetchExpiredLeases = errors.New("failed to fetch entries with expired leases")

	// ErrNoItemsToEnqueue is returned when batch enqueue is called with empty items
	ErrNoItemsToEnqueue = errors.New("no items to enqueue")

	// ErrRunnerStarted is returned when starting a runner that is already running
	ErrRunnerStarted = errors.New("runner already started")

	// ErrRunnerNotStarted is returned when stopping a runner that is not running
	ErrRunnerNotStarted = errors.New("runner not started")
)
