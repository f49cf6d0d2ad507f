package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

const entryColumns = `id, state, deliver_time, invalid_after_time, staleness_threshold_ms,
target_path, target_collection, target_document_id, data, server_timestamp_fields, merge,
attempts, timeouts, lease_expire_time, last_timeout_time, start_time, end_time, update_time,
error, created_at`

// entryRow is the stored form of a queue.Entry
type entryRow struct {
	ID                    uuid.UUID      `db:"id"`
	State                 string         `db:"state"`
	DeliverTime           time.Time      `db:"deliver_time"`
	InvalidAfterTime      *time.Time     `db:"invalid_after_time"`
	StalenessThresholdMS  int64          `db:"staleness_threshold_ms"`
	TargetPath            string         `db:"target_path"`
	TargetCollection      string         `db:"target_collection"`
	TargetDocumentID      string         `db:"target_document_id"`
	Data                  map[string]any `db:"data"`
	ServerTimestampFields []string       `db:"server_timestamp_fields"`
	Merge                 bool           `db:"merge"`
	Attempts              int            `db:"attempts"`
	Timeouts              int            `db:"timeouts"`
	LeaseExpireTime       *time.Time     `db:"lease_expire_time"`
	LastTimeoutTime       *time.Time     `db:"last_timeout_time"`
	StartTime             *time.Time     `db:"start_time"`
	EndTime               *time.Time     `db:"end_time"`
	UpdateTime            *time.Time     `db:"update_time"`
	Error                 *string        `db:"error"`
	CreatedAt             time.Time      `db:"created_at"`
}

func (r entryRow) toEntry() *queue.Entry {
	fields := r.ServerTimestampFields
	if len(fields) == 0 {
		fields = nil
	}
	return &queue.Entry{
		ID:                 r.ID,
		State:              queue.State(r.State),
		DeliverTime:        r.DeliverTime,
		InvalidAfterTime:   r.InvalidAfterTime,
		StalenessThreshold: time.Duration(r.StalenessThresholdMS) * time.Millisecond,
		Target: queue.Target{
			Path:       r.TargetPath,
			Collection: r.TargetCollection,
			DocumentID: r.TargetDocumentID,
		},
		Payload:         queue.Payload{Data: r.Data, ServerTimestampFields: fields},
		Merge:           r.Merge,
		Attempts:        r.Attempts,
		Timeouts:        r.Timeouts,
		LeaseExpireTime: r.LeaseExpireTime,
		LastTimeoutTime: r.LastTimeoutTime,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		UpdateTime:      r.UpdateTime,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
	}
}

// QueueStorage keeps queue entries in a PostgreSQL table created by Migrate.
// Transitions are UPDATE statements guarded by the expected state.
type QueueStorage struct {
	pool    *pgxpool.Pool
	queries queueQueries
}

// NewQueueStorage returns a storage on the given table.
// An empty name selects queue.DefaultQueueCollection, the table the embedded migrations create.
func NewQueueStorage(pool *pgxpool.Pool, table string) (*QueueStorage, error) {
	if pool == nil {
		return nil, ErrPoolNil
	}
	if table == "" {
		table = queue.DefaultQueueCollection
	}
	return &QueueStorage{pool: pool, queries: newQueueQueries(table)}, nil
}

// CreateEntry implements queue.EnqueuerRepository
func (s *QueueStorage) CreateEntry(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	data := entry.Payload.Data
	if data == nil {
		data = map[string]any{}
	}
	fields := entry.Payload.ServerTimestampFields
	if fields == nil {
		fields = []string{}
	}

	_, err := s.pool.Exec(ctx, s.queries.insert,
		entry.ID, string(entry.State), entry.DeliverTime, entry.InvalidAfterTime,
		entry.StalenessThreshold.Milliseconds(), entry.Target.Path, entry.Target.Collection,
		entry.Target.DocumentID, data, fields, entry.Merge, entry.Attempts, entry.Timeouts,
		entry.LeaseExpireTime, entry.LastTimeoutTime, entry.StartTime, entry.EndTime,
		entry.UpdateTime, entry.Error, entry.CreatedAt,
	)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return fmt.Errorf("entry %s: %w", entry.ID, queue.ErrEntryExists)
		}
		return fmt.Errorf("failed to insert entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetEntry returns the stored entry
func (s *QueueStorage) GetEntry(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	rows, err := s.pool.Query(ctx, s.queries.get, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry %s: %w", id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entryRow])
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("entry %s: %w", id, queue.ErrEntryNotFound)
		}
		return nil, fmt.Errorf("failed to load entry %s: %w", id, err)
	}
	return row.toEntry(), nil
}

// FindDue implements queue.ProcessorRepository
func (s *QueueStorage) FindDue(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	return s.list(ctx, s.queries.findDue, string(queue.StatePending), now, limit)
}

// FindExpiredLeases implements queue.ProcessorRepository
func (s *QueueStorage) FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	return s.list(ctx, s.queries.findExpired, string(queue.StateProcessing), now, limit)
}

func (s *QueueStorage) list(ctx context.Context, query, state string, now time.Time, limit int) ([]*queue.Entry, error) {
	// LIMIT NULL returns every row
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, query, state, now, lim)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[entryRow])
	if err != nil {
		return nil, err
	}

	entries := make([]*queue.Entry, len(found))
	for i, r := range found {
		entries[i] = r.toEntry()
	}
	return entries, nil
}

// ClaimEntry implements queue.ProcessorRepository.
// The row is locked with SELECT ... FOR UPDATE so the state check and the update commit together.
func (s *QueueStorage) ClaimEntry(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*queue.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim of entry %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var state string
	if err := tx.QueryRow(ctx, s.queries.lock, id).Scan(&state); err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("entry %s: %w", id, queue.ErrEntryNotFound)
		}
		return nil, fmt.Errorf("failed to lock entry %s: %w", id, err)
	}

	next, err := queue.Transition(queue.State(state), queue.EventClaim)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}

	rows, err := tx.Query(ctx, s.queries.claim, id, string(next), now, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim entry %s: %w", id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entryRow])
	if err != nil {
		return nil, fmt.Errorf("failed to claim entry %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim of entry %s: %w", id, err)
	}
	return row.toEntry(), nil
}

// ResetEntry implements queue.ProcessorRepository
func (s *QueueStorage) ResetEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.transition(ctx, id, queue.EventTimeout, 0, s.queries.reset, id, string(queue.EventTimeout.From()),
		string(queue.EventTimeout.To()), now)
}

// CompleteEntry implements queue.ProcessorRepository
func (s *QueueStorage) CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	return s.transition(ctx, id, queue.EventDeliver, attempt, s.queries.finish, id, string(queue.EventDeliver.From()),
		string(queue.EventDeliver.To()), now, nil, attempt)
}

// FailEntry implements queue.ProcessorRepository
func (s *QueueStorage) FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error {
	return s.transition(ctx, id, queue.EventFail, attempt, s.queries.finish, id, string(queue.EventFail.From()),
		string(queue.EventFail.To()), now, errorMsg, attempt)
}

// DeleteEntry implements queue.ProcessorRepository.
// Only a delivered entry still held by the given claim is removed.
func (s *QueueStorage) DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error {
	return s.transition(ctx, id, queue.EventDeliver, attempt, s.queries.delete, id,
		string(queue.EventDeliver.From()), attempt)
}

// transition runs a guarded statement and explains a miss by re-reading the row.
// attempt is the claim that must still hold the entry, 0 skips that check.
func (s *QueueStorage) transition(ctx context.Context, id uuid.UUID, event queue.Event, attempt int, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s entry %s: %w", event, id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	return queue.ConflictError(current, event, attempt)
}

// queueQueries holds the statements for one queue table
type queueQueries struct {
	insert      string
	get         string
	findDue     string
	findExpired string
	lock        string
	claim       string
	reset       string
	finish      string
	delete      string
}

func newQueueQueries(table string) queueQueries {
	t := pgx.Identifier{table}.Sanitize()
	return queueQueries{
		insert: fmt.Sprintf(`INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`, t, entryColumns),
		get: fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, entryColumns, t),
		findDue: fmt.Sprintf(`SELECT %s FROM %s
WHERE state = $1 AND deliver_time <= $2
ORDER BY deliver_time, id
LIMIT $3`, entryColumns, t),
		findExpired: fmt.Sprintf(`SELECT %s FROM %s
WHERE state = $1 AND lease_expire_time <= $2
ORDER BY lease_expire_time, id
LIMIT $3`, entryColumns, t),
		lock: fmt.Sprintf(`SELECT state FROM %s WHERE id = $1 FOR UPDATE`, t),
		claim: fmt.Sprintf(`UPDATE %s
SET state = $2, attempts = attempts + 1, start_time = $3, lease_expire_time = $4, update_time = $3
WHERE id = $1
RETURNING %s`, t, entryColumns),
		reset: fmt.Sprintf(`UPDATE %s
SET state = $3, timeouts = timeouts + 1, last_timeout_time = $4, lease_expire_time = NULL, update_time = $4
WHERE id = $1 AND state = $2 AND lease_expire_time <= $4`, t),
		finish: fmt.Sprintf(`UPDATE %s
SET state = $3, end_time = $4, update_time = $4, lease_expire_time = NULL, error = COALESCE($5, error)
WHERE id = $1 AND state = $2 AND attempts = $6`, t),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND state = $2 AND attempts = $3`, t),
	}
}
