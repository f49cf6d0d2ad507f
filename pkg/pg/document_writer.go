package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// DefaultDocumentsTable is the jsonb document table created by the embedded migrations
const DefaultDocumentsTable = "documents"

// DocumentWriter applies delivered payloads to rows of a jsonb document table keyed by
// (collection, id). It implements queue.Writer. Both modes upsert, and a merge is a
// shallow jsonb concatenation, so applying the same payload twice is harmless.
type DocumentWriter struct {
	pool       *pgxpool.Pool
	mergeSQL   string
	replaceSQL string
}

// NewDocumentWriter creates a writer on table. An empty name selects DefaultDocumentsTable.
func NewDocumentWriter(pool *pgxpool.Pool, table string) (*DocumentWriter, error) {
	if pool == nil {
		return nil, ErrPoolNil
	}
	if table == "" {
		table = DefaultDocumentsTable
	}
	merge, replace := upsertQueries(table)
	return &DocumentWriter{pool: pool, mergeSQL: merge, replaceSQL: replace}, nil
}

// Write implements queue.Writer
func (w *DocumentWriter) Write(ctx context.Context, loc queue.Location, data map[string]any, merge bool) error {
	if data == nil {
		data = map[string]any{}
	}

	query := w.replaceSQL
	if merge {
		query = w.mergeSQL
	}

	if _, err := w.pool.Exec(ctx, query, loc.Collection, loc.ID, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", loc, err)
	}
	return nil
}

func upsertQueries(table string) (merge, replace string) {
	t := pgx.Identifier{table}.Sanitize()
	insert := fmt.Sprintf(`INSERT INTO %s (collection, id, data, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (collection, id) DO UPDATE SET `, t)

	merge = insert + fmt.Sprintf(`data = %s.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at`, t)
	replace = insert + `data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	return merge, replace
}
