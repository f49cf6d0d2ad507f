package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// HashWriter applies delivered payloads to Redis hashes, one hash per document.
// It implements queue.Writer. The key of "users/42" is "users:42", prefixed by the
// configured key prefix.
type HashWriter struct {
	client redis.UniversalClient
	prefix string
}

// NewHashWriter creates a writer that stores documents through client
func NewHashWriter(client redis.UniversalClient, prefix string) (*HashWriter, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	return &HashWriter{client: client, prefix: prefix}, nil
}

// Write sets the payload fields on the hash when merge is true. Otherwise it deletes the hash
// and sets the fields inside one MULTI/EXEC transaction, so readers never see a partial document.
func (w *HashWriter) Write(ctx context.Context, loc queue.Location, data map[string]any, merge bool) error {
	key := w.Key(loc)

	fields, err := encodeFields(data)
	if err != nil {
		return fmt.Errorf("%s: %w", loc, err)
	}

	if merge {
		if len(fields) == 0 {
			return nil
		}
		if err := w.client.HSet(ctx, key, fields).Err(); err != nil {
			return fmt.Errorf("failed to merge into %s: %w", key, err)
		}
		return nil
	}

	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Key returns the hash key that holds the document at loc
func (w *HashWriter) Key(loc queue.Location) string {
	return w.prefix + strings.ReplaceAll(loc.Collection, "/", ":") + ":" + loc.ID
}

// encodeFields turns payload values into hash field values.
// Strings and bytes are stored as is, times as RFC 3339, everything else as JSON.
func encodeFields(data map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case []byte:
			fields[k] = val
		case time.Time:
			fields[k] = val.UTC().Format(time.RFC3339Nano)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, errors.Join(ErrEncodeField, fmt.Errorf("field %q: %w", k, err))
			}
			fields[k] = string(b)
		}
	}
	return fields, nil
}
