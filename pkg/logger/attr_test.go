package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/deferq/pkg/logger"
)

func TestErrorAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)

	assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))
	group := logger.Errors(nil, errors.New("a"), errors.New("b"))
	assert.Equal(t, "errors", group.Key)
	assert.Len(t, group.Value.Group(), 2)
	assert.Equal(t, "1", group.Value.Group()[0].Key)
}

func TestQueueAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.EntryID(nil).Equal(slog.Attr{}))
	assert.Equal(t, "entry_id", logger.EntryID("e-1").Key)
	assert.Equal(t, int64(3), logger.Attempts(3).Value.Int64())
	assert.Equal(t, int64(1), logger.Timeouts(1).Value.Int64())
	assert.Equal(t, "users/42", logger.Location("users/42").Value.String())
	assert.Equal(t, "PENDING", logger.State("PENDING").Value.String())
	assert.Equal(t, int64(7), logger.Count(7).Value.Int64())
	assert.Equal(t, "queue_processor", logger.Component("queue_processor").Value.String())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Any())
}
