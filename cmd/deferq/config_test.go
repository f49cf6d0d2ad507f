package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     appConfig
		wantErr bool
	}{
		{name: "memory", cfg: appConfig{StorageDriver: "memory", WriterDriver: "memory"}},
		{name: "pg storage redis writer", cfg: appConfig{StorageDriver: "pg", WriterDriver: "redis"}},
		{name: "mongo both", cfg: appConfig{StorageDriver: "mongo", WriterDriver: "mongo"}},
		{name: "redis cannot hold the queue", cfg: appConfig{StorageDriver: "redis", WriterDriver: "pg"}, wantErr: true},
		{name: "unknown writer", cfg: appConfig{StorageDriver: "pg", WriterDriver: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAppConfig_Uses(t *testing.T) {
	t.Parallel()

	cfg := appConfig{StorageDriver: "pg", WriterDriver: "redis"}
	assert.True(t, cfg.uses("pg"))
	assert.True(t, cfg.uses("redis"))
	assert.False(t, cfg.uses("mongo"))
}

func TestBackends_Memory(t *testing.T) {
	t.Parallel()

	b, err := openBackends(context.Background(),
		appConfig{StorageDriver: "memory", WriterDriver: "memory"},
		queueConfigForTest(), discardLogger())
	require.NoError(t, err)
	defer b.close()

	assert.NotNil(t, b.storage)
	assert.NotNil(t, b.writer)
	assert.NoError(t, b.checkHealth(context.Background()))
}

func TestBackends_CheckHealth(t *testing.T) {
	t.Parallel()

	closed := 0
	b := &backends{
		checks: map[string]func(context.Context) error{
			"pg": func(context.Context) error { return errors.New("connection refused") },
		},
		closers: []func(){func() { closed++ }, func() { closed++ }},
	}

	err := b.checkHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg: connection refused")

	b.close()
	assert.Equal(t, 2, closed)
}
