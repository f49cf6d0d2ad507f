package queue

import (
	"context"
	"maps"
	"sync"
)

// MemoryWriter implements Writer on top of an in-memory document map for testing and local development
type MemoryWriter struct {
	mu     sync.RWMutex
	docs   map[string]map[string]any
	writes int
}

// NewMemoryWriter creates an empty in-memory target store
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		docs: make(map[string]map[string]any),
	}
}

// Write implements Writer
func (mw *MemoryWriter) Write(ctx context.Context, loc Location, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mw.mu.Lock()
	defer mw.mu.Unlock()

	key := loc.String()
	doc, exists := mw.docs[key]
	if !merge || !exists {
		doc = make(map[string]any, len(data))
	}
	maps.Copy(doc, data)

	mw.docs[key] = doc
	mw.writes++

	return nil
}

// Document returns a copy of the document stored at loc
func (mw *MemoryWriter) Document(loc Location) (map[string]any, bool) {
	mw.mu.RLock()
	defer mw.mu.RUnlock()

	doc, exists := mw.docs[loc.String()]
	if !exists {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Writes returns how many writes were applied
func (mw *MemoryWriter) Writes() int {
	mw.mu.RLock()
	defer mw.mu.RUnlock()
	return mw.writes
}
