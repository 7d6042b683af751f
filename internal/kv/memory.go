package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is used by tests and by commands that
// must not touch the database file.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string

	// FailWrites makes every write return the given error, leaving the
	// contents unchanged.
	FailWrites error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) PutBatch(_ context.Context, values map[string]string, deletes ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for k, v := range values {
		m.values[k] = v
	}
	for _, k := range deletes {
		delete(m.values, k)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	return m.PutBatch(ctx, nil, keys...)
}

func (m *Memory) Close() error { return nil }
