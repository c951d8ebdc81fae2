package storage

import (
	"context"
	"sync"

	"fanprompt/internal/core"
)

// MemoryStore keeps definitions for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	defs []core.JobDefinition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(ctx context.Context, def core.JobDefinition) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	def, err := prepare(def)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.defs = append(m.defs, def)
	m.mu.Unlock()
	return def.ID, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]core.JobDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.JobDefinition, len(m.defs))
	copy(out, m.defs)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
