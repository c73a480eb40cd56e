package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryHostedStore is a HostedStore held in process memory. The daemon
// uses it when no database is configured.
type MemoryHostedStore struct {
	mu   sync.RWMutex
	rows map[string]HostedDocument
}

// NewMemoryHostedStore creates an empty store.
func NewMemoryHostedStore() *MemoryHostedStore {
	return &MemoryHostedStore{rows: make(map[string]HostedDocument)}
}

func (m *MemoryHostedStore) Insert(_ context.Context, doc *HostedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *doc
	row.PlanData = append([]byte(nil), doc.PlanData...)
	m.rows[doc.ID] = row
	return nil
}

func (m *MemoryHostedStore) ListByAccount(_ context.Context, accountID string) ([]HostedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HostedDocument, 0)
	for _, row := range m.rows {
		if row.UserID == accountID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryHostedStore) DeleteForAccount(_ context.Context, accountID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.UserID != accountID {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}
