package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[string]Subscription
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

func (m *MemoryStore) Get(_ context.Context, accountID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[accountID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *MemoryStore) Create(_ context.Context, sub *Subscription) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.subs[sub.AccountID]; ok {
		return &existing, nil
	}
	m.subs[sub.AccountID] = *sub
	out := *sub
	return &out, nil
}

func (m *MemoryStore) Reset(_ context.Context, accountID string, prev, next, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[accountID]
	if !ok || !sub.ResetAt.Equal(prev) {
		return false, nil
	}
	sub.PlansGenerated = 0
	sub.ResetAt = next
	sub.UpdatedAt = now
	m.subs[accountID] = sub
	return true, nil
}

func (m *MemoryStore) Increment(_ context.Context, accountID string, limit int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[accountID]
	if !ok || sub.PlansGenerated >= limit {
		return false, nil
	}
	sub.PlansGenerated++
	sub.UpdatedAt = now
	m.subs[accountID] = sub
	return true, nil
}

func (m *MemoryStore) SetTier(_ context.Context, accountID string, tier Tier, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[accountID]
	if !ok {
		return ErrNoSubscription
	}
	sub.Tier = tier
	sub.UpdatedAt = now
	m.subs[accountID] = sub
	return nil
}
