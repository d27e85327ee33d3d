// ABOUTME: In-memory TokenStore used when no database is configured and in tests
// ABOUTME: Keeps tokens in a map with their registration time

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory TokenStore.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

func (m *MemoryStore) AddPushToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		m.tokens[token] = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) RemovePushToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *MemoryStore) ListPushTokens(_ context.Context) ([]*PushToken, error) {
	m.mu.RLock()
	out := make([]*PushToken, 0, len(m.tokens))
	for token, created := range m.tokens {
		out = append(out, &PushToken{Token: token, CreatedAt: created})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ TokenStore = (*MemoryStore)(nil)
