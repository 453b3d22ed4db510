package identity

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/Hunga9k50doker/spheron/internal/store"
)

// Manager hands out identities backed by a persisted table. An identity, once
// assigned to an account key, is never reassigned; concurrent calls for the
// same key cannot race to assign two different ones.
type Manager struct {
	table store.Table
	mu    sync.Mutex
	pick  func() string
}

// NewManager constructs a manager over the given persisted table.
func NewManager(table store.Table) *Manager {
	return &Manager{
		table: table,
		pick: func() string {
			return userAgents[rand.IntN(len(userAgents))]
		},
	}
}

// Identity returns the identity pinned to the account key, assigning and
// persisting a fresh one from the pool on first use.
func (m *Manager) Identity(ctx context.Context, key string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ua, ok, err := m.table.Get(ctx, key)
	if err != nil {
		return Identity{}, fmt.Errorf("load identity for %s: %w", key, err)
	}
	if ok {
		return New(ua), nil
	}

	ua = m.pick()
	if err := m.table.Set(ctx, key, ua); err != nil {
		return Identity{}, fmt.Errorf("persist identity for %s: %w", key, err)
	}

	return New(ua), nil
}
