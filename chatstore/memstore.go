package chatstore

import (
	"context"
	"sync"

	"github.com/agentmesh/router/router"
)

// MemStore is an in-memory router.ChatStore, useful for development and
// tests of the Chat-session restore middleware.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string][]router.Message
}

var _ router.ChatStore = (*MemStore)(nil)

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]router.Message)}
}

// LoadSession implements router.ChatStore.
func (m *MemStore) LoadSession(_ context.Context, sessionID string) ([]router.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return append([]router.Message(nil), msgs...), true, nil
}

// SaveSession implements router.ChatStore.
func (m *MemStore) SaveSession(_ context.Context, sessionID string, messages []router.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append([]router.Message(nil), messages...)
	return nil
}
