package session

import (
	"context"
	"sync"

	"train-console/internal/domain"
)

// MemoryStorage keeps the session record in process memory
type MemoryStorage struct {
	mu      sync.Mutex
	session *domain.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(_ context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	copied := *m.session
	return &copied, nil
}

func (m *MemoryStorage) Save(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.session = &copied
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}
