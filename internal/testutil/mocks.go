// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the booking console.
package testutil

import (
	"context"
	"errors"
	"sync"

	"train-console/internal/domain"
)

// ErrMockStorage is returned by storage overrides in failure tests
var ErrMockStorage = errors.New("mock: storage failure")

// MockCredentialStorage implements domain.CredentialStorage for testing
type MockCredentialStorage struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	LoadFunc  func(ctx context.Context) (*domain.Session, error)
	SaveFunc  func(ctx context.Context, session *domain.Session) error
	ClearFunc func(ctx context.Context) error

	// In-memory record for simple tests
	Session *domain.Session

	// Call tracking
	SaveCalls  int
	ClearCalls int
}

// NewMockCredentialStorage creates an empty MockCredentialStorage
func NewMockCredentialStorage() *MockCredentialStorage {
	return &MockCredentialStorage{}
}

func (m *MockCredentialStorage) Load(ctx context.Context) (*domain.Session, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Session == nil {
		return nil, domain.ErrSessionNotFound
	}
	copied := *m.Session
	return &copied, nil
}

func (m *MockCredentialStorage) Save(ctx context.Context, session *domain.Session) error {
	m.mu.Lock()
	m.SaveCalls++
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.Session = &copied
	return nil
}

func (m *MockCredentialStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.ClearCalls++
	m.mu.Unlock()

	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Session = nil
	return nil
}

// Stored returns a copy of the held record, or nil
func (m *MockCredentialStorage) Stored() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Session == nil {
		return nil
	}
	copied := *m.Session
	return &copied
}

// MockBookingPublisher implements domain.BookingPublisher for testing
type MockBookingPublisher struct {
	mu sync.RWMutex

	// Function override
	PublishFunc func(ctx context.Context, event *domain.BookingConfirmed) error

	// Call tracking
	Events []domain.BookingConfirmed
}

// NewMockBookingPublisher creates a new MockBookingPublisher
func NewMockBookingPublisher() *MockBookingPublisher {
	return &MockBookingPublisher{
		Events: make([]domain.BookingConfirmed, 0),
	}
}

func (m *MockBookingPublisher) PublishBookingConfirmed(ctx context.Context, event *domain.BookingConfirmed) error {
	m.mu.Lock()
	m.Events = append(m.Events, *event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// GetEvents returns all recorded events
func (m *MockBookingPublisher) GetEvents() []domain.BookingConfirmed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BookingConfirmed{}, m.Events...)
}

// Reset clears all recorded calls
func (m *MockBookingPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = make([]domain.BookingConfirmed, 0)
}
