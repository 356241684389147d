package mocks

import (
	"context"
	"sync"
	"time"
)

// MockLock is an in-process DistributedLock for testing
type MockLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
}

// NewMockLock creates a new MockLock
func NewMockLock() *MockLock {
	return &MockLock{held: make(map[string]time.Time)}
}

func (m *MockLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, ok := m.held[name]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	m.held[name] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	return nil
}

func (m *MockLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockLock) Ping(ctx context.Context) error { return nil }
