package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// MockDocumentStore is an in-memory DocumentStore for testing.
// Records are cloned on the way in and out so tests observe snapshot
// semantics, like the real store.
type MockDocumentStore struct {
	mu      sync.RWMutex
	records map[string]*domain.DocumentRecord

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		records: make(map[string]*domain.DocumentRecord),
	}
}

func (m *MockDocumentStore) Save(ctx context.Context, rec *domain.DocumentRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.DocumentID] = rec.Clone()
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MockDocumentStore) GetByBlob(ctx context.Context, blobID string) (*domain.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.BlobID == blobID {
			return rec.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DocumentRecord
	for _, rec := range m.records {
		if rec.OwnerIdentity == owner {
			out = append(out, rec.Clone())
		}
	}
	if offset >= len(out) {
		return []*domain.DocumentRecord{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MockDocumentStore) ListByStateBefore(ctx context.Context, state domain.DocumentState, cutoff time.Time) ([]*domain.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DocumentRecord
	for _, rec := range m.records {
		if rec.State == state && rec.UpdatedAt.Before(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[documentID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, documentID)
	return nil
}

func (m *MockDocumentStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
