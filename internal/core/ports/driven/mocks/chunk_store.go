package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// MockChunkStore is an in-memory ChunkStore for testing
type MockChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]*domain.ChunkEntry // keyed by blob ID
}

// NewMockChunkStore creates a new MockChunkStore
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{
		chunks: make(map[string][]*domain.ChunkEntry),
	}
}

func (m *MockChunkStore) ReplaceForBlob(ctx context.Context, blobID string, chunks []*domain.ChunkEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(chunks) == 0 {
		delete(m.chunks, blobID)
		return nil
	}
	copied := make([]*domain.ChunkEntry, len(chunks))
	for i, c := range chunks {
		cc := *c
		copied[i] = &cc
	}
	sort.Slice(copied, func(i, j int) bool { return copied[i].ChunkIndex < copied[j].ChunkIndex })
	m.chunks[blobID] = copied
	return nil
}

func (m *MockChunkStore) GetByBlob(ctx context.Context, blobID string) ([]*domain.ChunkEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.chunks[blobID]
	out := make([]*domain.ChunkEntry, len(stored))
	for i, c := range stored {
		cc := *c
		out[i] = &cc
	}
	return out, nil
}

func (m *MockChunkStore) DeleteByBlob(ctx context.Context, blobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, blobID)
	return nil
}

func (m *MockChunkStore) CountByBlob(ctx context.Context, blobID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[blobID]), nil
}

func (m *MockChunkStore) RetagVisibility(ctx context.Context, blobID string, v domain.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks[blobID] {
		c.Visibility = v
	}
	return nil
}
