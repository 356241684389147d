package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// MockChunkIndex is an in-memory ChunkIndex for testing. It implements
// the same atomicity contract as the real adapter: batch swaps and
// retags hold the write lock, searches hold the read lock.
type MockChunkIndex struct {
	mu      sync.RWMutex
	entries map[string][]*domain.ChunkEntry // keyed by blob ID

	// PutErr, when set, is returned by PutBatch.
	PutErr error
}

// NewMockChunkIndex creates a new MockChunkIndex
func NewMockChunkIndex() *MockChunkIndex {
	return &MockChunkIndex{
		entries: make(map[string][]*domain.ChunkEntry),
	}
}

func (m *MockChunkIndex) PutBatch(ctx context.Context, entries []*domain.ChunkEntry) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	if len(entries) == 0 {
		return nil
	}
	blobID := entries[0].BlobID
	copied := make([]*domain.ChunkEntry, len(entries))
	for i, e := range entries {
		if e.BlobID != blobID {
			return fmt.Errorf("mixed blob IDs in batch: %s vs %s", blobID, e.BlobID)
		}
		ec := *e
		copied[i] = &ec
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[blobID] = copied
	return nil
}

func (m *MockChunkIndex) Search(ctx context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]*domain.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []*domain.ScoredChunk
	for _, chunks := range m.entries {
		for _, c := range chunks {
			if !filter.Allows(c) {
				continue
			}
			cc := *c
			scored = append(scored, &domain.ScoredChunk{
				Chunk: &cc,
				Score: cosine(embedding, c.Embedding),
			})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Chunk.ChunkIndex != scored[j].Chunk.ChunkIndex {
			return scored[i].Chunk.ChunkIndex < scored[j].Chunk.ChunkIndex
		}
		return scored[i].Chunk.BlobID < scored[j].Chunk.BlobID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *MockChunkIndex) Retag(ctx context.Context, blobID string, v domain.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.entries[blobID] {
		c.Visibility = v
	}
	return nil
}

func (m *MockChunkIndex) DeleteByBlob(ctx context.Context, blobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, blobID)
	return nil
}

func (m *MockChunkIndex) CountByBlob(ctx context.Context, blobID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[blobID]), nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
