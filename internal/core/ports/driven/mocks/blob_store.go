package mocks

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// MockBlobStore is an in-memory content-addressed blob store for
// testing. Blob IDs are hex-encoded blake2b digests, so identical bytes
// always yield the same ID.
type MockBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// PutCalls counts Put invocations, including failed ones.
	PutCalls int

	// FailPuts makes the next N Put calls fail with domain.ErrStorage.
	FailPuts int
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		blobs: make(map[string][]byte),
	}
}

func (m *MockBlobStore) Put(ctx context.Context, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.FailPuts > 0 {
		m.FailPuts--
		return "", domain.ErrStorage
	}
	sum := blake2b.Sum256(content)
	id := hex.EncodeToString(sum[:])
	stored := make([]byte, len(content))
	copy(stored, content)
	m.blobs[id] = stored
	return id, nil
}

func (m *MockBlobStore) Get(ctx context.Context, blobID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.blobs[blobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (m *MockBlobStore) Exists(ctx context.Context, blobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[blobID]
	return ok, nil
}
