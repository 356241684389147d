package blobmem

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Ensure Store implements BlobStore
var _ driven.BlobStore = (*Store)(nil)

// Store is an in-memory content-addressed blob store. Blob IDs are
// URL-safe base64 of the content's blake2b-256 digest, matching the
// shape of Walrus blob IDs, so it can stand in for the remote store in
// development and tests.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewStore creates an empty in-memory blob store
func NewStore() *Store {
	return &Store{
		blobs: make(map[string][]byte),
	}
}

// BlobID computes the content-derived identifier for content
func BlobID(content []byte) string {
	digest := blake2b.Sum256(content)
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// Put stores content and returns its content-derived identifier
func (s *Store) Put(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrValidation)
	}

	id := BlobID(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		buf := make([]byte, len(content))
		copy(buf, content)
		s.blobs[id] = buf
	}
	return id, nil
}

// Get returns a blob by ID
func (s *Store) Get(ctx context.Context, blobID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, blobID)
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	return buf, nil
}

// Exists checks whether a blob is present
func (s *Store) Exists(ctx context.Context, blobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[blobID]
	return ok, nil
}

// Len returns the number of distinct blobs held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
