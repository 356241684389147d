package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// DocumentStore handles document record persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document record
	Save(ctx context.Context, rec *domain.DocumentRecord) error

	// Get retrieves a document record by ID
	Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// GetByBlob retrieves a document record by blob ID
	GetByBlob(ctx context.Context, blobID string) (*domain.DocumentRecord, error)

	// ListByOwner retrieves all records owned by an identity with pagination
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.DocumentRecord, error)

	// ListByStateBefore retrieves records in the given state last updated
	// before the cutoff (used by the signature janitor)
	ListByStateBefore(ctx context.Context, state domain.DocumentState, cutoff time.Time) ([]*domain.DocumentRecord, error)

	// Delete removes a document record
	Delete(ctx context.Context, documentID string) error

	// Count returns total record count
	Count(ctx context.Context) (int, error)
}

// ChunkStore handles durable chunk persistence (PostgreSQL). The vector
// index is derived from it and can be rebuilt.
type ChunkStore interface {
	// ReplaceForBlob atomically replaces all chunks for a blob in one
	// transaction. An empty slice clears them.
	ReplaceForBlob(ctx context.Context, blobID string, chunks []*domain.ChunkEntry) error

	// GetByBlob retrieves all chunks for a blob ordered by chunk index
	GetByBlob(ctx context.Context, blobID string) ([]*domain.ChunkEntry, error)

	// DeleteByBlob deletes all chunks for a blob
	DeleteByBlob(ctx context.Context, blobID string) error

	// CountByBlob returns the chunk count for a blob
	CountByBlob(ctx context.Context, blobID string) (int, error)

	// RetagVisibility updates the denormalized visibility on all chunks
	// for a blob in one transaction
	RetagVisibility(ctx context.Context, blobID string, v domain.Visibility) error
}
