package driven

import (
	"context"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// ChunkIndex answers k-nearest-neighbor queries over embedded chunks
// with a metadata access filter.
//
// Consistency contract: PutBatch and Retag are atomic from a reader's
// perspective. A concurrent Search observes either the pre- or
// post-change set for a blob, never a mix, and never a partially
// written batch.
type ChunkIndex interface {
	// PutBatch replaces all index entries for the entries' blob with the
	// given batch in one atomic swap. All entries must share one blob ID
	// and carry embeddings.
	PutBatch(ctx context.Context, entries []*domain.ChunkEntry) error

	// Search returns the top-k chunks passing the filter, by descending
	// cosine similarity. Ties are broken by lower chunk index, then
	// lower blob ID, for determinism.
	Search(ctx context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]*domain.ScoredChunk, error)

	// Retag atomically updates the denormalized visibility on every
	// entry for a blob.
	Retag(ctx context.Context, blobID string, v domain.Visibility) error

	// DeleteByBlob removes all entries for a blob.
	DeleteByBlob(ctx context.Context, blobID string) error

	// CountByBlob returns the number of indexed entries for a blob.
	CountByBlob(ctx context.Context, blobID string) (int, error)
}
