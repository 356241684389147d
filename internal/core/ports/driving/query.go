package driving

import (
	"context"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// QueryService is the retrieval-augmented query engine.
type QueryService interface {
	// IngestForSearch chunks, embeds, and indexes extracted text for a
	// blob, returning the chunk count. Invoked by the ingestion
	// coordinator, not directly by users. Empty text yields zero chunks
	// without error.
	IngestForSearch(ctx context.Context, blobID, ownerIdentity string, v domain.Visibility, text string) (int, error)

	// Answer retrieves relevant chunks the requester may see, asks the
	// generation service, and returns the answer with verifiable source
	// citations. An empty candidate set yields an empty answer, not an
	// error.
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)

	// DropBlob removes a blob's entries from the retrieval index.
	DropBlob(ctx context.Context, blobID string) error
}
