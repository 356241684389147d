package driving

import (
	"context"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// DocumentService provides read-only access to document records
type DocumentService interface {
	// Get retrieves a document record by ID
	Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// ListOwned retrieves records owned by an identity
	ListOwned(ctx context.Context, owner string, limit, offset int) ([]*domain.DocumentRecord, error)

	// Stats returns the index footprint for a document's blob
	Stats(ctx context.Context, documentID string) (*domain.DocumentStats, error)

	// Download retrieves the document's stored payload from the blob store
	Download(ctx context.Context, documentID string) ([]byte, error)

	// LedgerHoldings queries the ledger for records owned by an identity.
	// This is the externally-verifiable view, independent of local state.
	LedgerHoldings(ctx context.Context, owner string) ([]*domain.LedgerRecord, error)

	// VerifyOwnership checks against the ledger whether the identity owns
	// the document's on-ledger record.
	VerifyOwnership(ctx context.Context, documentID, owner string) (bool, error)
}
