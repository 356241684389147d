package driving

import (
	"context"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// IntakeRequest carries a raw upload into the ingestion saga.
type IntakeRequest struct {
	OwnerIdentity string
	Filename      string
	Content       []byte
	Visibility    domain.Visibility
}

// IngestionService drives a document through the multi-step ingestion
// saga: store, sign handoff, ledger registration, indexing. Each call
// returns an updated record snapshot; callers poll state rather than
// registering callbacks.
type IngestionService interface {
	// BeginIntake allocates a document ID and accepts the payload.
	// Fails with domain.ErrValidation on empty content or an unsupported
	// file extension.
	BeginIntake(ctx context.Context, req IntakeRequest) (*domain.DocumentRecord, error)

	// AdvanceToStored uploads the payload to the object store and
	// records the content-derived blob ID. Retries transient storage
	// failures with capped exponential backoff.
	AdvanceToStored(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// BuildRegistrationRequest builds an unsigned registration
	// transaction for the external signer. Never touches key material.
	// Callable again from awaiting_signature to replace a stale
	// reference.
	BuildRegistrationRequest(ctx context.Context, documentID string) (*domain.UnsignedTransaction, error)

	// CompleteRegistration submits the externally-signed reference. On
	// confirmation the ledger object ID is recorded. On rejection the
	// document stays in awaiting_signature and domain.ErrLedgerRejected
	// is returned; references are single-use, so a new transaction must
	// be built.
	CompleteRegistration(ctx context.Context, documentID, signedTxRef string) (*domain.DocumentRecord, error)

	// AdvanceToIndexed extracts, chunks, embeds, and indexes the stored
	// document. Indexing is staged: queries never observe a partial
	// batch, and on failure the document remains registered and
	// retryable.
	AdvanceToIndexed(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// Reindex discards and rebuilds the document's chunks and index
	// entries from the stored blob. Valid from registered or indexed.
	Reindex(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// SetVisibility flips the document between private and public. The
	// ledger's owner check is authoritative; on success the record and
	// every indexed chunk are retagged in one logically atomic step.
	SetVisibility(ctx context.Context, documentID string, v domain.Visibility, ownerIdentity string) (*domain.DocumentRecord, error)

	// Delete removes the record, its chunks, and its index entries.
	// Owner-gated. No orphan chunks survive.
	Delete(ctx context.Context, documentID, ownerIdentity string) error

	// Resume re-drives a failed document from its last successful state.
	Resume(ctx context.Context, documentID string) (*domain.DocumentRecord, error)
}
