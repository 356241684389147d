package driven

import (
	"context"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// LedgerClient talks to the ownership ledger. Registration is split in
// two: the client builds an unsigned transaction for an external signer
// and later submits the signed reference. The split is a custody
// boundary, not an implementation detail - the client never holds the
// owner's key material.
type LedgerClient interface {
	// BuildRegisterTx builds an unsigned registration transaction for the
	// external signer. The returned descriptor is single-use.
	BuildRegisterTx(ctx context.Context, owner, name, blobID string, isPublic bool) (*domain.UnsignedTransaction, error)

	// SubmitSigned submits an externally-signed transaction reference.
	// Returns the validated on-ledger record on confirmation, or
	// domain.ErrLedgerRejected if the ledger refuses (malformed
	// signature, stale or reused reference).
	SubmitSigned(ctx context.Context, signedTxRef string) (*domain.LedgerRecord, error)

	// QueryOwned lists ownership records held by an identity.
	QueryOwned(ctx context.Context, owner string) ([]*domain.LedgerRecord, error)

	// GetRecord fetches one ownership record by object ID.
	GetRecord(ctx context.Context, objectID string) (*domain.LedgerRecord, error)

	// UpdateVisibility flips the record's is_public flag. The ledger's
	// own access check is authoritative: a non-owner submission returns
	// domain.ErrAccessDenied.
	UpdateVisibility(ctx context.Context, objectID, owner string, isPublic bool) error

	// Transfer moves ownership of a record to a new identity. Owner-gated
	// like UpdateVisibility.
	Transfer(ctx context.Context, objectID, owner, newOwner string) error
}
