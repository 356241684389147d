package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates bad caller input; never retried
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates the document is not in the required state
	// for the requested transition
	ErrInvalidState = errors.New("invalid document state")

	// ErrStorage indicates a transient object-store failure; retried with
	// backoff up to a cap, then surfaced
	ErrStorage = errors.New("object store failure")

	// ErrLedgerRejected indicates the ledger refused a transaction.
	// Terminal for that transaction reference; a new unsigned
	// transaction must be built
	ErrLedgerRejected = errors.New("ledger rejected transaction")

	// ErrAccessDenied indicates an owner mismatch on a mutation
	ErrAccessDenied = errors.New("access denied")

	// ErrNoCandidates indicates no chunks survived the access filter
	ErrNoCandidates = errors.New("no candidate chunks")

	// ErrEmbedding indicates the embedding service failed
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration indicates the generation service failed or timed out
	ErrGeneration = errors.New("generation failed")

	// ErrLockHeld indicates another operation holds the per-document lock
	ErrLockHeld = errors.New("document operation in progress")

	// ErrLedgerResponse indicates the ledger returned a record with
	// missing or malformed fields
	ErrLedgerResponse = errors.New("malformed ledger response")
)
