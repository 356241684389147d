package domain

import (
	"fmt"
	"time"
)

// UnsignedTransaction is an opaque registration transaction descriptor
// built by the ledger client for an external signer. The coordinator
// never holds key material; the descriptor crosses the custody boundary
// and comes back as a signed reference.
//
// References are single-use: once submitted (accepted or rejected) a new
// descriptor must be built.
type UnsignedTransaction struct {
	DocumentID string    `json:"document_id"`
	Target     string    `json:"target"` // package::module::function
	TxBytes    string    `json:"tx_bytes"`
	Name       string    `json:"name"`
	BlobID     string    `json:"blob_id"`
	IsPublic   bool      `json:"is_public"`
	BuiltAt    time.Time `json:"built_at"`
}

// LedgerRecord is the fixed tagged structure of one on-ledger ownership
// record. Responses with missing or unknown fields are rejected on
// receipt rather than passed through untyped.
type LedgerRecord struct {
	ObjectID   string `json:"object_id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	ContentID  string `json:"content_id"`
	UploadedAt int64  `json:"uploaded_at"`
	IsPublic   bool   `json:"is_public"`
}

// Validate checks that all required fields survived deserialization.
func (r *LedgerRecord) Validate() error {
	if r.ObjectID == "" {
		return fmt.Errorf("%w: missing object_id", ErrLedgerResponse)
	}
	if r.Owner == "" {
		return fmt.Errorf("%w: missing owner", ErrLedgerResponse)
	}
	if r.ContentID == "" {
		return fmt.Errorf("%w: missing content_id", ErrLedgerResponse)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: missing name", ErrLedgerResponse)
	}
	return nil
}

// LedgerEventType identifies a ledger contract event.
type LedgerEventType string

const (
	LedgerEventRegistered        LedgerEventType = "registered"
	LedgerEventVisibilityChanged LedgerEventType = "visibility_changed"
	LedgerEventTransferred       LedgerEventType = "transferred"
)

// LedgerEvent is a change notification emitted by the contract, readable
// by external indexers.
type LedgerEvent struct {
	Type     LedgerEventType `json:"type"`
	ObjectID string          `json:"object_id"`
	Owner    string          `json:"owner"`
	TxDigest string          `json:"tx_digest"`
	EmittedAt time.Time      `json:"emitted_at"`
}
