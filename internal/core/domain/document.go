package domain

import "time"

// Visibility controls who may retrieve a document's chunks.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// DocumentState tracks a document's progress through the ingestion saga.
type DocumentState string

const (
	// StateReceived: intake accepted, payload not yet in the object store
	StateReceived DocumentState = "received"
	// StateStored: bytes persisted, blob ID assigned
	StateStored DocumentState = "stored"
	// StateAwaitingSignature: unsigned registration transaction handed to
	// the external signer
	StateAwaitingSignature DocumentState = "awaiting_signature"
	// StateRegistered: ownership recorded on the ledger
	StateRegistered DocumentState = "registered"
	// StateIndexed: chunks embedded and searchable
	StateIndexed DocumentState = "indexed"
	// StateFailed: terminal unless explicitly resumed
	StateFailed DocumentState = "failed"
)

// rank orders states for monotonicity checks. Failed is outside the
// forward chain.
var stateRank = map[DocumentState]int{
	StateReceived:          0,
	StateStored:            1,
	StateAwaitingSignature: 2,
	StateRegistered:        3,
	StateIndexed:           4,
}

// CanAdvanceTo reports whether moving from s to next is a legal forward
// transition. Any state may move to failed.
func (s DocumentState) CanAdvanceTo(next DocumentState) bool {
	if next == StateFailed {
		return s != StateFailed
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// AtLeast reports whether s has reached or passed the given state on the
// forward chain.
func (s DocumentState) AtLeast(other DocumentState) bool {
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[other]
	if !ok {
		return false
	}
	return from >= to
}

// DocumentRecord is the coordinator's view of one uploaded document.
//
// Invariants:
//   - LedgerObjectID is set iff State is registered or indexed
//   - BlobID is set iff State has passed stored (or failed after storage)
//   - OwnerIdentity never changes after intake
type DocumentRecord struct {
	DocumentID     string        `json:"document_id"`
	OwnerIdentity  string        `json:"owner_identity"`
	Filename       string        `json:"filename"`
	BlobID         string        `json:"blob_id,omitempty"`
	LedgerObjectID string        `json:"ledger_object_id,omitempty"`
	Visibility     Visibility    `json:"visibility"`
	State          DocumentState `json:"state"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	ChunkCount     int           `json:"chunk_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a copy so callers can hand out snapshots without sharing
// mutable state.
func (d *DocumentRecord) Clone() *DocumentRecord {
	c := *d
	return &c
}

// ChunkEntry is one retrieval unit derived from a stored document.
// OwnerIdentity and Visibility are denormalized copies of the owning
// DocumentRecord, refreshed atomically on visibility changes.
type ChunkEntry struct {
	BlobID        string     `json:"blob_id"`
	ChunkIndex    int        `json:"chunk_index"`
	Text          string     `json:"text"`
	Embedding     []float32  `json:"embedding,omitempty"`
	OwnerIdentity string     `json:"owner_identity"`
	Visibility    Visibility `json:"visibility"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ScoredChunk is a chunk with its retrieval similarity.
type ScoredChunk struct {
	Chunk *ChunkEntry `json:"chunk"`
	Score float32     `json:"score"`
}

// DocumentStats summarizes a document's index footprint. StoredChunks
// and IndexedChunks should agree with ChunkCount once indexing settles.
type DocumentStats struct {
	DocumentID    string        `json:"document_id"`
	State         DocumentState `json:"state"`
	ChunkCount    int           `json:"chunk_count"`
	StoredChunks  int           `json:"stored_chunks"`
	IndexedChunks int           `json:"indexed_chunks"`
}
