package domain

import "time"

// AnswerRequest is a natural-language question against the index.
type AnswerRequest struct {
	Question          string   `json:"question"`
	RequesterIdentity string   `json:"requester_identity"`
	// BlobIDs optionally restricts retrieval to specific documents.
	// The access predicate still applies on top of the filter.
	BlobIDs []string `json:"blob_ids,omitempty"`
	// TopK overrides the configured retrieval depth when > 0.
	TopK int `json:"top_k,omitempty"`
}

// SourceRef cites the exact stored chunk backing part of an answer.
// Excerpt is a bounded prefix of the stored chunk text, never a
// paraphrase.
type SourceRef struct {
	BlobID     string `json:"blob_id"`
	ChunkIndex int    `json:"chunk_index"`
	Excerpt    string `json:"excerpt"`
}

// Answer is the result of a retrieval-augmented query.
type Answer struct {
	Question string        `json:"question"`
	Text     string        `json:"answer"`
	Sources  []SourceRef   `json:"sources"`
	Took     time.Duration `json:"took"`
}

// ChunkFilter restricts the retrieval candidate set.
// A chunk passes when (Visibility == public OR OwnerIdentity ==
// RequesterIdentity) AND (BlobIDs empty OR chunk.BlobID ∈ BlobIDs).
type ChunkFilter struct {
	RequesterIdentity string
	BlobIDs           []string
}

// Allows reports whether the chunk passes the access and document
// filters. This is an access-control predicate, not a ranking hint.
func (f ChunkFilter) Allows(c *ChunkEntry) bool {
	if c.Visibility != VisibilityPublic && c.OwnerIdentity != f.RequesterIdentity {
		return false
	}
	if len(f.BlobIDs) == 0 {
		return true
	}
	for _, id := range f.BlobIDs {
		if c.BlobID == id {
			return true
		}
	}
	return false
}
