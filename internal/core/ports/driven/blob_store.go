package driven

import "context"

// BlobStore persists opaque byte blobs in a content-addressed store.
// Identical content always yields the same blob ID, so Put is
// side-effect-free to retry.
type BlobStore interface {
	// Put uploads content and returns its content-derived identifier.
	Put(ctx context.Context, content []byte) (string, error)

	// Get downloads a blob by ID. Returns domain.ErrNotFound if the blob
	// does not exist.
	Get(ctx context.Context, blobID string) ([]byte, error)

	// Exists checks whether a blob is present without downloading it.
	Exists(ctx context.Context, blobID string) (bool, error)
}
