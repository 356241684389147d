package chromem

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Ensure Index implements ChunkIndex
var _ driven.ChunkIndex = (*Index)(nil)

const defaultCollection = "docvault-chunks"

// Index implements ChunkIndex on top of chromem-go. A RWMutex makes
// blob-level replace and retag atomic with respect to searches: writers
// hold the write lock for the full delete-then-add sequence. All blob
// bookkeeping is derived from the collection itself, so a persistent
// index behaves identically after a process restart.
type Index struct {
	mu         sync.RWMutex
	db         *chromemgo.DB
	collection *chromemgo.Collection
}

// NewIndex creates an in-memory chunk index
func NewIndex() (*Index, error) {
	return newIndex(chromemgo.NewDB())
}

// NewPersistentIndex creates a chunk index persisted under dir
func NewPersistentIndex(dir string) (*Index, error) {
	db, err := chromemgo.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	return newIndex(db)
}

func newIndex(db *chromemgo.DB) (*Index, error) {
	// Embeddings always arrive precomputed; the collection must never
	// fall back to an embedding API.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("index does not compute embeddings")
	}

	collection, err := db.GetOrCreateCollection(defaultCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	idx := &Index{
		db:         db,
		collection: collection,
	}
	return idx, nil
}

func chunkDocID(blobID string, chunkIndex int) string {
	return blobID + ":" + strconv.Itoa(chunkIndex)
}

func toDocument(e *domain.ChunkEntry) chromemgo.Document {
	return chromemgo.Document{
		ID:        chunkDocID(e.BlobID, e.ChunkIndex),
		Content:   e.Text,
		Embedding: e.Embedding,
		Metadata: map[string]string{
			"blob_id":     e.BlobID,
			"chunk_index": strconv.Itoa(e.ChunkIndex),
			"owner":       e.OwnerIdentity,
			"visibility":  string(e.Visibility),
			"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func fromDocument(content string, embedding []float32, meta map[string]string) (*domain.ChunkEntry, error) {
	chunkIndex, err := strconv.Atoi(meta["chunk_index"])
	if err != nil {
		return nil, fmt.Errorf("malformed chunk_index metadata: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, meta["created_at"])

	return &domain.ChunkEntry{
		BlobID:        meta["blob_id"],
		ChunkIndex:    chunkIndex,
		Text:          content,
		Embedding:     embedding,
		OwnerIdentity: meta["owner"],
		Visibility:    domain.Visibility(meta["visibility"]),
		CreatedAt:     createdAt,
	}, nil
}

// PutBatch replaces all index entries for the entries' blob with the
// given batch in one atomic swap
func (i *Index) PutBatch(ctx context.Context, entries []*domain.ChunkEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty batch", domain.ErrValidation)
	}

	blobID := entries[0].BlobID
	docs := make([]chromemgo.Document, 0, len(entries))
	for _, e := range entries {
		if e.BlobID != blobID {
			return fmt.Errorf("%w: batch spans multiple blobs", domain.ErrValidation)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("%w: entry %d missing embedding", domain.ErrValidation, e.ChunkIndex)
		}
		docs = append(docs, toDocument(e))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.deleteBlobLocked(ctx, blobID); err != nil {
		return err
	}
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns the top-k chunks passing the filter, by descending
// cosine similarity
func (i *Index) Search(ctx context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]*domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrValidation)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", domain.ErrValidation)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	total := i.collection.Count()
	if total == 0 {
		return []*domain.ScoredChunk{}, nil
	}

	// The access predicate cannot be pushed into the index, so fetch
	// every candidate and filter here.
	results, err := i.collection.QueryWithOptions(ctx, chromemgo.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       total,
	})
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}

	scored := make([]*domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		entry, err := fromDocument(r.Content, r.Embedding, r.Metadata)
		if err != nil {
			return nil, err
		}
		if !filter.Allows(entry) {
			continue
		}
		scored = append(scored, &domain.ScoredChunk{Chunk: entry, Score: r.Similarity})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		if scored[a].Chunk.ChunkIndex != scored[b].Chunk.ChunkIndex {
			return scored[a].Chunk.ChunkIndex < scored[b].Chunk.ChunkIndex
		}
		return scored[a].Chunk.BlobID < scored[b].Chunk.BlobID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Retag atomically updates the denormalized visibility on every entry
// for a blob
func (i *Index) Retag(ctx context.Context, blobID string, v domain.Visibility) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	docs := i.blobDocsLocked(ctx, blobID)
	if len(docs) == 0 {
		return nil
	}
	for idx := range docs {
		docs[idx].Metadata["visibility"] = string(v)
	}

	if err := i.deleteBlobLocked(ctx, blobID); err != nil {
		return err
	}
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to re-add entries: %w", err)
	}
	return nil
}

// DeleteByBlob removes all entries for a blob
func (i *Index) DeleteByBlob(ctx context.Context, blobID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deleteBlobLocked(ctx, blobID)
}

// CountByBlob returns the number of indexed entries for a blob
func (i *Index) CountByBlob(ctx context.Context, blobID string) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.blobDocsLocked(ctx, blobID)), nil
}

// blobDocsLocked loads a blob's entries by walking its contiguous chunk
// IDs from zero; the first miss ends the blob.
func (i *Index) blobDocsLocked(ctx context.Context, blobID string) []chromemgo.Document {
	var docs []chromemgo.Document
	for idx := 0; ; idx++ {
		doc, err := i.collection.GetByID(ctx, chunkDocID(blobID, idx))
		if err != nil {
			return docs
		}
		docs = append(docs, doc)
	}
}

func (i *Index) deleteBlobLocked(ctx context.Context, blobID string) error {
	if i.collection.Count() == 0 {
		return nil
	}
	if err := i.collection.Delete(ctx, map[string]string{"blob_id": blobID}, nil); err != nil {
		return fmt.Errorf("failed to delete entries for blob: %w", err)
	}
	return nil
}
