package chromem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

func testEntry(blobID string, chunkIndex int, text string, embedding []float32, owner string, v domain.Visibility) *domain.ChunkEntry {
	return &domain.ChunkEntry{
		BlobID:        blobID,
		ChunkIndex:    chunkIndex,
		Text:          text,
		Embedding:     embedding,
		OwnerIdentity: owner,
		Visibility:    v,
		CreatedAt:     time.Now(),
	}
}

func setupIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	return idx
}

func TestPutBatchAndSearch(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	entries := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "first chunk", []float32{1, 0, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 1, "second chunk", []float32{0, 1, 0}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ChunkIndex != 0 {
		t.Errorf("expected chunk 0 first, got %d", results[0].Chunk.ChunkIndex)
	}
	if results[0].Score <= results[1].Score {
		t.Error("expected descending similarity order")
	}
	if results[0].Chunk.Text != "first chunk" {
		t.Errorf("unexpected text: %s", results[0].Chunk.Text)
	}
}

func TestPutBatchValidation(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	err := idx.PutBatch(ctx, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty batch, got %v", err)
	}

	mixed := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "a", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-2", 0, "b", []float32{0, 1}, "0xalice", domain.VisibilityPublic),
	}
	err = idx.PutBatch(ctx, mixed)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for mixed blobs, got %v", err)
	}

	noEmbedding := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "a", nil, "0xalice", domain.VisibilityPublic),
	}
	err = idx.PutBatch(ctx, noEmbedding)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for missing embedding, got %v", err)
	}
}

func TestPutBatchReplacesPreviousEntries(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	first := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "old a", []float32{1, 0, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 1, "old b", []float32{0, 1, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 2, "old c", []float32{0, 0, 1}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "new a", []float32{1, 0, 0}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := idx.CountByBlob(ctx, "blob-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after replace, got %d", count)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "new a" {
		t.Errorf("expected only the replacement entry, got %d results", len(results))
	}
}

func TestSearchAccessFilter(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	public := []*domain.ChunkEntry{
		testEntry("blob-pub", 0, "public text", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
	}
	private := []*domain.ChunkEntry{
		testEntry("blob-priv", 0, "private text", []float32{1, 0}, "0xalice", domain.VisibilityPrivate),
	}
	if err := idx.PutBatch(ctx, public); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.PutBatch(ctx, private); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stranger sees only the public chunk
	results, err := idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.BlobID != "blob-pub" {
		t.Fatalf("expected only the public chunk, got %d results", len(results))
	}

	// Owner sees both
	results, err = idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xalice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected owner to see both chunks, got %d", len(results))
	}

	// Blob filter narrows further
	results, err = idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{
		RequesterIdentity: "0xalice",
		BlobIDs:           []string{"blob-priv"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.BlobID != "blob-priv" {
		t.Errorf("expected blob filter to narrow to blob-priv")
	}
}

func TestSearchTieBreak(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	// Identical embeddings so similarity ties; order must fall back to
	// chunk index, then blob ID.
	a := []*domain.ChunkEntry{
		testEntry("blob-b", 0, "b0", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-b", 1, "b1", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
	}
	b := []*domain.ChunkEntry{
		testEntry("blob-a", 0, "a0", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.PutBatch(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.BlobID != "blob-a" || results[0].Chunk.ChunkIndex != 0 {
		t.Errorf("expected blob-a:0 first, got %s:%d", results[0].Chunk.BlobID, results[0].Chunk.ChunkIndex)
	}
	if results[1].Chunk.BlobID != "blob-b" || results[1].Chunk.ChunkIndex != 0 {
		t.Errorf("expected blob-b:0 second, got %s:%d", results[1].Chunk.BlobID, results[1].Chunk.ChunkIndex)
	}
	if results[2].Chunk.ChunkIndex != 1 {
		t.Errorf("expected blob-b:1 last, got %s:%d", results[2].Chunk.BlobID, results[2].Chunk.ChunkIndex)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := setupIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchValidation(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	_, err := idx.Search(ctx, []float32{1, 0}, 0, domain.ChunkFilter{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for k=0, got %v", err)
	}

	_, err = idx.Search(ctx, nil, 5, domain.ChunkFilter{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty embedding, got %v", err)
	}
}

func TestRetag(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	entries := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "a", []float32{1, 0}, "0xalice", domain.VisibilityPrivate),
		testEntry("blob-1", 1, "b", []float32{0, 1}, "0xalice", domain.VisibilityPrivate),
	}
	if err := idx.PutBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stranger sees nothing while private
	results, err := idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results before retag, got %d", len(results))
	}

	if err := idx.Retag(ctx, "blob-1", domain.VisibilityPublic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err = idx.Search(ctx, []float32{1, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results after retag, got %d", len(results))
	}

	count, _ := idx.CountByBlob(ctx, "blob-1")
	if count != 2 {
		t.Errorf("expected count unchanged by retag, got %d", count)
	}
}

func TestRetagUnknownBlobIsNoop(t *testing.T) {
	idx := setupIndex(t)

	if err := idx.Retag(context.Background(), "missing", domain.VisibilityPublic); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeleteByBlob(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	entries := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "a", []float32{1, 0}, "0xalice", domain.VisibilityPublic),
	}
	keep := []*domain.ChunkEntry{
		testEntry("blob-2", 0, "b", []float32{0, 1}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.PutBatch(ctx, keep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := idx.DeleteByBlob(ctx, "blob-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _ := idx.CountByBlob(ctx, "blob-1")
	if count != 0 {
		t.Errorf("expected 0 entries after delete, got %d", count)
	}

	results, err := idx.Search(ctx, []float32{0, 1}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.BlobID != "blob-2" {
		t.Errorf("expected blob-2 to survive the delete")
	}
}

func TestDeleteUnknownBlobIsNoop(t *testing.T) {
	idx := setupIndex(t)

	if err := idx.DeleteByBlob(context.Background(), "missing"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPersistentIndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewPersistentIndex(dir)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}

	entries := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "first chunk", []float32{1, 0, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 1, "second chunk", []float32{0, 1, 0}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := NewPersistentIndex(dir)
	if err != nil {
		t.Fatalf("failed to reopen index: %v", err)
	}

	count, err := reopened.CountByBlob(ctx, "blob-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", count)
	}

	if err := reopened.Retag(ctx, "blob-1", domain.VisibilityPrivate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := reopened.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected private entries hidden from non-owner after reopen, got %d", len(results))
	}

	results, err = reopened.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xalice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected owner to retrieve 2 entries, got %d", len(results))
	}

	if err := reopened.DeleteByBlob(ctx, "blob-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ = reopened.CountByBlob(ctx, "blob-1")
	if count != 0 {
		t.Errorf("expected 0 entries after delete, got %d", count)
	}
	results, err = reopened.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xalice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after delete, got %d", len(results))
	}
}

func TestSearchDuringRetagIsConsistent(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	entries := []*domain.ChunkEntry{
		testEntry("blob-1", 0, "a", []float32{1, 0, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 1, "b", []float32{0, 1, 0}, "0xalice", domain.VisibilityPublic),
		testEntry("blob-1", 2, "c", []float32{0, 0, 1}, "0xalice", domain.VisibilityPublic),
	}
	if err := idx.PutBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			v := domain.VisibilityPrivate
			if i%2 == 1 {
				v = domain.VisibilityPublic
			}
			if err := idx.Retag(ctx, "blob-1", v); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, domain.ChunkFilter{RequesterIdentity: "0xbob"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 0 && len(results) != 3 {
			t.Fatalf("observed partially retagged blob: %d results", len(results))
		}
	}
	<-done
}
