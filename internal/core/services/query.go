package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// Ensure queryService implements QueryService
var _ driving.QueryService = (*queryService)(nil)

const (
	defaultTopK      = 5
	maxTopK          = 50
	excerptRuneLimit = 200
)

// queryService turns document text into searchable chunks and answers
// questions over the chunks a requester is allowed to see.
type queryService struct {
	chunkStore driven.ChunkStore
	chunkIndex driven.ChunkIndex
	embedder   driven.EmbeddingService
	generator  driven.GenerationService
	pipeline   driven.ChunkPipeline
	logger     *slog.Logger
}

// QueryConfig holds dependencies for the query service.
type QueryConfig struct {
	ChunkStore driven.ChunkStore
	ChunkIndex driven.ChunkIndex
	Embedder   driven.EmbeddingService
	Generator  driven.GenerationService
	Pipeline   driven.ChunkPipeline
	Logger     *slog.Logger
}

// NewQueryService creates a new QueryService.
func NewQueryService(cfg QueryConfig) driving.QueryService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &queryService{
		chunkStore: cfg.ChunkStore,
		chunkIndex: cfg.ChunkIndex,
		embedder:   cfg.Embedder,
		generator:  cfg.Generator,
		pipeline:   cfg.Pipeline,
		logger:     logger,
	}
}

// IngestForSearch chunks and embeds the text, then replaces the blob's
// chunks in both the durable store and the index in one swap per store.
// Returns the number of chunks produced.
func (s *queryService) IngestForSearch(ctx context.Context, blobID, ownerIdentity string, v domain.Visibility, text string) (int, error) {
	if blobID == "" {
		return 0, fmt.Errorf("%w: blob ID is required", domain.ErrValidation)
	}

	pieces := s.pipeline.Process(text)
	if len(pieces) == 0 {
		// Nothing searchable; clear any previous entries for the blob.
		if err := s.chunkIndex.DeleteByBlob(ctx, blobID); err != nil {
			return 0, err
		}
		if err := s.chunkStore.DeleteByBlob(ctx, blobID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}

	embeddings, err := s.embedWithRetry(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(pieces) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrEmbedding, len(embeddings), len(pieces))
	}

	now := time.Now()
	entries := make([]*domain.ChunkEntry, len(pieces))
	for i, p := range pieces {
		entries[i] = &domain.ChunkEntry{
			BlobID:        blobID,
			ChunkIndex:    p.Position,
			Text:          p.Content,
			Embedding:     embeddings[i],
			OwnerIdentity: ownerIdentity,
			Visibility:    v,
			CreatedAt:     now,
		}
	}

	if err := s.chunkStore.ReplaceForBlob(ctx, blobID, entries); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := s.chunkIndex.PutBatch(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to index chunks: %w", err)
	}

	s.logger.Info("blob indexed for search", "blob_id", blobID, "chunks", len(entries))
	return len(entries), nil
}

// Answer retrieves the top-k permitted chunks for the question and
// generates a cited answer over them.
func (s *queryService) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if req.RequesterIdentity == "" {
		return nil, fmt.Errorf("%w: requester identity is required", domain.ErrValidation)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	start := time.Now()

	queryEmbedding, err := s.embedQueryWithRetry(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	filter := domain.ChunkFilter{
		RequesterIdentity: req.RequesterIdentity,
		BlobIDs:           req.BlobIDs,
	}
	scored, err := s.chunkIndex.Search(ctx, queryEmbedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}
	if len(scored) == 0 {
		// An empty allowed set is a valid result, not a failure.
		s.logger.Info("no permitted chunks for question", "requester", req.RequesterIdentity)
		return &domain.Answer{
			Question: req.Question,
			Sources:  []domain.SourceRef{},
			Took:     time.Since(start),
		}, nil
	}

	prompt := buildAnswerPrompt(req.Question, scored)
	text, err := s.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.SourceRef, len(scored))
	for i, sc := range scored {
		sources[i] = domain.SourceRef{
			BlobID:     sc.Chunk.BlobID,
			ChunkIndex: sc.Chunk.ChunkIndex,
			Excerpt:    excerpt(sc.Chunk.Text),
		}
	}

	answer := &domain.Answer{
		Question: req.Question,
		Text:     text,
		Sources:  sources,
		Took:     time.Since(start),
	}

	s.logger.Info("answer generated",
		"requester", req.RequesterIdentity,
		"sources", len(sources),
		"took", answer.Took,
	)
	return answer, nil
}

// DropBlob removes the blob's chunks from the index and the store.
func (s *queryService) DropBlob(ctx context.Context, blobID string) error {
	if err := s.chunkIndex.DeleteByBlob(ctx, blobID); err != nil {
		return err
	}
	return s.chunkStore.DeleteByBlob(ctx, blobID)
}

func (s *queryService) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err == nil {
		return embeddings, nil
	}
	s.logger.Warn("embedding failed, retrying once", "error", err)
	embeddings, err = s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return embeddings, nil
}

func (s *queryService) embedQueryWithRetry(ctx context.Context, question string) ([]float32, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, question)
	if err == nil {
		return embedding, nil
	}
	s.logger.Warn("query embedding failed, retrying once", "error", err)
	embedding, err = s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return embedding, nil
}

func (s *queryService) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	text, err := s.generator.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}
	s.logger.Warn("generation failed, retrying once", "error", err)
	text, err = s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	return text, nil
}

// buildAnswerPrompt assembles the retrieved chunks, each tagged with
// its source coordinates, above the question.
func buildAnswerPrompt(question string, scored []*domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("Cite sources by their [blob_id:chunk_index] tags. ")
	b.WriteString("If the context does not contain the answer, say so.\n\nContext:\n")
	for _, sc := range scored {
		fmt.Fprintf(&b, "[%s:%d]\n%s\n\n", sc.Chunk.BlobID, sc.Chunk.ChunkIndex, sc.Chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptRuneLimit {
		return text
	}
	return string(runes[:excerptRuneLimit])
}
