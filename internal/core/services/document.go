package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// documentService provides the read side: local records, index
// footprint, and the externally-verifiable ledger view.
type documentService struct {
	documentStore driven.DocumentStore
	chunkStore    driven.ChunkStore
	chunkIndex    driven.ChunkIndex
	blobStore     driven.BlobStore
	ledger        driven.LedgerClient
	logger        *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	documentStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	chunkIndex driven.ChunkIndex,
	blobStore driven.BlobStore,
	ledger driven.LedgerClient,
	logger *slog.Logger,
) driving.DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{
		documentStore: documentStore,
		chunkStore:    chunkStore,
		chunkIndex:    chunkIndex,
		blobStore:     blobStore,
		ledger:        ledger,
		logger:        logger,
	}
}

func (s *documentService) Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document ID is required", domain.ErrValidation)
	}
	return s.documentStore.Get(ctx, documentID)
}

func (s *documentService) ListOwned(ctx context.Context, owner string, limit, offset int) ([]*domain.DocumentRecord, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner identity is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.documentStore.ListByOwner(ctx, owner, limit, offset)
}

func (s *documentService) Stats(ctx context.Context, documentID string) (*domain.DocumentStats, error) {
	rec, err := s.documentStore.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	stats := &domain.DocumentStats{
		DocumentID: rec.DocumentID,
		State:      rec.State,
		ChunkCount: rec.ChunkCount,
	}
	if rec.BlobID == "" {
		return stats, nil
	}

	stored, err := s.chunkStore.CountByBlob(ctx, rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count stored chunks: %w", err)
	}
	indexed, err := s.chunkIndex.CountByBlob(ctx, rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	stats.StoredChunks = stored
	stats.IndexedChunks = indexed
	return stats, nil
}

func (s *documentService) Download(ctx context.Context, documentID string) ([]byte, error) {
	rec, err := s.documentStore.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if rec.BlobID == "" {
		return nil, fmt.Errorf("%w: document %s has no stored content", domain.ErrInvalidState, documentID)
	}
	content, err := s.blobStore.Get(ctx, rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", rec.BlobID, err)
	}
	return content, nil
}

func (s *documentService) LedgerHoldings(ctx context.Context, owner string) ([]*domain.LedgerRecord, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner identity is required", domain.ErrValidation)
	}
	records, err := s.ledger.QueryOwned(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger query failed: %w", err)
	}
	return records, nil
}

// VerifyOwnership answers from the ledger, not local state: the ledger
// record is the proof, the local record is a cache.
func (s *documentService) VerifyOwnership(ctx context.Context, documentID, owner string) (bool, error) {
	rec, err := s.documentStore.Get(ctx, documentID)
	if err != nil {
		return false, err
	}
	if rec.LedgerObjectID == "" {
		return false, nil
	}

	ledgerRec, err := s.ledger.GetRecord(ctx, rec.LedgerObjectID)
	if err != nil {
		return false, fmt.Errorf("ledger lookup failed: %w", err)
	}
	return ledgerRec.Owner == owner, nil
}
