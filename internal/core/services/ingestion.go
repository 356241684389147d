package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// Ensure ingestionService implements IngestionService
var _ driving.IngestionService = (*ingestionService)(nil)

const (
	defaultMaxUploadAttempts = 3
	defaultUploadBackoff     = 200 * time.Millisecond
	defaultLockTTL           = 30 * time.Second
	defaultLockWait          = 5 * time.Second
	lockPollInterval         = 20 * time.Millisecond
)

// ingestionService drives the document ingestion saga:
//
//	received -> stored -> awaiting_signature -> registered -> indexed
//
// Per-document operations are serialized through the distributed lock;
// cross-document operations run fully in parallel. The service never
// holds signing keys: registration is a two-call handoff through an
// external signer.
type ingestionService struct {
	documentStore driven.DocumentStore
	chunkStore    driven.ChunkStore
	chunkIndex    driven.ChunkIndex
	blobStore     driven.BlobStore
	ledger        driven.LedgerClient
	lock          driven.DistributedLock
	extractors    driven.ExtractorRegistry
	query         driving.QueryService
	logger        *slog.Logger

	maxUploadAttempts int
	uploadBackoff     time.Duration
	lockTTL           time.Duration
	lockWait          time.Duration

	// Intake payloads held until storage succeeds. Raw bytes are never
	// persisted locally; the object store is the only durable home for
	// them.
	mu      sync.Mutex
	pending map[string][]byte
}

// IngestionConfig holds dependencies for the ingestion service.
type IngestionConfig struct {
	DocumentStore driven.DocumentStore
	ChunkStore    driven.ChunkStore
	ChunkIndex    driven.ChunkIndex
	BlobStore     driven.BlobStore
	Ledger        driven.LedgerClient
	Lock          driven.DistributedLock
	Extractors    driven.ExtractorRegistry
	Query         driving.QueryService
	Logger        *slog.Logger

	// MaxUploadAttempts caps storage retries before the document fails.
	MaxUploadAttempts int
	// UploadBackoff is the initial backoff between storage retries,
	// doubled per attempt.
	UploadBackoff time.Duration
	// LockTTL bounds how long one operation may hold a document lock.
	LockTTL time.Duration
	// LockWait bounds how long an operation waits for a contended lock.
	LockWait time.Duration
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(cfg IngestionConfig) driving.IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadAttempts <= 0 {
		cfg.MaxUploadAttempts = defaultMaxUploadAttempts
	}
	if cfg.UploadBackoff <= 0 {
		cfg.UploadBackoff = defaultUploadBackoff
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}

	return &ingestionService{
		documentStore:     cfg.DocumentStore,
		chunkStore:        cfg.ChunkStore,
		chunkIndex:        cfg.ChunkIndex,
		blobStore:         cfg.BlobStore,
		ledger:            cfg.Ledger,
		lock:              cfg.Lock,
		extractors:        cfg.Extractors,
		query:             cfg.Query,
		logger:            logger,
		maxUploadAttempts: cfg.MaxUploadAttempts,
		uploadBackoff:     cfg.UploadBackoff,
		lockTTL:           cfg.LockTTL,
		lockWait:          cfg.LockWait,
		pending:           make(map[string][]byte),
	}
}

// BeginIntake allocates a document record and accepts the payload.
func (s *ingestionService) BeginIntake(ctx context.Context, req driving.IntakeRequest) (*domain.DocumentRecord, error) {
	if req.OwnerIdentity == "" {
		return nil, fmt.Errorf("%w: owner identity is required", domain.ErrValidation)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrValidation)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	ext := fileExtension(req.Filename)
	if s.extractors.Get(ext) == nil {
		return nil, fmt.Errorf("%w: unsupported file extension %q", domain.ErrValidation, ext)
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: unknown visibility %q", domain.ErrValidation, req.Visibility)
	}

	now := time.Now()
	rec := &domain.DocumentRecord{
		DocumentID:    uuid.NewString(),
		OwnerIdentity: req.OwnerIdentity,
		Filename:      req.Filename,
		Visibility:    visibility,
		State:         domain.StateReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.documentStore.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save document record: %w", err)
	}

	payload := make([]byte, len(req.Content))
	copy(payload, req.Content)
	s.mu.Lock()
	s.pending[rec.DocumentID] = payload
	s.mu.Unlock()

	s.logger.Info("intake accepted",
		"document_id", rec.DocumentID,
		"owner", rec.OwnerIdentity,
		"filename", rec.Filename,
		"bytes", len(req.Content),
	)

	return rec.Clone(), nil
}

// AdvanceToStored uploads the payload and records the blob ID. Retries
// transient storage failures with capped exponential backoff; a second
// concurrent call for the same document observes the stored state
// without re-uploading.
func (s *ingestionService) AdvanceToStored(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}

		// Already stored (or further along): nothing to do
		if rec.State.AtLeast(domain.StateStored) {
			out = rec
			return nil
		}
		if rec.State != domain.StateReceived {
			return fmt.Errorf("%w: cannot store document in state %s", domain.ErrInvalidState, rec.State)
		}

		s.mu.Lock()
		payload, ok := s.pending[documentID]
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: intake payload no longer available, begin intake again", domain.ErrValidation)
		}

		blobID, err := s.uploadWithRetry(ctx, payload)
		if err != nil {
			s.failDocument(ctx, rec, fmt.Sprintf("storage failed after %d attempts: %v", s.maxUploadAttempts, err))
			return err
		}

		rec.BlobID = blobID
		rec.State = domain.StateStored
		rec.FailureReason = ""
		rec.UpdatedAt = time.Now()
		if err := s.documentStore.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save document record: %w", err)
		}

		s.mu.Lock()
		delete(s.pending, documentID)
		s.mu.Unlock()

		s.logger.Info("document stored", "document_id", documentID, "blob_id", blobID)
		out = rec
		return nil
	})
	return out, err
}

// uploadWithRetry puts the payload to the object store. The store is
// content-addressed, so retries are side-effect-free.
func (s *ingestionService) uploadWithRetry(ctx context.Context, payload []byte) (string, error) {
	backoff := s.uploadBackoff
	var lastErr error

	for attempt := 1; attempt <= s.maxUploadAttempts; attempt++ {
		blobID, err := s.blobStore.Put(ctx, payload)
		if err == nil {
			return blobID, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == s.maxUploadAttempts {
			break
		}

		s.logger.Warn("blob upload failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrStorage, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if errors.Is(lastErr, domain.ErrStorage) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %v", domain.ErrStorage, lastErr)
}

// BuildRegistrationRequest builds an unsigned registration transaction
// for the external signer. Callable again from awaiting_signature to
// replace a stale single-use reference.
func (s *ingestionService) BuildRegistrationRequest(ctx context.Context, documentID string) (*domain.UnsignedTransaction, error) {
	var out *domain.UnsignedTransaction
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.State != domain.StateStored && rec.State != domain.StateAwaitingSignature {
			return fmt.Errorf("%w: cannot build registration in state %s", domain.ErrInvalidState, rec.State)
		}

		tx, err := s.ledger.BuildRegisterTx(ctx, rec.OwnerIdentity, rec.Filename, rec.BlobID,
			rec.Visibility == domain.VisibilityPublic)
		if err != nil {
			return fmt.Errorf("failed to build registration transaction: %w", err)
		}
		tx.DocumentID = documentID

		if rec.State == domain.StateStored {
			rec.State = domain.StateAwaitingSignature
			rec.FailureReason = ""
			rec.UpdatedAt = time.Now()
			if err := s.documentStore.Save(ctx, rec); err != nil {
				return fmt.Errorf("failed to save document record: %w", err)
			}
		}

		s.logger.Info("registration request built", "document_id", documentID, "target", tx.Target)
		out = tx
		return nil
	})
	return out, err
}

// CompleteRegistration submits the externally-signed reference. On
// rejection the document stays in awaiting_signature: references are
// single-use and the caller must build a new transaction.
func (s *ingestionService) CompleteRegistration(ctx context.Context, documentID, signedTxRef string) (*domain.DocumentRecord, error) {
	if signedTxRef == "" {
		return nil, fmt.Errorf("%w: signed transaction reference is required", domain.ErrValidation)
	}

	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.State != domain.StateAwaitingSignature {
			return fmt.Errorf("%w: cannot complete registration in state %s", domain.ErrInvalidState, rec.State)
		}

		ledgerRec, err := s.ledger.SubmitSigned(ctx, signedTxRef)
		if err != nil {
			if errors.Is(err, domain.ErrLedgerRejected) || errors.Is(err, domain.ErrLedgerResponse) {
				// State deliberately not advanced and not failed: the
				// caller rebuilds the transaction and retries.
				rec.FailureReason = err.Error()
				rec.UpdatedAt = time.Now()
				if saveErr := s.documentStore.Save(ctx, rec); saveErr != nil {
					s.logger.Warn("failed to record rejection reason", "document_id", documentID, "error", saveErr)
				}
			}
			return err
		}

		if ledgerRec.ContentID != rec.BlobID {
			// A reference built for another document is a rejection,
			// not a ledger fault.
			mismatchErr := fmt.Errorf("%w: ledger content_id %s does not match blob %s",
				domain.ErrLedgerRejected, ledgerRec.ContentID, rec.BlobID)
			rec.FailureReason = mismatchErr.Error()
			rec.UpdatedAt = time.Now()
			if saveErr := s.documentStore.Save(ctx, rec); saveErr != nil {
				s.logger.Warn("failed to record rejection reason", "document_id", documentID, "error", saveErr)
			}
			return mismatchErr
		}

		rec.LedgerObjectID = ledgerRec.ObjectID
		rec.State = domain.StateRegistered
		rec.FailureReason = ""
		rec.UpdatedAt = time.Now()
		if err := s.documentStore.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save document record: %w", err)
		}

		s.logger.Info("document registered",
			"document_id", documentID,
			"ledger_object_id", rec.LedgerObjectID,
		)
		out = rec
		return nil
	})
	return out, err
}

// AdvanceToIndexed extracts, chunks, embeds, and indexes the stored
// payload. Indexing is staged: on any failure the batch is rolled back,
// no partial chunks remain visible, and the document stays registered
// for retry.
func (s *ingestionService) AdvanceToIndexed(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.State == domain.StateIndexed {
			out = rec
			return nil
		}
		if rec.State != domain.StateRegistered {
			return fmt.Errorf("%w: cannot index document in state %s", domain.ErrInvalidState, rec.State)
		}

		if err := s.indexDocument(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Reindex discards and rebuilds a document's chunks and index entries
// from the stored blob. Unlike AdvanceToIndexed it also accepts
// already-indexed documents, so it backs the reindex task.
func (s *ingestionService) Reindex(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.State != domain.StateRegistered && rec.State != domain.StateIndexed {
			return fmt.Errorf("%w: cannot reindex document in state %s", domain.ErrInvalidState, rec.State)
		}

		if err := s.indexDocument(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *ingestionService) indexDocument(ctx context.Context, rec *domain.DocumentRecord) error {
	payload, err := s.blobStore.Get(ctx, rec.BlobID)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch blob %s: %v", domain.ErrStorage, rec.BlobID, err)
	}

	extractor := s.extractors.Get(fileExtension(rec.Filename))
	if extractor == nil {
		return fmt.Errorf("%w: unsupported file extension for %q", domain.ErrValidation, rec.Filename)
	}
	text, err := extractor.Extract(payload)
	if err != nil {
		s.recordIndexFailure(ctx, rec, err)
		return fmt.Errorf("%w: text extraction failed: %v", domain.ErrValidation, err)
	}

	count, err := s.query.IngestForSearch(ctx, rec.BlobID, rec.OwnerIdentity, rec.Visibility, text)
	if err != nil {
		// The query engine stages its batch, but clean up anything
		// durable so a retry starts from zero.
		s.rollbackIndexing(ctx, rec.BlobID)
		s.recordIndexFailure(ctx, rec, err)
		return err
	}

	rec.ChunkCount = count
	rec.State = domain.StateIndexed
	rec.FailureReason = ""
	rec.UpdatedAt = time.Now()
	if err := s.documentStore.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save document record: %w", err)
	}

	s.logger.Info("document indexed", "document_id", rec.DocumentID, "chunks", count)
	return nil
}

// SetVisibility flips a document between private and public. The
// ledger's own owner check is authoritative; the record and every chunk
// are retagged so a concurrent query sees either the old or the new
// visibility, never a mix.
func (s *ingestionService) SetVisibility(ctx context.Context, documentID string, v domain.Visibility, ownerIdentity string) (*domain.DocumentRecord, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: unknown visibility %q", domain.ErrValidation, v)
	}

	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.OwnerIdentity != ownerIdentity {
			return fmt.Errorf("%w: not the document owner", domain.ErrAccessDenied)
		}
		if rec.Visibility == v {
			out = rec
			return nil
		}

		if rec.LedgerObjectID != "" {
			if err := s.ledger.UpdateVisibility(ctx, rec.LedgerObjectID, ownerIdentity,
				v == domain.VisibilityPublic); err != nil {
				return err
			}
		}

		rec.Visibility = v
		rec.UpdatedAt = time.Now()
		if err := s.documentStore.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save document record: %w", err)
		}

		if rec.BlobID != "" {
			if err := s.chunkStore.RetagVisibility(ctx, rec.BlobID, v); err != nil {
				return fmt.Errorf("failed to retag stored chunks: %w", err)
			}
			if err := s.chunkIndex.Retag(ctx, rec.BlobID, v); err != nil {
				return fmt.Errorf("failed to retag index: %w", err)
			}
		}

		s.logger.Info("visibility changed", "document_id", documentID, "visibility", v)
		out = rec
		return nil
	})
	return out, err
}

// Delete removes the record, its chunks, and its index entries. Chunks
// go first so no orphan chunks can survive the record.
func (s *ingestionService) Delete(ctx context.Context, documentID, ownerIdentity string) error {
	return s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.OwnerIdentity != ownerIdentity {
			return fmt.Errorf("%w: not the document owner", domain.ErrAccessDenied)
		}

		if rec.BlobID != "" {
			if err := s.chunkIndex.DeleteByBlob(ctx, rec.BlobID); err != nil {
				return fmt.Errorf("failed to delete index entries: %w", err)
			}
			if err := s.chunkStore.DeleteByBlob(ctx, rec.BlobID); err != nil {
				return fmt.Errorf("failed to delete chunks: %w", err)
			}
		}
		if err := s.documentStore.Delete(ctx, documentID); err != nil {
			return err
		}

		s.mu.Lock()
		delete(s.pending, documentID)
		s.mu.Unlock()

		s.logger.Info("document deleted", "document_id", documentID)
		return nil
	})
}

// Resume re-drives a failed document from its last successful state.
// The checkpoint is derived from what the record already holds: a
// ledger object means registered, a blob means stored, otherwise the
// document is back at received.
func (s *ingestionService) Resume(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	var out *domain.DocumentRecord
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		rec, err := s.documentStore.Get(ctx, documentID)
		if err != nil {
			return err
		}
		if rec.State != domain.StateFailed {
			out = rec
			return nil
		}

		switch {
		case rec.LedgerObjectID != "":
			rec.State = domain.StateRegistered
		case rec.BlobID != "":
			rec.State = domain.StateStored
		default:
			s.mu.Lock()
			_, ok := s.pending[documentID]
			s.mu.Unlock()
			if !ok {
				return fmt.Errorf("%w: intake payload no longer available, begin intake again", domain.ErrValidation)
			}
			rec.State = domain.StateReceived
		}

		rec.FailureReason = ""
		rec.UpdatedAt = time.Now()
		if err := s.documentStore.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save document record: %w", err)
		}

		s.logger.Info("document resumed", "document_id", documentID, "state", rec.State)
		out = rec
		return nil
	})
	return out, err
}

// withDocumentLock serializes the callback against other operations on
// the same document. Waits up to lockWait for a contended lock.
func (s *ingestionService) withDocumentLock(ctx context.Context, documentID string, fn func(context.Context) error) error {
	if documentID == "" {
		return fmt.Errorf("%w: document ID is required", domain.ErrValidation)
	}

	name := "doc:" + documentID
	deadline := time.Now().Add(s.lockWait)
	for {
		acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire document lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", domain.ErrLockHeld, documentID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			s.logger.Warn("failed to release document lock", "document_id", documentID, "error", err)
		}
	}()

	return fn(ctx)
}

// failDocument moves a record to the terminal failed state with a
// recorded reason.
func (s *ingestionService) failDocument(ctx context.Context, rec *domain.DocumentRecord, reason string) {
	rec.State = domain.StateFailed
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now()
	if err := s.documentStore.Save(ctx, rec); err != nil {
		s.logger.Error("failed to record document failure", "document_id", rec.DocumentID, "error", err)
	}
	s.logger.Warn("document failed", "document_id", rec.DocumentID, "reason", reason)
}

// recordIndexFailure notes an indexing failure without leaving the
// registered state: indexing is retryable from zero.
func (s *ingestionService) recordIndexFailure(ctx context.Context, rec *domain.DocumentRecord, cause error) {
	rec.FailureReason = fmt.Sprintf("indexing failed: %v", cause)
	rec.UpdatedAt = time.Now()
	if err := s.documentStore.Save(ctx, rec); err != nil {
		s.logger.Warn("failed to record indexing failure", "document_id", rec.DocumentID, "error", err)
	}
}

// rollbackIndexing discards any partial chunk state for a blob.
func (s *ingestionService) rollbackIndexing(ctx context.Context, blobID string) {
	if err := s.chunkIndex.DeleteByBlob(ctx, blobID); err != nil {
		s.logger.Warn("failed to roll back index entries", "blob_id", blobID, "error", err)
	}
	if err := s.chunkStore.DeleteByBlob(ctx, blobID); err != nil {
		s.logger.Warn("failed to roll back chunks", "blob_id", blobID, "error", err)
	}
}

func fileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
