package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `document_id, owner_identity, filename, blob_id, ledger_object_id,
		visibility, state, failure_reason, chunk_count, created_at, updated_at`

// Save creates or updates a document record
func (s *DocumentStore) Save(ctx context.Context, rec *domain.DocumentRecord) error {
	query := `
		INSERT INTO documents (document_id, owner_identity, filename, blob_id, ledger_object_id,
			visibility, state, failure_reason, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (document_id) DO UPDATE SET
			blob_id = EXCLUDED.blob_id,
			ledger_object_id = EXCLUDED.ledger_object_id,
			visibility = EXCLUDED.visibility,
			state = EXCLUDED.state,
			failure_reason = EXCLUDED.failure_reason,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.DocumentID,
		rec.OwnerIdentity,
		rec.Filename,
		rec.BlobID,
		rec.LedgerObjectID,
		string(rec.Visibility),
		string(rec.State),
		rec.FailureReason,
		rec.ChunkCount,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.DocumentID, err)
	}
	return nil
}

// Get retrieves a document record by ID
func (s *DocumentStore) Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE document_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, documentID))
}

// GetByBlob retrieves a document record by blob ID
func (s *DocumentStore) GetByBlob(ctx context.Context, blobID string) (*domain.DocumentRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE blob_id = $1 LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, blobID))
}

// ListByOwner retrieves records owned by an identity with pagination
func (s *DocumentStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.DocumentRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_identity = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", owner, err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListByStateBefore retrieves records in the given state last updated
// before the cutoff
func (s *DocumentStore) ListByStateBefore(ctx context.Context, state domain.DocumentState, cutoff time.Time) ([]*domain.DocumentRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(state), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list documents in state %s: %w", state, err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// Delete removes a document record
func (s *DocumentStore) Delete(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns total record count
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *DocumentStore) scanOne(row *sql.Row) (*domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var visibility, state string
	err := row.Scan(
		&rec.DocumentID,
		&rec.OwnerIdentity,
		&rec.Filename,
		&rec.BlobID,
		&rec.LedgerObjectID,
		&visibility,
		&state,
		&rec.FailureReason,
		&rec.ChunkCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	rec.Visibility = domain.Visibility(visibility)
	rec.State = domain.DocumentState(state)
	return &rec, nil
}

func (s *DocumentStore) scanAll(rows *sql.Rows) ([]*domain.DocumentRecord, error) {
	var out []*domain.DocumentRecord
	for rows.Next() {
		var rec domain.DocumentRecord
		var visibility, state string
		err := rows.Scan(
			&rec.DocumentID,
			&rec.OwnerIdentity,
			&rec.Filename,
			&rec.BlobID,
			&rec.LedgerObjectID,
			&visibility,
			&state,
			&rec.FailureReason,
			&rec.ChunkCount,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		rec.Visibility = domain.Visibility(visibility)
		rec.State = domain.DocumentState(state)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
