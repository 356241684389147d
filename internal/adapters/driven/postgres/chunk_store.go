package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL. Embeddings
// are stored as JSONB arrays; similarity search happens in the vector
// index, not here.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForBlob atomically replaces all chunks for a blob. An empty
// slice clears them.
func (s *ChunkStore) ReplaceForBlob(ctx context.Context, blobID string, chunks []*domain.ChunkEntry) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE blob_id = $1`, blobID); err != nil {
			return fmt.Errorf("clear chunks for %s: %w", blobID, err)
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (blob_id, chunk_index, content, embedding, owner_identity, visibility, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			embeddingJSON, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				blobID,
				c.ChunkIndex,
				c.Text,
				embeddingJSON,
				c.OwnerIdentity,
				string(c.Visibility),
				c.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// GetByBlob retrieves all chunks for a blob ordered by chunk index
func (s *ChunkStore) GetByBlob(ctx context.Context, blobID string) ([]*domain.ChunkEntry, error) {
	query := `
		SELECT blob_id, chunk_index, content, embedding, owner_identity, visibility, created_at
		FROM chunks
		WHERE blob_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query, blobID)
	if err != nil {
		return nil, fmt.Errorf("get chunks for %s: %w", blobID, err)
	}
	defer rows.Close()

	var out []*domain.ChunkEntry
	for rows.Next() {
		var c domain.ChunkEntry
		var embeddingJSON []byte
		var visibility string
		err := rows.Scan(&c.BlobID, &c.ChunkIndex, &c.Text, &embeddingJSON, &c.OwnerIdentity, &visibility, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &c.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		c.Visibility = domain.Visibility(visibility)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteByBlob deletes all chunks for a blob
func (s *ChunkStore) DeleteByBlob(ctx context.Context, blobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE blob_id = $1`, blobID)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", blobID, err)
	}
	return nil
}

// CountByBlob returns the chunk count for a blob
func (s *ChunkStore) CountByBlob(ctx context.Context, blobID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE blob_id = $1`, blobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks for %s: %w", blobID, err)
	}
	return count, nil
}

// RetagVisibility updates the visibility on all chunks for a blob
func (s *ChunkStore) RetagVisibility(ctx context.Context, blobID string, v domain.Visibility) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET visibility = $1 WHERE blob_id = $2`,
		string(v), blobID)
	if err != nil {
		return fmt.Errorf("retag chunks for %s: %w", blobID, err)
	}
	return nil
}
