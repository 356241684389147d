package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Ensure TaskQueue implements the port
var _ driven.TaskQueue = (*TaskQueue)(nil)

// TaskQueue implements the task queue on PostgreSQL with FOR UPDATE
// SKIP LOCKED. This is the fallback queue when Redis is not available.
type TaskQueue struct {
	db *DB
}

// NewTaskQueue creates a PostgreSQL-backed task queue. Assumes the
// tasks table exists (InitSchema creates it).
func NewTaskQueue(db *DB) *TaskQueue {
	return &TaskQueue{db: db}
}

// Enqueue adds a task to the queue.
func (q *TaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (
			id, type, document_id, status, attempts, max_attempts,
			error, created_at, updated_at, scheduled_for
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.DocumentID,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

// DequeueWithTimeout retrieves the next pending task, waiting up to
// timeout seconds before returning nil, nil.
func (q *TaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	return q.dequeue(ctx, timeout)
}

func (q *TaskQueue) dequeue(ctx context.Context, timeoutSeconds int) (*domain.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// SKIP LOCKED keeps concurrent workers from claiming the same row.
	selectQuery := `
		SELECT id, type, document_id, status, attempts, max_attempts,
		       error, created_at, updated_at
		FROM tasks
		WHERE status = $1
		  AND scheduled_for <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var task domain.Task
	err = tx.QueryRowContext(ctx, selectQuery, domain.TaskStatusPending).Scan(
		&task.ID,
		&task.Type,
		&task.DocumentID,
		&task.Status,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		_ = tx.Rollback()

		if timeoutSeconds > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(timeoutSeconds) * time.Second):
				return q.dequeue(ctx, 0)
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}

	now := time.Now()
	updateQuery := `
		UPDATE tasks
		SET status = $1, updated_at = $2, attempts = attempts + 1
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, updateQuery, domain.TaskStatusProcessing, now, task.ID); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.Status = domain.TaskStatusProcessing
	task.UpdatedAt = now
	task.Attempts++

	return &task, nil
}

// Ack marks a task as completed.
func (q *TaskQueue) Ack(ctx context.Context, taskID string) error {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2, error = ''
		WHERE id = $3
	`

	result, err := q.db.ExecContext(ctx, query, domain.TaskStatusCompleted, time.Now(), taskID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Nack requeues a failed task with backoff, or marks it failed once
// attempts are exhausted.
func (q *TaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	now := time.Now()

	if task.CanRetry() {
		backoff := time.Duration(1<<task.Attempts) * time.Second
		if backoff > 5*time.Minute {
			backoff = 5 * time.Minute
		}

		query := `
			UPDATE tasks
			SET status = $1, error = $2, updated_at = $3, scheduled_for = $4
			WHERE id = $5
		`
		_, err = q.db.ExecContext(ctx, query,
			domain.TaskStatusPending, reason, now, now.Add(backoff), taskID)
	} else {
		query := `
			UPDATE tasks
			SET status = $1, error = $2, updated_at = $3
			WHERE id = $4
		`
		_, err = q.db.ExecContext(ctx, query,
			domain.TaskStatusFailed, reason, now, taskID)
	}

	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `
		SELECT id, type, document_id, status, attempts, max_attempts,
		       error, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var task domain.Task
	err := q.db.QueryRowContext(ctx, query, taskID).Scan(
		&task.ID,
		&task.Type,
		&task.DocumentID,
		&task.Status,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}

	return &task, nil
}

// Ping checks queue health through the underlying database.
func (q *TaskQueue) Ping(ctx context.Context) error {
	return q.db.Ping(ctx)
}

// Close is a no-op; the shared database connection is closed by its owner.
func (q *TaskQueue) Close() error {
	return nil
}
