package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeIndexDocument runs the chunk/embed/index stage for one
	// registered document
	TaskTypeIndexDocument TaskType = "index_document"
	// TaskTypeReindexDocument discards and rebuilds a document's chunks
	TaskTypeReindexDocument TaskType = "reindex_document"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	DocumentID  string     `json:"document_id"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a new pending task for a document.
func NewTask(taskType TaskType, documentID string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		DocumentID:  documentID,
		Status:      TaskStatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing transitions the task to processing and counts the
// attempt.
func (t *Task) MarkProcessing() {
	t.Status = TaskStatusProcessing
	t.Attempts++
	t.UpdatedAt = time.Now()
}

// MarkCompleted transitions the task to completed.
func (t *Task) MarkCompleted() {
	t.Status = TaskStatusCompleted
	t.Error = ""
	t.UpdatedAt = time.Now()
}

// MarkFailed transitions the task to failed with a reason.
func (t *Task) MarkFailed(reason string) {
	t.Status = TaskStatusFailed
	t.Error = reason
	t.UpdatedAt = time.Now()
}

// CanRetry reports whether the task has attempts left.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// Retry puts the task back in pending with the failure noted.
func (t *Task) Retry(reason string) {
	t.Status = TaskStatusPending
	t.Error = reason
	t.UpdatedAt = time.Now()
}
