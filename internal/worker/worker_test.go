package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// stubIngester implements driving.IngestionService with overridable
// indexing hooks
type stubIngester struct {
	mu           sync.Mutex
	indexed      []string
	reindexed    []string
	indexErr     error
	reindexErr   error
	resultState  domain.DocumentState
}

var _ driving.IngestionService = (*stubIngester)(nil)

func newStubIngester() *stubIngester {
	return &stubIngester{resultState: domain.StateIndexed}
}

func (s *stubIngester) AdvanceToIndexed(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	s.indexed = append(s.indexed, documentID)
	return &domain.DocumentRecord{DocumentID: documentID, State: s.resultState}, nil
}

func (s *stubIngester) Reindex(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reindexErr != nil {
		return nil, s.reindexErr
	}
	s.reindexed = append(s.reindexed, documentID)
	return &domain.DocumentRecord{DocumentID: documentID, State: domain.StateIndexed}, nil
}

func (s *stubIngester) indexedDocs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.indexed...)
}

func (s *stubIngester) reindexedDocs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reindexed...)
}

func (s *stubIngester) BeginIntake(ctx context.Context, req driving.IntakeRequest) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (s *stubIngester) AdvanceToStored(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (s *stubIngester) BuildRegistrationRequest(ctx context.Context, documentID string) (*domain.UnsignedTransaction, error) {
	return nil, nil
}

func (s *stubIngester) CompleteRegistration(ctx context.Context, documentID, signedTxRef string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (s *stubIngester) SetVisibility(ctx context.Context, documentID string, v domain.Visibility, ownerIdentity string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (s *stubIngester) Delete(ctx context.Context, documentID, ownerIdentity string) error {
	return nil
}

func (s *stubIngester) Resume(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerProcessesIndexTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingester := newStubIngester()

	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      ingester,
		DequeueTimeout: 1,
	})

	task := domain.NewTask(domain.TaskTypeIndexDocument, "doc-1")
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusCompleted
	})

	docs := ingester.indexedDocs()
	if len(docs) != 1 || docs[0] != "doc-1" {
		t.Errorf("expected doc-1 to be indexed, got %v", docs)
	}
}

func TestWorkerProcessesReindexTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingester := newStubIngester()

	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      ingester,
		DequeueTimeout: 1,
	})

	task := domain.NewTask(domain.TaskTypeReindexDocument, "doc-2")
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusCompleted
	})

	docs := ingester.reindexedDocs()
	if len(docs) != 1 || docs[0] != "doc-2" {
		t.Errorf("expected doc-2 to be reindexed, got %v", docs)
	}
}

func TestWorkerNacksFailedTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingester := newStubIngester()
	ingester.indexErr = errors.New("embedding unavailable")

	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      ingester,
		DequeueTimeout: 1,
	})

	task := domain.NewTask(domain.TaskTypeIndexDocument, "doc-3")
	task.MaxAttempts = 1
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusFailed
	})

	got, _ := queue.GetTask(context.Background(), task.ID)
	if got.Error != "embedding unavailable" {
		t.Errorf("expected failure reason recorded, got %q", got.Error)
	}
}

func TestWorkerNacksUnknownTaskType(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingester := newStubIngester()

	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      ingester,
		DequeueTimeout: 1,
	})

	task := domain.NewTask(domain.TaskType("bogus"), "doc-4")
	task.MaxAttempts = 1
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		got, _ := queue.GetTask(context.Background(), task.ID)
		return got != nil && got.Status == domain.TaskStatusFailed
	})
}

func TestWorkerStartIsIdempotent(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      newStubIngester(),
		DequeueTimeout: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error on second start: %v", err)
	}
	w.Stop()
}

func TestWorkerHealth(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := New(Config{
		TaskQueue:      queue,
		Ingestion:      newStubIngester(),
		DequeueTimeout: 1,
	})

	health := w.Health(context.Background())
	if health.Running {
		t.Error("expected worker not running before Start")
	}
	if !health.QueueHealth {
		t.Error("expected healthy queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	health = w.Health(context.Background())
	if !health.Running {
		t.Error("expected worker running after Start")
	}
}
