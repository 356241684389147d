package services

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven/mocks"
)

func TestSweepExpiresStaleSignatures(t *testing.T) {
	store := mocks.NewMockDocumentStore()
	lock := mocks.NewMockLock()
	ctx := context.Background()

	stale := &domain.DocumentRecord{
		DocumentID:    "doc-stale",
		OwnerIdentity: "0xalice",
		State:         domain.StateAwaitingSignature,
		BlobID:        "blob-1",
		UpdatedAt:     time.Now().Add(-2 * time.Hour),
	}
	fresh := &domain.DocumentRecord{
		DocumentID:    "doc-fresh",
		OwnerIdentity: "0xalice",
		State:         domain.StateAwaitingSignature,
		BlobID:        "blob-2",
		UpdatedAt:     time.Now(),
	}
	stored := &domain.DocumentRecord{
		DocumentID:    "doc-stored",
		OwnerIdentity: "0xalice",
		State:         domain.StateStored,
		BlobID:        "blob-3",
		UpdatedAt:     time.Now().Add(-2 * time.Hour),
	}
	for _, rec := range []*domain.DocumentRecord{stale, fresh, stored} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	janitor := NewSignatureJanitor(JanitorConfig{
		DocumentStore: store,
		Lock:          lock,
		SignatureTTL:  time.Hour,
	})

	n, err := janitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	got, _ := store.Get(ctx, "doc-stale")
	if got.State != domain.StateFailed {
		t.Errorf("stale doc State = %s, want %s", got.State, domain.StateFailed)
	}
	if got.FailureReason == "" {
		t.Error("expiry reason not recorded")
	}

	got, _ = store.Get(ctx, "doc-fresh")
	if got.State != domain.StateAwaitingSignature {
		t.Errorf("fresh doc State = %s, want untouched", got.State)
	}
	got, _ = store.Get(ctx, "doc-stored")
	if got.State != domain.StateStored {
		t.Errorf("stored doc State = %s, want untouched", got.State)
	}
}

func TestSweepSkipsWhenLockContended(t *testing.T) {
	store := mocks.NewMockDocumentStore()
	lock := mocks.NewMockLock()
	ctx := context.Background()

	if err := store.Save(ctx, &domain.DocumentRecord{
		DocumentID: "doc-stale",
		State:      domain.StateAwaitingSignature,
		UpdatedAt:  time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if acquired, _ := lock.Acquire(ctx, "janitor:signatures", time.Minute); !acquired {
		t.Fatal("could not pre-acquire janitor lock")
	}

	janitor := NewSignatureJanitor(JanitorConfig{
		DocumentStore: store,
		Lock:          lock,
		SignatureTTL:  time.Hour,
	})

	n, err := janitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 0 {
		t.Errorf("expired = %d under contended lock, want 0", n)
	}

	got, _ := store.Get(ctx, "doc-stale")
	if got.State != domain.StateAwaitingSignature {
		t.Errorf("State = %s, want untouched", got.State)
	}
}

func TestExpiredDocumentResumesFromStored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.ingestTo(t, domain.StateAwaitingSignature, intakeReq("0xalice", "a.txt", "slow signer", domain.VisibilityPrivate))

	// Backdate the record, then expire it
	backdated, _ := h.documentStore.Get(ctx, rec.DocumentID)
	backdated.UpdatedAt = time.Now().Add(-2 * time.Hour)
	if err := h.documentStore.Save(ctx, backdated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	janitor := NewSignatureJanitor(JanitorConfig{
		DocumentStore: h.documentStore,
		Lock:          h.lock,
		SignatureTTL:  time.Hour,
	})
	if n, err := janitor.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("Sweep() = %d, %v, want 1, nil", n, err)
	}

	// The blob survived, so resume lands on stored and the saga can
	// continue with a fresh transaction
	resumed, err := h.ingestion.Resume(ctx, rec.DocumentID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.State != domain.StateStored {
		t.Fatalf("resumed State = %s, want %s", resumed.State, domain.StateStored)
	}
	tx, err := h.ingestion.BuildRegistrationRequest(ctx, rec.DocumentID)
	if err != nil {
		t.Fatalf("BuildRegistrationRequest() error = %v", err)
	}
	done, err := h.ingestion.CompleteRegistration(ctx, rec.DocumentID, h.ledger.SignedRef(tx))
	if err != nil {
		t.Fatalf("CompleteRegistration() error = %v", err)
	}
	if done.State != domain.StateRegistered {
		t.Errorf("State = %s, want %s", done.State, domain.StateRegistered)
	}
}
