package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

type pendingTx struct {
	tx    *domain.UnsignedTransaction
	owner string
	seq   int
}

// MockLedger is an in-memory LedgerClient for testing. It issues one
// signed reference per built transaction ("signed:" + tx bytes) and
// enforces single-use references like a real ledger.
type MockLedger struct {
	mu      sync.Mutex
	seq     int
	pending map[string]pendingTx            // keyed by signed ref
	records map[string]*domain.LedgerRecord // keyed by object ID

	// RejectNext makes the next SubmitSigned fail with ErrLedgerRejected.
	RejectNext bool
}

// NewMockLedger creates a new MockLedger
func NewMockLedger() *MockLedger {
	return &MockLedger{
		pending: make(map[string]pendingTx),
		records: make(map[string]*domain.LedgerRecord),
	}
}

// SignedRef returns the reference an external signer would produce for
// the unsigned transaction.
func (m *MockLedger) SignedRef(tx *domain.UnsignedTransaction) string {
	return "signed:" + tx.TxBytes
}

func (m *MockLedger) BuildRegisterTx(ctx context.Context, owner, name, blobID string, isPublic bool) (*domain.UnsignedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	tx := &domain.UnsignedTransaction{
		Target:   "0xmock::registry::register_document",
		TxBytes:  fmt.Sprintf("tx-%d", m.seq),
		Name:     name,
		BlobID:   blobID,
		IsPublic: isPublic,
		BuiltAt:  time.Now(),
	}
	m.pending["signed:"+tx.TxBytes] = pendingTx{tx: tx, owner: owner, seq: m.seq}
	return tx, nil
}

func (m *MockLedger) SubmitSigned(ctx context.Context, signedTxRef string) (*domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectNext {
		m.RejectNext = false
		return nil, domain.ErrLedgerRejected
	}
	p, ok := m.pending[signedTxRef]
	if !ok {
		// Unknown or already-consumed reference
		return nil, domain.ErrLedgerRejected
	}
	delete(m.pending, signedTxRef)

	rec := &domain.LedgerRecord{
		ObjectID:   fmt.Sprintf("0xobj-%d", p.seq),
		Name:       p.tx.Name,
		Owner:      p.owner,
		ContentID:  p.tx.BlobID,
		UploadedAt: time.Now().Unix(),
		IsPublic:   p.tx.IsPublic,
	}
	m.records[rec.ObjectID] = rec
	return rec, nil
}

func (m *MockLedger) QueryOwned(ctx context.Context, owner string) ([]*domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LedgerRecord
	for _, rec := range m.records {
		if rec.Owner == owner {
			rc := *rec
			out = append(out, &rc)
		}
	}
	return out, nil
}

func (m *MockLedger) GetRecord(ctx context.Context, objectID string) (*domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rc := *rec
	return &rc, nil
}

func (m *MockLedger) UpdateVisibility(ctx context.Context, objectID, owner string, isPublic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[objectID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Owner != owner {
		return domain.ErrAccessDenied
	}
	rec.IsPublic = isPublic
	return nil
}

func (m *MockLedger) Transfer(ctx context.Context, objectID, owner, newOwner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[objectID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Owner != owner {
		return domain.ErrAccessDenied
	}
	rec.Owner = newOwner
	return nil
}
