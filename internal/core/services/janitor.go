package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

const (
	defaultSignatureTTL  = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
	janitorLockName      = "janitor:signatures"
	janitorLockTTL       = 2 * time.Minute
)

// SignatureJanitor fails documents stuck in awaiting_signature past a
// deadline. Unsigned transactions go stale; a document whose signer
// never came back should not wait forever. The sweep is lock-guarded so
// only one instance runs it at a time.
type SignatureJanitor struct {
	documentStore driven.DocumentStore
	lock          driven.DistributedLock
	logger        *slog.Logger

	signatureTTL  time.Duration
	sweepInterval time.Duration
}

// JanitorConfig holds dependencies for the signature janitor.
type JanitorConfig struct {
	DocumentStore driven.DocumentStore
	Lock          driven.DistributedLock
	Logger        *slog.Logger

	// SignatureTTL is how long a document may sit in awaiting_signature
	// before it is failed.
	SignatureTTL time.Duration
	// SweepInterval is the pause between sweeps in Run.
	SweepInterval time.Duration
}

// NewSignatureJanitor creates a new SignatureJanitor.
func NewSignatureJanitor(cfg JanitorConfig) *SignatureJanitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = defaultSignatureTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &SignatureJanitor{
		documentStore: cfg.DocumentStore,
		lock:          cfg.Lock,
		logger:        logger,
		signatureTTL:  cfg.SignatureTTL,
		sweepInterval: cfg.SweepInterval,
	}
}

// Run sweeps periodically until the context is cancelled.
func (j *SignatureJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()

	j.logger.Info("signature janitor started",
		"signature_ttl", j.signatureTTL,
		"sweep_interval", j.sweepInterval,
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("signature janitor stopped")
			return
		case <-ticker.C:
			if n, err := j.Sweep(ctx); err != nil {
				j.logger.Error("signature sweep failed", "error", err)
			} else if n > 0 {
				j.logger.Info("signature sweep completed", "expired", n)
			}
		}
	}
}

// Sweep fails every document that has waited for a signature longer
// than the TTL. Returns the number of documents expired. A contended
// lock means another instance is sweeping; that is not an error.
func (j *SignatureJanitor) Sweep(ctx context.Context) (int, error) {
	acquired, err := j.lock.Acquire(ctx, janitorLockName, janitorLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire janitor lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if err := j.lock.Release(context.WithoutCancel(ctx), janitorLockName); err != nil {
			j.logger.Warn("failed to release janitor lock", "error", err)
		}
	}()

	cutoff := time.Now().Add(-j.signatureTTL)
	stale, err := j.documentStore.ListByStateBefore(ctx, domain.StateAwaitingSignature, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale documents: %w", err)
	}

	expired := 0
	for _, rec := range stale {
		rec.State = domain.StateFailed
		rec.FailureReason = fmt.Sprintf("signature not received within %s", j.signatureTTL)
		rec.UpdatedAt = time.Now()
		if err := j.documentStore.Save(ctx, rec); err != nil {
			j.logger.Error("failed to expire document", "document_id", rec.DocumentID, "error", err)
			continue
		}
		expired++
		j.logger.Warn("signature wait expired", "document_id", rec.DocumentID)
	}
	return expired, nil
}
