package funding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"peza/internal/models"
	"peza/internal/processor"
	"peza/internal/repositories"
	"peza/internal/services/ledger"
)

// Verifier is the client-side reconciliation loop for funding transactions
// left pending. It is not a server-side queue: each entry runs a bounded
// number of attempts and then hands the transaction to the manual-retry
// set. Replays are harmless because settlement goes through the ledger's
// idempotency guard.
type Verifier struct {
	processor processor.Client
	ledger    ledger.Service
	repo      repositories.WalletRepository
	metrics   ledger.MetricsCollector
	cfg       VerifierConfig

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewVerifier(
	client processor.Client,
	ledgerSvc ledger.Service,
	repo repositories.WalletRepository,
	metrics ledger.MetricsCollector,
	cfg VerifierConfig,
) *Verifier {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultVerifierConfig()
	}
	if metrics == nil {
		metrics = &ledger.NoopMetricsCollector{}
	}
	return &Verifier{
		processor: client,
		ledger:    ledgerSvc,
		repo:      repo,
		metrics:   metrics,
		cfg:       cfg,
		inflight:  make(map[string]struct{}),
	}
}

// Run drives one verification loop for a reference with a fresh attempt
// budget. At most one loop per reference runs at a time in this process;
// a second caller gets ErrVerificationInProgress instead of a duplicate
// loop.
func (v *Verifier) Run(ctx context.Context, reference string) (*models.Transaction, error) {
	if !v.acquire(reference) {
		return nil, ErrVerificationInProgress
	}
	defer v.release(reference)

	var lastErr error
	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		res, err := v.verifyOnce(ctx, reference)
		switch {
		case err == nil && res.Successful():
			txn, err := v.settle(ctx, reference, res)
			if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
				return nil, err
			}
			v.metrics.RecordVerificationAttempt("success")
			return txn, nil

		case err == nil && res.Status == processor.StatusFailed:
			v.metrics.RecordVerificationAttempt("failed")
			v.markFailed(reference, "payment failed at processor")
			return nil, ErrPaymentFailed

		case err == nil:
			// Still pending at the processor.
			lastErr = fmt.Errorf("payment still pending at processor")
			v.metrics.RecordVerificationAttempt("pending")

		case errors.Is(err, ErrVerificationTimeout),
			errors.Is(err, processor.ErrUnavailable),
			errors.Is(err, processor.ErrNotFound):
			lastErr = err
			v.metrics.RecordVerificationAttempt("error")

		default:
			return nil, err
		}

		if attempt < v.cfg.MaxAttempts {
			if err := v.wait(ctx, v.delay(attempt)); err != nil {
				return nil, err
			}
		}
	}

	v.flagForManualRetry(ctx, reference)
	return nil, fmt.Errorf("%w: %v", ErrVerificationExhausted, lastErr)
}

// verifyOnce performs a single processor call under its own deadline.
func (v *Verifier) verifyOnce(ctx context.Context, reference string) (*processor.VerificationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.cfg.CallTimeout)
	defer cancel()

	res, err := v.processor.VerifyTransaction(callCtx, reference)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, ErrVerificationTimeout
		}
		return nil, err
	}
	return res, nil
}

// settle routes a confirmed payment through the credit processor. The
// pending row carries the wallet; a conflict means someone else settled
// first, which is exactly the outcome we want.
func (v *Verifier) settle(ctx context.Context, reference string, res *processor.VerificationResult) (*models.Transaction, error) {
	pending, err := v.repo.GetTransactionByReference(reference)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, err
	}
	txn, err := v.ledger.Credit(ctx, ledger.CreditRequest{
		WalletID:          pending.WalletID,
		Amount:            res.Amount,
		Category:          models.CategoryFunding,
		Reference:         reference,
		ExternalReference: res.ExternalReference,
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return txn, err
	}
	return txn, err
}

func (v *Verifier) markFailed(reference, reason string) {
	err := v.repo.ExecuteInTransaction(func(r repositories.WalletRepository) error {
		txn, err := r.GetTransactionByReferenceForUpdate(reference)
		if err != nil {
			return err
		}
		if txn.IsTerminal() {
			return nil
		}
		txn.Status = models.TransactionStatusFailed
		if txn.Metadata == nil {
			txn.Metadata = models.JSON{}
		}
		txn.Metadata["failure_reason"] = reason
		return r.UpdateTransaction(txn)
	})
	if err != nil {
		log.Printf("failed to mark %s failed: %v", reference, err)
	}
}

// flagForManualRetry leaves the transaction pending and makes it visible
// in the caller's needs-manual-retry set.
func (v *Verifier) flagForManualRetry(ctx context.Context, reference string) {
	txn, err := v.repo.GetTransactionByReference(reference)
	if err != nil {
		log.Printf("failed to flag %s for manual retry: %v", reference, err)
		return
	}
	if txn.IsTerminal() {
		return
	}
	if err := v.repo.AnnotateTransaction(txn.ID, models.JSON{"needs_manual_retry": true}); err != nil {
		log.Printf("failed to flag %s for manual retry: %v", reference, err)
	}
}

// Launch runs the loop in the background, for the fire-and-forget
// verification kicked off right after a funding request starts.
func (v *Verifier) Launch(reference string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := v.Run(ctx, reference); err != nil && !errors.Is(err, ErrVerificationInProgress) {
			log.Printf("background verification for %s: %v", reference, err)
		}
	}()
}

func (v *Verifier) acquire(reference string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.inflight[reference]; ok {
		return false
	}
	v.inflight[reference] = struct{}{}
	return true
}

func (v *Verifier) release(reference string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.inflight, reference)
}

func (v *Verifier) delay(attempt int) time.Duration {
	if len(v.cfg.Delays) == 0 {
		return time.Second
	}
	if attempt > len(v.cfg.Delays) {
		return v.cfg.Delays[len(v.cfg.Delays)-1]
	}
	return v.cfg.Delays[attempt-1]
}

func (v *Verifier) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
