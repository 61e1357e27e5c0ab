// Package ledger applies credits and debits to wallet balances exactly
// once. Every balance mutation and the Transaction row recording it commit
// in one storage transaction; the unique reference index doubles as the
// idempotency guard, so replays collapse onto the first row instead of
// moving money twice.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"peza/internal/models"
	"peza/internal/repositories"
)

type service struct {
	repo    repositories.WalletRepository
	cache   WalletCache
	config  LedgerConfig
	metrics MetricsCollector
	events  EventEmitter
}

// NewService creates a new ledger service
func NewService(
	repo repositories.WalletRepository,
	cache WalletCache,
	config LedgerConfig,
	metrics MetricsCollector,
	events EventEmitter,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultCurrency
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	return &service{
		repo:    repo,
		cache:   cache,
		config:  config,
		metrics: metrics,
		events:  events,
	}
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if s.cache != nil {
		if wallet, err := s.cache.GetWallet(ctx, userID); err == nil {
			return wallet, nil
		}
	}

	wallet, err := s.repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.CacheWallet(ctx, wallet); err != nil {
			log.Printf("failed to cache wallet for user %d: %v", userID, err)
		}
	}
	return wallet, nil
}

func (s *service) CreateWallet(ctx context.Context, userID uint, currency string) (*models.Wallet, error) {
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	wallet := &models.Wallet{
		UserID:   userID,
		Balance:  0,
		Currency: currency,
		Status:   models.WalletStatusActive,
	}
	if err := s.repo.Create(wallet); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return wallet, nil
}

// Debit spends from a wallet. The reference row insert, the conditional
// balance decrement and the snapshot update are one atomic unit of work;
// a replayed reference or an under-funded wallet leaves the balance
// untouched.
func (s *service) Debit(ctx context.Context, req DebitRequest) (*models.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Reference == "" {
		return nil, ErrInvalidReference
	}

	wallet, err := s.repo.GetByUserID(req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if !wallet.IsActive() {
		return nil, ErrWalletInactive
	}
	if wallet.MaxTransactionAmount > 0 && req.Amount > wallet.MaxTransactionAmount {
		return nil, ErrLimitExceeded
	}
	if err := s.checkDailyLimit(ctx, wallet, req.Amount); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		WalletID:    wallet.ID,
		UserID:      wallet.UserID,
		Amount:      req.Amount,
		Kind:        models.TransactionKindDebit,
		Category:    req.Category,
		Status:      models.TransactionStatusPending,
		Reference:   req.Reference,
		Description: req.Description,
		Metadata:    req.Metadata,
	}

	err = s.repo.ExecuteInTransaction(func(r repositories.WalletRepository) error {
		if err := r.CreateTransaction(txn); err != nil {
			return err
		}
		ok, err := r.DebitBalance(wallet.ID, req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		fresh, err := r.GetByID(wallet.ID)
		if err != nil {
			return err
		}
		txn.Status = models.TransactionStatusCompleted
		txn.BalanceAfter = fresh.Balance
		txn.BalanceBefore = fresh.Balance + req.Amount
		return r.UpdateTransaction(txn)
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateReference):
			s.metrics.RecordConflict("debit")
			return nil, ErrDuplicateReference
		case errors.Is(err, ErrInsufficientBalance):
			s.metrics.RecordError("debit", "insufficient_balance")
			s.recordFailedDebit(wallet, req, "insufficient balance")
			return nil, ErrInsufficientBalance
		default:
			s.metrics.RecordError("debit", "storage")
			return nil, fmt.Errorf("debit failed: %w", err)
		}
	}

	s.afterCommit(ctx, "debit", txn)
	return txn, nil
}

// Credit funds a wallet. The same reference may arrive from a webhook, a
// verification attempt and a client retry at once; whichever lands first
// wins and the rest observe a conflict. A pending funding row is completed
// in place, exactly once.
func (s *service) Credit(ctx context.Context, req CreditRequest) (*models.Transaction, error) {
	if req.Reference == "" {
		return nil, ErrInvalidReference
	}

	wallet, err := s.resolveWallet(req)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive() {
		return nil, ErrWalletInactive
	}

	var txn *models.Transaction
	err = s.repo.ExecuteInTransaction(func(r repositories.WalletRepository) error {
		existing, err := r.GetTransactionByReferenceForUpdate(req.Reference)
		if err == nil {
			if existing.IsTerminal() {
				txn = existing
				return ErrDuplicateReference
			}
			return s.completePending(r, existing, req, &txn)
		}
		if !errors.Is(err, repositories.ErrTransactionNotFound) {
			return err
		}

		if req.Amount <= 0 {
			return ErrInvalidAmount
		}
		txn = &models.Transaction{
			WalletID:          wallet.ID,
			UserID:            wallet.UserID,
			Amount:            req.Amount,
			Kind:              models.TransactionKindCredit,
			Category:          req.Category,
			Status:            models.TransactionStatusPending,
			Reference:         req.Reference,
			ExternalReference: req.ExternalReference,
			Description:       req.Description,
			Metadata:          req.Metadata,
		}
		if err := r.CreateTransaction(txn); err != nil {
			return err
		}
		if err := r.CreditBalance(wallet.ID, req.Amount); err != nil {
			return err
		}
		fresh, err := r.GetByID(wallet.ID)
		if err != nil {
			return err
		}
		txn.Status = models.TransactionStatusCompleted
		txn.BalanceAfter = fresh.Balance
		txn.BalanceBefore = fresh.Balance - req.Amount
		return r.UpdateTransaction(txn)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateReference) || errors.Is(err, ErrDuplicateReference) {
			s.metrics.RecordConflict("credit")
			return txn, ErrDuplicateReference
		}
		if errors.Is(err, ErrInvalidAmount) {
			return nil, ErrInvalidAmount
		}
		s.metrics.RecordError("credit", "storage")
		return nil, fmt.Errorf("credit failed: %w", err)
	}

	s.afterCommit(ctx, "credit", txn)
	return txn, nil
}

// completePending finishes a funding transaction created at
// start-funding time. The status-conditional path runs under the row lock
// taken by the caller, so a racing replay sees the terminal state instead.
func (s *service) completePending(r repositories.WalletRepository, existing *models.Transaction, req CreditRequest, out **models.Transaction) error {
	if err := r.CreditBalance(existing.WalletID, existing.Amount); err != nil {
		return err
	}
	fresh, err := r.GetByID(existing.WalletID)
	if err != nil {
		return err
	}
	existing.Status = models.TransactionStatusCompleted
	existing.BalanceAfter = fresh.Balance
	existing.BalanceBefore = fresh.Balance - existing.Amount
	if req.ExternalReference != "" {
		existing.ExternalReference = req.ExternalReference
	}
	*out = existing
	return r.UpdateTransaction(existing)
}

// Reverse compensates a debit the processor reported as failed. The
// original row is marked failed, never rewritten; the restoration is a new
// credit row whose reference derives from the original, so replayed
// failure events collapse onto one reversal.
func (s *service) Reverse(ctx context.Context, req ReversalRequest) (*models.Transaction, error) {
	if req.Reference == "" {
		return nil, ErrInvalidReference
	}

	var comp *models.Transaction
	var userID uint
	err := s.repo.ExecuteInTransaction(func(r repositories.WalletRepository) error {
		orig, err := r.GetTransactionByReferenceForUpdate(req.Reference)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if orig.Kind != models.TransactionKindDebit {
			return ErrInvalidReversal
		}
		if orig.Status == models.TransactionStatusFailed || orig.Status == models.TransactionStatusCancelled {
			return ErrDuplicateReference
		}
		userID = orig.UserID

		moneyMoved := orig.Status == models.TransactionStatusCompleted

		orig.Status = models.TransactionStatusFailed
		if orig.Metadata == nil {
			orig.Metadata = models.JSON{}
		}
		orig.Metadata["failure_reason"] = req.Reason
		if err := r.UpdateTransaction(orig); err != nil {
			return err
		}

		if !moneyMoved {
			return nil
		}

		comp = &models.Transaction{
			WalletID:          orig.WalletID,
			UserID:            orig.UserID,
			Amount:            orig.Amount,
			Kind:              models.TransactionKindCredit,
			Category:          models.CategoryReversal,
			Status:            models.TransactionStatusPending,
			Reference:         ReversalReferencePrefix + orig.Reference,
			ExternalReference: req.ExternalReference,
			Description:       "Reversal of " + orig.Reference,
			Metadata: models.JSON{
				"original_reference": orig.Reference,
				"reason":             req.Reason,
			},
		}
		if err := r.CreateTransaction(comp); err != nil {
			return err
		}
		if err := r.CreditBalance(orig.WalletID, orig.Amount); err != nil {
			return err
		}
		fresh, err := r.GetByID(orig.WalletID)
		if err != nil {
			return err
		}
		comp.Status = models.TransactionStatusCompleted
		comp.BalanceAfter = fresh.Balance
		comp.BalanceBefore = fresh.Balance - orig.Amount
		return r.UpdateTransaction(comp)
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateReference), errors.Is(err, ErrDuplicateReference):
			s.metrics.RecordConflict("reversal")
			return nil, ErrDuplicateReference
		case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrInvalidReversal):
			return nil, err
		default:
			s.metrics.RecordError("reversal", "storage")
			return nil, fmt.Errorf("reversal failed: %w", err)
		}
	}

	if comp != nil {
		s.afterCommit(ctx, "reversal", comp)
		return comp, nil
	}
	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
			log.Printf("failed to invalidate wallet cache for user %d: %v", userID, err)
		}
	}
	return nil, nil
}

func (s *service) RecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	txs, err := s.repo.GetRecentTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}

// Helper methods

func (s *service) resolveWallet(req CreditRequest) (*models.Wallet, error) {
	switch {
	case req.WalletID != 0:
		wallet, err := s.repo.GetByID(req.WalletID)
		return s.mapWalletErr(wallet, err)
	case req.UserID != 0:
		wallet, err := s.repo.GetByUserID(req.UserID)
		return s.mapWalletErr(wallet, err)
	case req.AccountNumber != "":
		account, err := s.repo.GetVirtualAccountByNumber(req.AccountNumber)
		if err != nil {
			if errors.Is(err, repositories.ErrVirtualAccountNotFound) {
				return nil, ErrWalletNotFound
			}
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
		wallet, err := s.repo.GetByID(account.WalletID)
		return s.mapWalletErr(wallet, err)
	default:
		// No wallet key at all: a confirmation for a funding attempt we
		// already recorded. The pending row carries the wallet.
		txn, err := s.repo.GetTransactionByReference(req.Reference)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				return nil, ErrWalletNotFound
			}
			return nil, fmt.Errorf("failed to resolve wallet: %w", err)
		}
		wallet, err := s.repo.GetByID(txn.WalletID)
		return s.mapWalletErr(wallet, err)
	}
}

func (s *service) mapWalletErr(wallet *models.Wallet, err error) (*models.Wallet, error) {
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

func (s *service) checkDailyLimit(ctx context.Context, wallet *models.Wallet, amount int64) error {
	if wallet.DailyLimit <= 0 {
		return nil
	}
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	total, err := s.repo.GetDailyDebitTotal(ctx, wallet.ID, startOfDay, endOfDay)
	if err != nil {
		return fmt.Errorf("failed to check daily limit: %w", err)
	}
	if total+amount > wallet.DailyLimit {
		return ErrDailyLimitExceeded
	}
	return nil
}

// recordFailedDebit keeps an audit row for a debit that failed its balance
// check. The atomic scope already rolled back, so this runs in its own
// scope; a duplicate here means a concurrent attempt on the same reference
// already recorded the outcome.
func (s *service) recordFailedDebit(wallet *models.Wallet, req DebitRequest, reason string) {
	failed := &models.Transaction{
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		Amount:        req.Amount,
		Kind:          models.TransactionKindDebit,
		Category:      req.Category,
		Status:        models.TransactionStatusFailed,
		Reference:     req.Reference,
		Description:   req.Description,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance,
		Metadata:      models.JSON{"failure_reason": reason},
	}
	if err := s.repo.CreateTransaction(failed); err != nil && !errors.Is(err, repositories.ErrDuplicateReference) {
		log.Printf("failed to record failed debit %s: %v", req.Reference, err)
	}
}

func (s *service) afterCommit(ctx context.Context, op string, txn *models.Transaction) {
	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, txn.UserID); err != nil {
			log.Printf("failed to invalidate wallet cache for user %d: %v", txn.UserID, err)
		}
	}
	s.metrics.RecordTransaction(txn.Kind, txn.Amount)
	if s.events != nil {
		s.events.Emit(ctx, Event{Type: op, UserID: txn.UserID, Transaction: txn})
	}
}
