// Package funding starts wallet funding through the payment processor and
// reconciles transactions the processor confirms asynchronously.
package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peza/internal/models"
	"peza/internal/processor"
	"peza/internal/repositories"
	"peza/internal/services/ledger"

	"github.com/google/uuid"
)

// Service is the funding surface the handlers depend on.
type Service interface {
	StartFunding(ctx context.Context, userID uint, amount int64, method string) (*FundingIntent, error)
	Verify(ctx context.Context, reference string) (*models.Transaction, error)
	PendingRetries(ctx context.Context, userID uint) ([]models.Transaction, error)
}

type service struct {
	repo      repositories.WalletRepository
	ledger    ledger.Service
	processor processor.Client
	verifier  *Verifier
	cfg       VerifierConfig
}

// NewService creates a new funding service
func NewService(
	repo repositories.WalletRepository,
	ledgerSvc ledger.Service,
	client processor.Client,
	verifier *Verifier,
	cfg VerifierConfig,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if ledgerSvc == nil {
		panic("ledger service is required")
	}
	if client == nil {
		panic("processor client is required")
	}
	if verifier == nil {
		panic("verifier is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultVerifierConfig()
	}
	return &service{
		repo:      repo,
		ledger:    ledgerSvc,
		processor: client,
		verifier:  verifier,
		cfg:       cfg,
	}
}

// StartFunding opens a funding attempt: for bank transfers it hands back
// the wallet's virtual account (creating one on first use), for every
// other method a checkout link. Both paths record a pending transaction
// under a fresh reference before anything is returned.
func (s *service) StartFunding(ctx context.Context, userID uint, amount int64, method string) (*FundingIntent, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.ledger.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive() {
		return nil, ledger.ErrWalletInactive
	}

	reference := NewReference()

	switch method {
	case processor.MethodBankTransfer:
		account, err := s.virtualAccountFor(ctx, wallet, reference)
		if err != nil {
			return nil, err
		}
		txn, err := s.createPending(wallet, amount, reference, "Wallet funding via bank transfer")
		if err != nil {
			return nil, err
		}
		return &FundingIntent{
			Reference:      reference,
			TransactionID:  txn.ID,
			PaymentMethod:  method,
			VirtualAccount: account,
		}, nil

	case processor.MethodCard, processor.MethodCheckout:
		checkout, err := s.processor.InitiateCheckout(ctx, processor.CheckoutRequest{
			Amount:     amount,
			Currency:   wallet.Currency,
			Reference:  reference,
			CustomerID: wallet.UserID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initiate checkout: %w", err)
		}
		txn, err := s.createPending(wallet, amount, reference, "Wallet funding via checkout")
		if err != nil {
			return nil, err
		}
		// First reconciliation pass starts right away; later passes are
		// client-driven through Verify.
		s.verifier.Launch(reference)
		return &FundingIntent{
			Reference:     reference,
			TransactionID: txn.ID,
			PaymentMethod: method,
			CheckoutLink:  checkout.CheckoutLink,
		}, nil

	default:
		return nil, ErrUnsupportedMethod
	}
}

// Verify re-enters the reconciliation loop with a fresh attempt budget.
// Safe to call any number of times for the same reference.
func (s *service) Verify(ctx context.Context, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, ledger.ErrInvalidReference
	}
	return s.verifier.Run(ctx, reference)
}

// PendingRetries lists funding transactions still pending past the retry
// threshold, the caller-visible needs-manual-retry set.
func (s *service) PendingRetries(ctx context.Context, userID uint) ([]models.Transaction, error) {
	cutoff := time.Now().Add(-s.cfg.RetryThreshold)
	txs, err := s.repo.GetPendingRetryable(ctx, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

func (s *service) virtualAccountFor(ctx context.Context, wallet *models.Wallet, reference string) (*models.VirtualAccount, error) {
	account, err := s.repo.GetVirtualAccountByWalletID(wallet.ID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repositories.ErrVirtualAccountNotFound) {
		return nil, fmt.Errorf("failed to get virtual account: %w", err)
	}

	created, err := s.processor.CreateVirtualAccount(ctx, processor.VirtualAccountRequest{
		Currency:   wallet.Currency,
		CustomerID: wallet.UserID,
		Reference:  reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual account: %w", err)
	}

	account = &models.VirtualAccount{
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		AccountNumber: created.AccountNumber,
		AccountName:   created.AccountName,
		BankName:      created.BankName,
		Provider:      created.Provider,
		Active:        true,
	}
	if err := s.repo.CreateVirtualAccount(account); err != nil {
		return nil, fmt.Errorf("failed to save virtual account: %w", err)
	}
	return account, nil
}

func (s *service) createPending(wallet *models.Wallet, amount int64, reference, description string) (*models.Transaction, error) {
	txn := &models.Transaction{
		WalletID:    wallet.ID,
		UserID:      wallet.UserID,
		Amount:      amount,
		Kind:        models.TransactionKindCredit,
		Category:    models.CategoryFunding,
		Status:      models.TransactionStatusPending,
		Reference:   reference,
		Description: description,
	}
	if err := s.repo.CreateTransaction(txn); err != nil {
		return nil, fmt.Errorf("failed to record funding transaction: %w", err)
	}
	return txn, nil
}

// NewReference mints a globally unique funding reference.
func NewReference() string {
	return "pz-" + uuid.NewString()
}
