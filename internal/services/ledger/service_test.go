package ledger

import (
	"context"
	"sync"
	"testing"

	"peza/internal/models"
	"peza/internal/repositories"
	"peza/internal/repositories/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, *repotest.Repo) {
	t.Helper()
	repo := repotest.New()
	return NewService(repo, nil, LedgerConfig{}, nil, nil), repo
}

func seedWallet(t *testing.T, repo *repotest.Repo, userID uint, balance int64) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{
		UserID:   userID,
		Balance:  balance,
		Currency: "NGN",
		Status:   models.WalletStatusActive,
	}
	require.NoError(t, repo.Create(wallet))
	return wallet
}

func TestDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("successful debit records balance snapshots", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 10000)

		txn, err := svc.Debit(ctx, DebitRequest{
			UserID:    1,
			Amount:    3000,
			Category:  models.CategoryPurchase,
			Reference: "ord-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
		assert.Equal(t, int64(10000), txn.BalanceBefore)
		assert.Equal(t, int64(7000), txn.BalanceAfter)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7000), wallet.Balance)
	})

	t.Run("replayed reference does not move money twice", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 10000)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 3000, Reference: "ord-1"})
		require.NoError(t, err)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 3000, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7000), wallet.Balance)

		txn, err := repo.GetTransactionByReference("ord-1")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	})

	t.Run("debit of the full balance leaves zero", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 5000)

		txn, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 5000, Reference: "ord-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), txn.BalanceAfter)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.Balance)
	})

	t.Run("insufficient balance leaves wallet untouched and consumes the reference", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 5000)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 6000, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), wallet.Balance)

		// The failed attempt keeps an audit row under the reference.
		txn, err := repo.GetTransactionByReference("ord-1")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, txn.Status)
		assert.Equal(t, int64(5000), txn.BalanceBefore)
		assert.Equal(t, int64(5000), txn.BalanceAfter)

		// Retrying under the same reference is a conflict, not a new attempt.
		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 1000, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
	})

	t.Run("validation failures", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 5000)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 0, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: -1, Reference: "ord-2"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 100})
		assert.ErrorIs(t, err, ErrInvalidReference)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 99, Amount: 100, Reference: "ord-3"})
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("inactive wallet rejects debits", func(t *testing.T) {
		svc, repo := newTestService(t)
		wallet := seedWallet(t, repo, 1, 5000)
		require.NoError(t, repo.UpdateStatus(wallet.ID, models.WalletStatusFrozen, "compliance hold"))

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 100, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrWalletInactive)
	})

	t.Run("per transaction limit", func(t *testing.T) {
		repo := repotest.New()
		wallet := &models.Wallet{
			UserID:               1,
			Balance:              100000,
			Currency:             "NGN",
			Status:               models.WalletStatusActive,
			MaxTransactionAmount: 5000,
		}
		require.NoError(t, repo.Create(wallet))
		svc := NewService(repo, nil, LedgerConfig{}, nil, nil)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 6000, Reference: "ord-1"})
		assert.ErrorIs(t, err, ErrLimitExceeded)
	})

	t.Run("daily limit counts completed debits", func(t *testing.T) {
		repo := repotest.New()
		wallet := &models.Wallet{
			UserID:     1,
			Balance:    100000,
			Currency:   "NGN",
			Status:     models.WalletStatusActive,
			DailyLimit: 5000,
		}
		require.NoError(t, repo.Create(wallet))
		svc := NewService(repo, nil, LedgerConfig{}, nil, nil)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 4000, Reference: "ord-1"})
		require.NoError(t, err)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 2000, Reference: "ord-2"})
		assert.ErrorIs(t, err, ErrDailyLimitExceeded)

		_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 1000, Reference: "ord-3"})
		assert.NoError(t, err)
	})
}

func TestDebit_Concurrent(t *testing.T) {
	const (
		attempts = 8
		amount   = int64(1000)
	)
	svc, repo := newTestService(t)
	// Enough for all attempts but one.
	seedWallet(t, repo, 1, amount*(attempts-1))

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Debit(context.Background(), DebitRequest{
				UserID:    1,
				Amount:    amount,
				Reference: "ord-" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrInsufficientBalance):
			insufficient++
		}
	}
	assert.Equal(t, attempts-1, succeeded)
	assert.Equal(t, 1, insufficient)

	wallet, err := repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)
}

func TestCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh reference credits the wallet", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 0)

		txn, err := svc.Credit(ctx, CreditRequest{
			UserID:    1,
			Amount:    10000,
			Category:  models.CategoryFunding,
			Reference: "R1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
		assert.Equal(t, int64(0), txn.BalanceBefore)
		assert.Equal(t, int64(10000), txn.BalanceAfter)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.Balance)
	})

	t.Run("replayed reference is a no-op that returns the original row", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 0)

		first, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 10000, Reference: "R1"})
		require.NoError(t, err)

		replay, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 10000, Reference: "R1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		require.NotNil(t, replay)
		assert.Equal(t, first.ID, replay.ID)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.Balance)
	})

	t.Run("pending funding row is completed in place", func(t *testing.T) {
		svc, repo := newTestService(t)
		wallet := seedWallet(t, repo, 1, 0)

		pending := &models.Transaction{
			WalletID:  wallet.ID,
			UserID:    1,
			Amount:    7500,
			Kind:      models.TransactionKindCredit,
			Category:  models.CategoryFunding,
			Status:    models.TransactionStatusPending,
			Reference: "pz-1",
		}
		require.NoError(t, repo.CreateTransaction(pending))

		txn, err := svc.Credit(ctx, CreditRequest{
			UserID:            1,
			Amount:            7500,
			Reference:         "pz-1",
			ExternalReference: "flw-42",
		})
		require.NoError(t, err)
		assert.Equal(t, pending.ID, txn.ID)
		assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
		assert.Equal(t, "flw-42", txn.ExternalReference)

		fresh, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7500), fresh.Balance)

		// A second confirmation finds the terminal row.
		_, err = svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 7500, Reference: "pz-1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		fresh, err = repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7500), fresh.Balance)
	})

	t.Run("reference alone resolves through the pending row", func(t *testing.T) {
		svc, repo := newTestService(t)
		wallet := seedWallet(t, repo, 1, 0)

		pending := &models.Transaction{
			WalletID:  wallet.ID,
			UserID:    1,
			Amount:    10000,
			Kind:      models.TransactionKindCredit,
			Category:  models.CategoryFunding,
			Status:    models.TransactionStatusPending,
			Reference: "pz-2",
		}
		require.NoError(t, repo.CreateTransaction(pending))

		// A processor confirmation carries the reference and nothing else.
		txn, err := svc.Credit(ctx, CreditRequest{
			Amount:    10000,
			Reference: "pz-2",
		})
		require.NoError(t, err)
		assert.Equal(t, pending.ID, txn.ID)
		assert.Equal(t, models.TransactionStatusCompleted, txn.Status)

		fresh, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), fresh.Balance)
	})

	t.Run("wallet resolves by virtual account number", func(t *testing.T) {
		svc, repo := newTestService(t)
		wallet := seedWallet(t, repo, 1, 0)
		require.NoError(t, repo.CreateVirtualAccount(&models.VirtualAccount{
			WalletID:      wallet.ID,
			UserID:        1,
			AccountNumber: "0123456789",
			Active:        true,
		}))

		txn, err := svc.Credit(ctx, CreditRequest{
			AccountNumber: "0123456789",
			Amount:        2000,
			Reference:     "va-9",
		})
		require.NoError(t, err)
		assert.Equal(t, wallet.ID, txn.WalletID)
	})

	t.Run("unresolvable target", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Credit(ctx, CreditRequest{Amount: 100, Reference: "R1"})
		assert.ErrorIs(t, err, ErrWalletNotFound)

		_, err = svc.Credit(ctx, CreditRequest{AccountNumber: "000", Amount: 100, Reference: "R2"})
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("invalid amount on a fresh reference", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 0)

		_, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 0, Reference: "R1"})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestReverse(t *testing.T) {
	ctx := context.Background()

	t.Run("completed debit gets a compensating credit", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 10000)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 2000, Reference: "R3"})
		require.NoError(t, err)

		comp, err := svc.Reverse(ctx, ReversalRequest{Reference: "R3", Reason: "transfer failed"})
		require.NoError(t, err)
		require.NotNil(t, comp)
		assert.Equal(t, ReversalReferencePrefix+"R3", comp.Reference)
		assert.Equal(t, models.TransactionKindCredit, comp.Kind)
		assert.Equal(t, models.CategoryReversal, comp.Category)
		assert.Equal(t, int64(2000), comp.Amount)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.Balance)

		// The original row stays, marked failed with the reason attached.
		orig, err := repo.GetTransactionByReference("R3")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, orig.Status)
		assert.Equal(t, "transfer failed", orig.Metadata["failure_reason"])
	})

	t.Run("replayed failure event collapses onto one reversal", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 10000)

		_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 2000, Reference: "R3"})
		require.NoError(t, err)
		_, err = svc.Reverse(ctx, ReversalRequest{Reference: "R3", Reason: "transfer failed"})
		require.NoError(t, err)

		_, err = svc.Reverse(ctx, ReversalRequest{Reference: "R3", Reason: "transfer failed"})
		assert.ErrorIs(t, err, ErrDuplicateReference)

		wallet, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.Balance)
	})

	t.Run("pending debit is marked failed without a compensating credit", func(t *testing.T) {
		svc, repo := newTestService(t)
		wallet := seedWallet(t, repo, 1, 10000)

		pending := &models.Transaction{
			WalletID:  wallet.ID,
			UserID:    1,
			Amount:    2000,
			Kind:      models.TransactionKindDebit,
			Status:    models.TransactionStatusPending,
			Reference: "R4",
		}
		require.NoError(t, repo.CreateTransaction(pending))

		comp, err := svc.Reverse(ctx, ReversalRequest{Reference: "R4", Reason: "transfer failed"})
		require.NoError(t, err)
		assert.Nil(t, comp)

		orig, err := repo.GetTransactionByReference("R4")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, orig.Status)

		_, err = repo.GetTransactionByReference(ReversalReferencePrefix + "R4")
		assert.ErrorIs(t, err, repositories.ErrTransactionNotFound)

		fresh, err := repo.GetByUserID(1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), fresh.Balance)
	})

	t.Run("only debits can be reversed", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedWallet(t, repo, 1, 0)

		_, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 1000, Reference: "R5"})
		require.NoError(t, err)

		_, err = svc.Reverse(ctx, ReversalRequest{Reference: "R5", Reason: "bad event"})
		assert.ErrorIs(t, err, ErrInvalidReversal)
	})

	t.Run("unknown reference", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Reverse(ctx, ReversalRequest{Reference: "nope", Reason: "x"})
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})
}

func TestBalanceSnapshotsChain(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	seedWallet(t, repo, 1, 0)

	fund, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: 10000, Reference: "f-1"})
	require.NoError(t, err)
	spend1, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 3000, Reference: "s-1"})
	require.NoError(t, err)
	spend2, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 2000, Reference: "s-2"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), fund.BalanceBefore)
	assert.Equal(t, int64(10000), fund.BalanceAfter)
	assert.Equal(t, fund.BalanceAfter, spend1.BalanceBefore)
	assert.Equal(t, int64(7000), spend1.BalanceAfter)
	assert.Equal(t, spend1.BalanceAfter, spend2.BalanceBefore)
	assert.Equal(t, int64(5000), spend2.BalanceAfter)

	wallet, err := repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.Balance)
}

type fakeCache struct {
	mu           sync.Mutex
	invalidated  []uint
	cachedWallet *models.Wallet
}

func (c *fakeCache) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedWallet != nil && c.cachedWallet.UserID == userID {
		return c.cachedWallet, nil
	}
	return nil, repositories.ErrWalletNotFound
}

func (c *fakeCache) CacheWallet(ctx context.Context, wallet *models.Wallet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedWallet = wallet
	return nil
}

func (c *fakeCache) InvalidateWallet(ctx context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	c.cachedWallet = nil
	return nil
}

func TestCacheInvalidatedAfterCommit(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New()
	seedWallet(t, repo, 1, 10000)
	cache := &fakeCache{}
	svc := NewService(repo, cache, LedgerConfig{}, nil, nil)

	// Warm the cache through the read path.
	_, err := svc.GetWallet(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, cache.cachedWallet)

	_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: 1000, Reference: "ord-1"})
	require.NoError(t, err)

	assert.Equal(t, []uint{1}, cache.invalidated)
	assert.Nil(t, cache.cachedWallet)
}
