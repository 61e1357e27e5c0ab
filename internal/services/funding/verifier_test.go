package funding

import (
	"context"
	"sync"
	"testing"
	"time"

	"peza/internal/models"
	"peza/internal/processor"
	"peza/internal/repositories/repotest"
	"peza/internal/services/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifyOutcome struct {
	res *processor.VerificationResult
	err error
}

// fakeGateway scripts VerifyTransaction answers; the last outcome repeats
// once the script runs out.
type fakeGateway struct {
	mu       sync.Mutex
	outcomes []verifyOutcome
	calls    int
	vaCalls  int

	block   chan struct{}
	started chan struct{}
}

func (f *fakeGateway) InitiateCheckout(ctx context.Context, req processor.CheckoutRequest) (*processor.CheckoutResponse, error) {
	return &processor.CheckoutResponse{
		CheckoutLink: "https://checkout.test/" + req.Reference,
		Reference:    req.Reference,
	}, nil
}

func (f *fakeGateway) CreateVirtualAccount(ctx context.Context, req processor.VirtualAccountRequest) (*processor.VirtualAccountResponse, error) {
	f.mu.Lock()
	f.vaCalls++
	f.mu.Unlock()
	return &processor.VirtualAccountResponse{
		AccountNumber: "9900000001",
		AccountName:   "PEZA CHECKOUT",
		BankName:      "Test Bank",
		Provider:      "flutterwave",
	}, nil
}

func (f *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*processor.VerificationResult, error) {
	f.mu.Lock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	block := f.block
	f.calls++
	i := f.calls - 1
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	outcome := f.outcomes[i]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return outcome.res, outcome.err
}

func testConfig() VerifierConfig {
	return VerifierConfig{
		MaxAttempts:    3,
		Delays:         []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		CallTimeout:    time.Second,
		RetryThreshold: time.Nanosecond,
	}
}

type fixture struct {
	repo     *repotest.Repo
	ledger   ledger.Service
	gateway  *fakeGateway
	verifier *Verifier
	service  Service
	wallet   *models.Wallet
}

func newFixture(t *testing.T, gateway *fakeGateway) *fixture {
	t.Helper()
	repo := repotest.New()
	wallet := &models.Wallet{
		UserID:   1,
		Balance:  0,
		Currency: "NGN",
		Status:   models.WalletStatusActive,
	}
	require.NoError(t, repo.Create(wallet))

	ledgerSvc := ledger.NewService(repo, nil, ledger.LedgerConfig{}, nil, nil)
	verifier := NewVerifier(gateway, ledgerSvc, repo, nil, testConfig())
	return &fixture{
		repo:     repo,
		ledger:   ledgerSvc,
		gateway:  gateway,
		verifier: verifier,
		service:  NewService(repo, ledgerSvc, gateway, verifier, testConfig()),
		wallet:   wallet,
	}
}

func (f *fixture) seedPending(t *testing.T, reference string, amount int64) {
	t.Helper()
	require.NoError(t, f.repo.CreateTransaction(&models.Transaction{
		WalletID:  f.wallet.ID,
		UserID:    f.wallet.UserID,
		Amount:    amount,
		Kind:      models.TransactionKindCredit,
		Category:  models.CategoryFunding,
		Status:    models.TransactionStatusPending,
		Reference: reference,
	}))
}

func TestVerifier_SettlesAfterTransientFailures(t *testing.T) {
	gateway := &fakeGateway{outcomes: []verifyOutcome{
		{err: processor.ErrUnavailable},
		{err: processor.ErrUnavailable},
		{res: &processor.VerificationResult{
			Reference:         "pz-t1",
			ExternalReference: "flw-1",
			Amount:            7500,
			Status:            processor.StatusSuccessful,
		}},
	}}
	f := newFixture(t, gateway)
	f.seedPending(t, "pz-t1", 7500)

	txn, err := f.verifier.Run(context.Background(), "pz-t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "flw-1", txn.ExternalReference)
	assert.Equal(t, 3, gateway.calls)

	wallet, err := f.repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), wallet.Balance)

	// Re-running against an already settled reference credits nothing.
	_, err = f.verifier.Run(context.Background(), "pz-t1")
	require.NoError(t, err)
	wallet, err = f.repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), wallet.Balance)
}

func TestVerifier_DefinitiveFailure(t *testing.T) {
	gateway := &fakeGateway{outcomes: []verifyOutcome{
		{res: &processor.VerificationResult{Reference: "pz-t2", Status: processor.StatusFailed}},
	}}
	f := newFixture(t, gateway)
	f.seedPending(t, "pz-t2", 5000)

	_, err := f.verifier.Run(context.Background(), "pz-t2")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, 1, gateway.calls)

	txn, err := f.repo.GetTransactionByReference("pz-t2")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, txn.Status)

	wallet, err := f.repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)
}

func TestVerifier_ExhaustionFlagsManualRetry(t *testing.T) {
	gateway := &fakeGateway{outcomes: []verifyOutcome{
		{res: &processor.VerificationResult{Reference: "pz-t3", Status: processor.StatusPending}},
	}}
	f := newFixture(t, gateway)
	f.seedPending(t, "pz-t3", 5000)

	_, err := f.verifier.Run(context.Background(), "pz-t3")
	assert.ErrorIs(t, err, ErrVerificationExhausted)
	assert.Equal(t, 3, gateway.calls)

	// The transaction stays pending, flagged for a manual retry, and the
	// balance is untouched.
	txn, err := f.repo.GetTransactionByReference("pz-t3")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.Equal(t, true, txn.Metadata["needs_manual_retry"])

	wallet, err := f.repo.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)

	time.Sleep(time.Millisecond)
	pending, err := f.service.PendingRetries(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pz-t3", pending[0].Reference)
}

func TestVerifier_SingleFlight(t *testing.T) {
	gateway := &fakeGateway{
		outcomes: []verifyOutcome{{res: &processor.VerificationResult{
			Reference: "pz-t4",
			Amount:    5000,
			Status:    processor.StatusSuccessful,
		}}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	f := newFixture(t, gateway)
	f.seedPending(t, "pz-t4", 5000)

	started := gateway.started
	done := make(chan error, 1)
	go func() {
		_, err := f.verifier.Run(context.Background(), "pz-t4")
		done <- err
	}()

	<-started
	_, err := f.verifier.Run(context.Background(), "pz-t4")
	assert.ErrorIs(t, err, ErrVerificationInProgress)

	close(gateway.block)
	require.NoError(t, <-done)
}

func TestStartFunding(t *testing.T) {
	ctx := context.Background()

	t.Run("bank transfer issues a virtual account once", func(t *testing.T) {
		gateway := &fakeGateway{outcomes: []verifyOutcome{{err: processor.ErrUnavailable}}}
		f := newFixture(t, gateway)

		intent, err := f.service.StartFunding(ctx, 1, 10000, processor.MethodBankTransfer)
		require.NoError(t, err)
		require.NotNil(t, intent.VirtualAccount)
		assert.Equal(t, "9900000001", intent.VirtualAccount.AccountNumber)
		assert.NotEmpty(t, intent.Reference)

		txn, err := f.repo.GetTransactionByReference(intent.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusPending, txn.Status)
		assert.Equal(t, int64(10000), txn.Amount)

		// Second funding attempt reuses the existing account.
		_, err = f.service.StartFunding(ctx, 1, 2000, processor.MethodBankTransfer)
		require.NoError(t, err)
		assert.Equal(t, 1, gateway.vaCalls)
	})

	t.Run("checkout returns a payment link and a pending row", func(t *testing.T) {
		gateway := &fakeGateway{outcomes: []verifyOutcome{{err: processor.ErrUnavailable}}}
		f := newFixture(t, gateway)

		intent, err := f.service.StartFunding(ctx, 1, 5000, processor.MethodCheckout)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.test/"+intent.Reference, intent.CheckoutLink)

		txn, err := f.repo.GetTransactionByReference(intent.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusPending, txn.Status)
	})

	t.Run("input validation", func(t *testing.T) {
		gateway := &fakeGateway{outcomes: []verifyOutcome{{err: processor.ErrUnavailable}}}
		f := newFixture(t, gateway)

		_, err := f.service.StartFunding(ctx, 1, 0, processor.MethodCheckout)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = f.service.StartFunding(ctx, 1, 100, "cash")
		assert.ErrorIs(t, err, ErrUnsupportedMethod)

		_, err = f.service.StartFunding(ctx, 99, 100, processor.MethodCheckout)
		assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	})
}
