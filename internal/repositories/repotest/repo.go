// Package repotest provides an in-memory WalletRepository for
// service-level tests. It enforces the same guarantees as the Postgres
// implementation: a unique reference index, compare-and-swap debits and
// units of work that roll back on error.
package repotest

import (
	"context"
	"sync"
	"time"

	"peza/internal/models"
	"peza/internal/repositories"
)

// Repo is a thread-safe in-memory repository. Units of work serialize on
// one mutex, which gives them the isolation the real implementation gets
// from row locks.
type Repo struct {
	mu sync.Mutex
	st *state
}

func New() *Repo {
	return &Repo{st: newState()}
}

func (r *Repo) Create(wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createWallet(wallet)
}

func (r *Repo) GetByID(id uint) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.walletByID(id)
}

func (r *Repo) GetByUserID(userID uint) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.walletByUserID(userID)
}

func (r *Repo) Update(wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.updateWallet(wallet)
}

func (r *Repo) UpdateStatus(walletID uint, status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.updateStatus(walletID, status, reason)
}

func (r *Repo) DebitBalance(walletID uint, amount int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.debitBalance(walletID, amount)
}

func (r *Repo) CreditBalance(walletID uint, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.creditBalance(walletID, amount)
}

func (r *Repo) CreateTransaction(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createTxn(tx)
}

func (r *Repo) UpdateTransaction(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.updateTxn(tx)
}

func (r *Repo) GetTransactionByReference(reference string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.txnByRef(reference)
}

func (r *Repo) GetTransactionByReferenceForUpdate(reference string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.txnByRef(reference)
}

func (r *Repo) AnnotateTransaction(id uint, metadata models.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.annotateTxn(id, metadata)
}

func (r *Repo) GetRecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.recentTxns(userID, limit), nil
}

func (r *Repo) GetPendingRetryable(ctx context.Context, userID uint, olderThan time.Time) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.pendingRetryable(userID, olderThan), nil
}

func (r *Repo) GetDailyDebitTotal(ctx context.Context, walletID uint, start, end time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.dailyDebitTotal(walletID, start, end), nil
}

func (r *Repo) CreateVirtualAccount(account *models.VirtualAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createAccount(account)
}

func (r *Repo) GetVirtualAccountByWalletID(walletID uint) (*models.VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.accountByWalletID(walletID)
}

func (r *Repo) GetVirtualAccountByNumber(accountNumber string) (*models.VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.accountByNumber(accountNumber)
}

// ExecuteInTransaction holds the lock for the whole unit of work and
// restores a snapshot when fn fails, mirroring a rollback.
func (r *Repo) ExecuteInTransaction(fn func(repositories.WalletRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.st.clone()
	if err := fn(&txView{st: r.st}); err != nil {
		*r.st = *snapshot
		return err
	}
	return nil
}

// txView is the repository handed to a unit of work. The enclosing
// ExecuteInTransaction already holds the lock, so it operates on the
// state directly.
type txView struct {
	st *state
}

func (v *txView) Create(wallet *models.Wallet) error  { return v.st.createWallet(wallet) }
func (v *txView) GetByID(id uint) (*models.Wallet, error) {
	return v.st.walletByID(id)
}
func (v *txView) GetByUserID(userID uint) (*models.Wallet, error) {
	return v.st.walletByUserID(userID)
}
func (v *txView) Update(wallet *models.Wallet) error { return v.st.updateWallet(wallet) }
func (v *txView) UpdateStatus(walletID uint, status, reason string) error {
	return v.st.updateStatus(walletID, status, reason)
}
func (v *txView) DebitBalance(walletID uint, amount int64) (bool, error) {
	return v.st.debitBalance(walletID, amount)
}
func (v *txView) CreditBalance(walletID uint, amount int64) error {
	return v.st.creditBalance(walletID, amount)
}
func (v *txView) CreateTransaction(tx *models.Transaction) error { return v.st.createTxn(tx) }
func (v *txView) UpdateTransaction(tx *models.Transaction) error { return v.st.updateTxn(tx) }
func (v *txView) GetTransactionByReference(reference string) (*models.Transaction, error) {
	return v.st.txnByRef(reference)
}
func (v *txView) GetTransactionByReferenceForUpdate(reference string) (*models.Transaction, error) {
	return v.st.txnByRef(reference)
}
func (v *txView) AnnotateTransaction(id uint, metadata models.JSON) error {
	return v.st.annotateTxn(id, metadata)
}
func (v *txView) GetRecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	return v.st.recentTxns(userID, limit), nil
}
func (v *txView) GetPendingRetryable(ctx context.Context, userID uint, olderThan time.Time) ([]models.Transaction, error) {
	return v.st.pendingRetryable(userID, olderThan), nil
}
func (v *txView) GetDailyDebitTotal(ctx context.Context, walletID uint, start, end time.Time) (int64, error) {
	return v.st.dailyDebitTotal(walletID, start, end), nil
}
func (v *txView) CreateVirtualAccount(account *models.VirtualAccount) error {
	return v.st.createAccount(account)
}
func (v *txView) GetVirtualAccountByWalletID(walletID uint) (*models.VirtualAccount, error) {
	return v.st.accountByWalletID(walletID)
}
func (v *txView) GetVirtualAccountByNumber(accountNumber string) (*models.VirtualAccount, error) {
	return v.st.accountByNumber(accountNumber)
}

// Nested units of work join the enclosing one.
func (v *txView) ExecuteInTransaction(fn func(repositories.WalletRepository) error) error {
	return fn(v)
}

type state struct {
	wallets      map[uint]*models.Wallet
	txns         []*models.Transaction
	accounts     []*models.VirtualAccount
	nextWalletID uint
	nextTxnID    uint
	nextAcctID   uint
}

func newState() *state {
	return &state{wallets: make(map[uint]*models.Wallet)}
}

func (s *state) clone() *state {
	c := &state{
		wallets:      make(map[uint]*models.Wallet, len(s.wallets)),
		nextWalletID: s.nextWalletID,
		nextTxnID:    s.nextTxnID,
		nextAcctID:   s.nextAcctID,
	}
	for id, w := range s.wallets {
		cw := *w
		c.wallets[id] = &cw
	}
	for _, t := range s.txns {
		c.txns = append(c.txns, cloneTxn(t))
	}
	for _, a := range s.accounts {
		ca := *a
		c.accounts = append(c.accounts, &ca)
	}
	return c
}

func cloneTxn(t *models.Transaction) *models.Transaction {
	c := *t
	if t.Metadata != nil {
		c.Metadata = models.JSON{}
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (s *state) createWallet(w *models.Wallet) error {
	if w.ID == 0 {
		s.nextWalletID++
		w.ID = s.nextWalletID
	}
	c := *w
	s.wallets[w.ID] = &c
	return nil
}

func (s *state) walletByID(id uint) (*models.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	c := *w
	return &c, nil
}

func (s *state) walletByUserID(userID uint) (*models.Wallet, error) {
	for _, w := range s.wallets {
		if w.UserID == userID {
			c := *w
			return &c, nil
		}
	}
	return nil, repositories.ErrWalletNotFound
}

func (s *state) updateWallet(w *models.Wallet) error {
	if _, ok := s.wallets[w.ID]; !ok {
		return repositories.ErrWalletNotFound
	}
	c := *w
	s.wallets[w.ID] = &c
	return nil
}

func (s *state) updateStatus(walletID uint, status, reason string) error {
	w, ok := s.wallets[walletID]
	if !ok {
		return repositories.ErrWalletNotFound
	}
	w.Status = status
	w.StatusReason = reason
	return nil
}

func (s *state) debitBalance(walletID uint, amount int64) (bool, error) {
	w, ok := s.wallets[walletID]
	if !ok || w.Status != models.WalletStatusActive || w.Balance < amount {
		return false, nil
	}
	now := time.Now()
	w.Balance -= amount
	w.TotalWithdrawn += amount
	w.TransactionCount++
	w.LastTransactionAt = &now
	return true, nil
}

func (s *state) creditBalance(walletID uint, amount int64) error {
	w, ok := s.wallets[walletID]
	if !ok {
		return repositories.ErrWalletNotFound
	}
	now := time.Now()
	w.Balance += amount
	w.TotalDeposited += amount
	w.TransactionCount++
	w.LastTransactionAt = &now
	return nil
}

func (s *state) createTxn(t *models.Transaction) error {
	for _, existing := range s.txns {
		if existing.Reference == t.Reference {
			return repositories.ErrDuplicateReference
		}
	}
	s.nextTxnID++
	t.ID = s.nextTxnID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.txns = append(s.txns, cloneTxn(t))
	return nil
}

func (s *state) updateTxn(t *models.Transaction) error {
	for i, existing := range s.txns {
		if existing.ID == t.ID {
			t.UpdatedAt = time.Now()
			s.txns[i] = cloneTxn(t)
			return nil
		}
	}
	return repositories.ErrTransactionNotFound
}

func (s *state) txnByRef(reference string) (*models.Transaction, error) {
	for _, t := range s.txns {
		if t.Reference == reference {
			return cloneTxn(t), nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (s *state) annotateTxn(id uint, metadata models.JSON) error {
	for _, t := range s.txns {
		if t.ID == id {
			if t.Metadata == nil {
				t.Metadata = models.JSON{}
			}
			for k, v := range metadata {
				t.Metadata[k] = v
			}
			return nil
		}
	}
	return repositories.ErrTransactionNotFound
}

func (s *state) recentTxns(userID uint, limit int) []models.Transaction {
	var out []models.Transaction
	for i := len(s.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txns[i].UserID == userID {
			out = append(out, *cloneTxn(s.txns[i]))
		}
	}
	return out
}

func (s *state) pendingRetryable(userID uint, olderThan time.Time) []models.Transaction {
	var out []models.Transaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.UserID == userID &&
			t.Status == models.TransactionStatusPending &&
			t.Kind == models.TransactionKindCredit &&
			t.CreatedAt.Before(olderThan) {
			out = append(out, *cloneTxn(t))
		}
	}
	return out
}

func (s *state) dailyDebitTotal(walletID uint, start, end time.Time) int64 {
	var total int64
	for _, t := range s.txns {
		if t.WalletID == walletID &&
			t.Kind == models.TransactionKindDebit &&
			t.Status == models.TransactionStatusCompleted &&
			!t.CreatedAt.Before(start) && t.CreatedAt.Before(end) {
			total += t.Amount
		}
	}
	return total
}

func (s *state) createAccount(a *models.VirtualAccount) error {
	s.nextAcctID++
	a.ID = s.nextAcctID
	c := *a
	s.accounts = append(s.accounts, &c)
	return nil
}

func (s *state) accountByWalletID(walletID uint) (*models.VirtualAccount, error) {
	for _, a := range s.accounts {
		if a.WalletID == walletID {
			c := *a
			return &c, nil
		}
	}
	return nil, repositories.ErrVirtualAccountNotFound
}

func (s *state) accountByNumber(accountNumber string) (*models.VirtualAccount, error) {
	for _, a := range s.accounts {
		if a.AccountNumber == accountNumber {
			c := *a
			return &c, nil
		}
	}
	return nil, repositories.ErrVirtualAccountNotFound
}
