package repositories

import (
	"context"
	"time"

	"peza/internal/models"
)

// WalletRepository is the data access surface for wallets, transactions and
// virtual accounts. Implementations must enforce the Transaction.Reference
// uniqueness constraint at the storage layer and expose balance mutation as
// a compare-and-swap so concurrent debits cannot overdraw a wallet.
type WalletRepository interface {
	Create(wallet *models.Wallet) error
	GetByID(id uint) (*models.Wallet, error)
	GetByUserID(userID uint) (*models.Wallet, error)
	Update(wallet *models.Wallet) error
	UpdateStatus(walletID uint, status, reason string) error

	// DebitBalance decrements the balance only if the wallet is active and
	// holds at least amount. Returns false when no row matched.
	DebitBalance(walletID uint, amount int64) (bool, error)
	// CreditBalance increments the balance unconditionally. Status checks
	// belong to the caller; a compensating reversal must land even on a
	// wallet that has since been frozen.
	CreditBalance(walletID uint, amount int64) error

	CreateTransaction(tx *models.Transaction) error
	UpdateTransaction(tx *models.Transaction) error
	GetTransactionByReference(reference string) (*models.Transaction, error)
	// GetTransactionByReferenceForUpdate locks the row until the enclosing
	// unit of work commits.
	GetTransactionByReferenceForUpdate(reference string) (*models.Transaction, error)
	AnnotateTransaction(id uint, metadata models.JSON) error
	GetRecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error)
	GetPendingRetryable(ctx context.Context, userID uint, olderThan time.Time) ([]models.Transaction, error)
	GetDailyDebitTotal(ctx context.Context, walletID uint, start, end time.Time) (int64, error)

	CreateVirtualAccount(account *models.VirtualAccount) error
	GetVirtualAccountByWalletID(walletID uint) (*models.VirtualAccount, error)
	GetVirtualAccountByNumber(accountNumber string) (*models.VirtualAccount, error)

	// ExecuteInTransaction runs fn inside one storage transaction. The
	// repository passed to fn is scoped to that transaction; any error
	// rolls the whole unit of work back.
	ExecuteInTransaction(fn func(WalletRepository) error) error
}
