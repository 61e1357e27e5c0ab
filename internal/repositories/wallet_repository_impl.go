package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peza/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(wallet *models.Wallet) error {
	if err := r.db.Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByID(id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserID(userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(wallet *models.Wallet) error {
	if err := r.db.Save(wallet).Error; err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) UpdateStatus(walletID uint, status, reason string) error {
	result := r.db.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{"status": status, "status_reason": reason})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// DebitBalance is the compare-and-swap half of the overdraft guard: the
// balance condition lives in the UPDATE itself, so two concurrent debits
// against an under-funded wallet cannot both match.
func (r *walletRepository) DebitBalance(walletID uint, amount int64) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.Wallet{}).
		Where("id = ? AND status = ? AND balance >= ?", walletID, models.WalletStatusActive, amount).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance - ?", amount),
			"total_withdrawn":     gorm.Expr("total_withdrawn + ?", amount),
			"transaction_count":   gorm.Expr("transaction_count + 1"),
			"last_transaction_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit balance: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *walletRepository) CreditBalance(walletID uint, amount int64) error {
	now := time.Now()
	result := r.db.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance + ?", amount),
			"total_deposited":     gorm.Expr("total_deposited + ?", amount),
			"transaction_count":   gorm.Expr("transaction_count + 1"),
			"last_transaction_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// CreateTransaction doubles as the idempotency guard reservation. The
// unique index on reference turns a replayed insert into
// ErrDuplicateReference instead of a second row.
func (r *walletRepository) CreateTransaction(tx *models.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) UpdateTransaction(tx *models.Transaction) error {
	if err := r.db.Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) GetTransactionByReference(reference string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *walletRepository) GetTransactionByReferenceForUpdate(reference string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return &tx, nil
}

// AnnotateTransaction merges metadata into a row without touching its
// status. Terminal rows stay immutable apart from these annotations.
func (r *walletRepository) AnnotateTransaction(id uint, metadata models.JSON) error {
	var tx models.Transaction
	if err := r.db.First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx.Metadata == nil {
		tx.Metadata = models.JSON{}
	}
	for k, v := range metadata {
		tx.Metadata[k] = v
	}
	if err := r.db.Model(&tx).Update("metadata", tx.Metadata).Error; err != nil {
		return fmt.Errorf("failed to annotate transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) GetRecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent transactions: %w", err)
	}
	return txs, nil
}

func (r *walletRepository) GetPendingRetryable(ctx context.Context, userID uint, olderThan time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND kind = ? AND created_at < ?",
			userID, models.TransactionStatusPending, models.TransactionKindCredit, olderThan).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	return txs, nil
}

func (r *walletRepository) GetDailyDebitTotal(ctx context.Context, walletID uint, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("wallet_id = ? AND kind = ? AND status = ? AND created_at BETWEEN ? AND ?",
			walletID, models.TransactionKindDebit, models.TransactionStatusCompleted, start, end).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get daily debit total: %w", err)
	}
	return total, nil
}

func (r *walletRepository) CreateVirtualAccount(account *models.VirtualAccount) error {
	if err := r.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create virtual account: %w", err)
	}
	return nil
}

func (r *walletRepository) GetVirtualAccountByWalletID(walletID uint) (*models.VirtualAccount, error) {
	var account models.VirtualAccount
	if err := r.db.Where("wallet_id = ?", walletID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVirtualAccountNotFound
		}
		return nil, fmt.Errorf("failed to get virtual account: %w", err)
	}
	return &account, nil
}

func (r *walletRepository) GetVirtualAccountByNumber(accountNumber string) (*models.VirtualAccount, error) {
	var account models.VirtualAccount
	if err := r.db.Where("account_number = ?", accountNumber).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVirtualAccountNotFound
		}
		return nil, fmt.Errorf("failed to get virtual account: %w", err)
	}
	return &account, nil
}

func (r *walletRepository) ExecuteInTransaction(fn func(WalletRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&walletRepository{db: tx})
	})
}
