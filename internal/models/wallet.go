package models

import (
	"time"
)

// Wallet statuses
const (
	WalletStatusActive    = "active"
	WalletStatusSuspended = "suspended"
	WalletStatusFrozen    = "frozen"
	WalletStatusClosed    = "closed"
)

// Wallet holds a single user's balance in integer minor units.
// The balance is mutated only by the ledger service; every mutation
// happens inside a database transaction together with the Transaction
// row that records it.
type Wallet struct {
	ID                   uint   `gorm:"primarykey" json:"id"`
	UserID               uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance              int64  `gorm:"not null;default:0" json:"balance"`
	Currency             string `gorm:"not null;default:'NGN'" json:"currency"`
	Status               string `gorm:"not null;default:'active'" json:"status"`
	StatusReason         string `gorm:"default:''" json:"status_reason,omitempty"`
	MaxTransactionAmount int64  `gorm:"default:0" json:"max_transaction_amount"`
	DailyLimit           int64  `gorm:"default:0" json:"daily_limit"`
	TotalDeposited       int64  `gorm:"default:0" json:"total_deposited"`
	TotalWithdrawn       int64  `gorm:"default:0" json:"total_withdrawn"`
	TransactionCount     int64  `gorm:"default:0" json:"transaction_count"`
	LastTransactionAt    *time.Time `json:"last_transaction_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsActive reports whether the wallet may move funds.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
