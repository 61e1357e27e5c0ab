package models

import (
	"time"
)

// Transaction kinds
const (
	TransactionKindCredit   = "credit"
	TransactionKindDebit    = "debit"
	TransactionKindTransfer = "transfer"
	TransactionKindRefund   = "refund"
)

// Transaction statuses. A transaction starts pending and moves to exactly
// one terminal status; terminal rows are never reopened, compensation uses
// a new row.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Transaction categories
const (
	CategoryFunding      = "funding"
	CategoryPurchase     = "purchase"
	CategoryReversal     = "reversal"
	CategorySubscription = "subscription"
)

// Transaction is one ledger entry. Reference carries the uniqueness
// constraint that backs the idempotency guard: at most one row may ever
// exist per reference.
type Transaction struct {
	ID                uint   `gorm:"primarykey" json:"id"`
	WalletID          uint   `gorm:"index;not null" json:"wallet_id"`
	UserID            uint   `gorm:"index:idx_transactions_user_created;not null" json:"user_id"`
	Amount            int64  `gorm:"not null" json:"amount"`
	Kind              string `gorm:"index;not null" json:"kind"`
	Category          string `gorm:"default:''" json:"category"`
	Status            string `gorm:"index;not null;default:'pending'" json:"status"`
	Reference         string `gorm:"uniqueIndex;not null" json:"reference"`
	ExternalReference string `gorm:"default:''" json:"external_reference,omitempty"`
	BalanceBefore     int64  `json:"balance_before"`
	BalanceAfter      int64  `json:"balance_after"`
	Description       string `json:"description"`
	Metadata          JSON   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time `gorm:"index:idx_transactions_user_created" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsTerminal reports whether the transaction has reached a final status.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}
