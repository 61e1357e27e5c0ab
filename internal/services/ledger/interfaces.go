package ledger

import (
	"context"

	"peza/internal/models"
)

// Service applies credits and debits to wallet balances exactly once.
type Service interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	CreateWallet(ctx context.Context, userID uint, currency string) (*models.Wallet, error)
	Debit(ctx context.Context, req DebitRequest) (*models.Transaction, error)
	Credit(ctx context.Context, req CreditRequest) (*models.Transaction, error)
	Reverse(ctx context.Context, req ReversalRequest) (*models.Transaction, error)
	RecentTransactions(ctx context.Context, userID uint, limit int) ([]models.Transaction, error)
}

// WalletCache is the read-through cache the service invalidates after each
// committed balance change.
type WalletCache interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	CacheWallet(ctx context.Context, wallet *models.Wallet) error
	InvalidateWallet(ctx context.Context, userID uint) error
}

// MetricsCollector receives operational measurements.
type MetricsCollector interface {
	RecordTransaction(kind string, amount int64)
	RecordConflict(op string)
	RecordError(op, reason string)
	RecordWebhookEvent(event, outcome string)
	RecordVerificationAttempt(outcome string)
}

// EventEmitter hands committed ledger events to the notification
// collaborator.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}
