package ledger

import (
	"peza/internal/models"
)

// LedgerConfig carries service-level defaults.
type LedgerConfig struct {
	DefaultCurrency string
}

// DebitRequest is a spend against a wallet. Reference is the caller's
// idempotency key and is required.
type DebitRequest struct {
	UserID      uint
	Amount      int64
	Category    string
	Description string
	Reference   string
	Metadata    models.JSON
}

// CreditRequest funds a wallet. One of WalletID, UserID or AccountNumber
// resolves the target; when none is set the wallet comes from the
// transaction already recorded under Reference. Reference dedups
// at-least-once delivery.
type CreditRequest struct {
	WalletID          uint
	UserID            uint
	AccountNumber     string
	Amount            int64
	Category          string
	Description       string
	Reference         string
	ExternalReference string
	Metadata          models.JSON
}

// ReversalRequest compensates a processor-failed debit identified by its
// reference.
type ReversalRequest struct {
	Reference         string
	ExternalReference string
	Reason            string
}

// Event is emitted after a committed balance change for the notification
// collaborator.
type Event struct {
	Type        string
	UserID      uint
	Transaction *models.Transaction
}
