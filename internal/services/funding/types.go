package funding

import (
	"time"

	"peza/internal/models"
)

// FundingIntent is the answer to a start-funding request: either
// ready-to-use virtual account details or a checkout link, plus the
// reference/transaction pair the client polls with.
type FundingIntent struct {
	Reference      string                 `json:"reference"`
	TransactionID  uint                   `json:"transaction_id"`
	PaymentMethod  string                 `json:"payment_method"`
	CheckoutLink   string                 `json:"checkout_link,omitempty"`
	VirtualAccount *models.VirtualAccount `json:"virtual_account,omitempty"`
}

// VerifierConfig bounds the reconciliation loop. CallTimeout applies to
// each processor call independently of the backoff delays.
type VerifierConfig struct {
	MaxAttempts    int
	Delays         []time.Duration
	CallTimeout    time.Duration
	RetryThreshold time.Duration
}

// DefaultVerifierConfig mirrors the reference behavior: three attempts
// with escalating delays.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		MaxAttempts:    3,
		Delays:         []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		CallTimeout:    10 * time.Second,
		RetryThreshold: 5 * time.Minute,
	}
}
