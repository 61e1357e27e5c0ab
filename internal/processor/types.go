package processor

// Payment methods accepted by the funding flow.
const (
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodCheckout     = "checkout"
)

// Verification statuses reported by the gateway.
const (
	StatusSuccessful = "successful"
	StatusPending    = "pending"
	StatusFailed     = "failed"
)

type CheckoutRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"tx_ref"`
	RedirectURL string `json:"redirect_url"`
	CustomerID  uint   `json:"customer_id"`
}

type CheckoutResponse struct {
	CheckoutLink string `json:"link"`
	Reference    string `json:"tx_ref"`
}

type VirtualAccountRequest struct {
	Currency   string `json:"currency"`
	CustomerID uint   `json:"customer_id"`
	Reference  string `json:"tx_ref"`
}

type VirtualAccountResponse struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	Provider      string `json:"provider"`
}

// VerificationResult is the gateway's answer for one reference.
type VerificationResult struct {
	Reference         string `json:"tx_ref"`
	ExternalReference string `json:"id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
}

// Successful reports whether the payment settled at the gateway.
func (r *VerificationResult) Successful() bool {
	return r.Status == StatusSuccessful
}
