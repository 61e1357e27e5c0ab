package ledger

const (
	DefaultCurrency = "NGN"

	// ReversalReferencePrefix derives a compensating credit's reference
	// from the original debit's, so replayed failure webhooks collapse
	// onto one reversal row.
	ReversalReferencePrefix = "rev-"
)
