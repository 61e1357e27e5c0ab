package repositories

import "errors"

// Storage errors
var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrVirtualAccountNotFound = errors.New("virtual account not found")

	// ErrDuplicateReference is returned when an insert trips the unique
	// index on Transaction.Reference. It is the storage-level half of the
	// idempotency guard; callers treat it as "already processed or in
	// flight", not as a failure.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)
