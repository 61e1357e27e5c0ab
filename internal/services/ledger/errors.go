package ledger

import "errors"

// Service errors
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is not active")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidReference    = errors.New("reference is required")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrLimitExceeded       = errors.New("transaction limit exceeded")
	ErrDailyLimitExceeded  = errors.New("daily limit exceeded")
	ErrInvalidReversal     = errors.New("transaction cannot be reversed")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateReference reports that the reference was already
	// consumed. It is success-adjacent: the caller gets the existing row
	// and must not surface it as a processing failure.
	ErrDuplicateReference = errors.New("duplicate reference")
)
