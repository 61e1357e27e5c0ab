package funding

import "errors"

// Service errors
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrPaymentFailed     = errors.New("payment failed at processor")

	// ErrVerificationInProgress means another loop already owns this
	// reference; the caller should poll instead of stacking retries.
	ErrVerificationInProgress = errors.New("verification already in progress")

	// ErrVerificationTimeout marks a single processor call that exceeded
	// its deadline. It counts as one failed attempt, never a hang.
	ErrVerificationTimeout = errors.New("verification call timed out")

	// ErrVerificationExhausted is returned when the attempt budget runs
	// out. The transaction stays pending and joins the manual-retry set.
	ErrVerificationExhausted = errors.New("verification attempts exhausted")
)
