// Package validation checks request shapes before they reach the
// services. The services revalidate what matters for money movement; this
// layer exists to fail bad input early with a clear message.
package validation

import (
	"errors"
	"strings"
)

const maxReferenceLength = 100

var (
	ErrAmountNotPositive = errors.New("amount must be greater than 0")
	ErrReferenceMissing  = errors.New("reference is required")
	ErrReferenceTooLong  = errors.New("reference is too long")
)

func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrAmountNotPositive
	}
	return nil
}

func ValidateReference(reference string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ErrReferenceMissing
	}
	if len(reference) > maxReferenceLength {
		return ErrReferenceTooLong
	}
	return nil
}
