package handlers

import (
	"errors"

	"peza/internal/services/funding"
	"peza/internal/services/ledger"
	"peza/internal/utils/response"
	"peza/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type FundingHandler struct {
	fundingService funding.Service
}

func NewFundingHandler(fundingService funding.Service) *FundingHandler {
	return &FundingHandler{fundingService: fundingService}
}

// Fund starts a funding attempt and returns either virtual account
// details or a checkout link, plus the reference the client polls with.
func (h *FundingHandler) Fund(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Amount        int64  `json:"amount"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.ValidateAmount(input.Amount); err != nil {
		return response.BadRequest(c, err.Error())
	}

	intent, err := h.fundingService.StartFunding(c.Context(), claims.UserID, input.Amount, input.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, funding.ErrInvalidAmount), errors.Is(err, funding.ErrUnsupportedMethod):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			return response.NotFound(c, "Wallet not found")
		case errors.Is(err, ledger.ErrWalletInactive):
			return response.BadRequest(c, "Wallet is not active")
		default:
			return response.ServerError(c, "Failed to start funding")
		}
	}

	return response.Success(c, "Funding started", intent)
}

// VerifyFunding re-runs payment verification for a reference with a fresh
// attempt budget. Duplicate settlement is impossible; at worst the caller
// learns the transaction already completed.
func (h *FundingHandler) VerifyFunding(c *fiber.Ctx) error {
	if _, err := extractUserClaims(c); err != nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Reference string `json:"reference"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.ValidateReference(input.Reference); err != nil {
		return response.BadRequest(c, err.Error())
	}

	txn, err := h.fundingService.Verify(c.Context(), input.Reference)
	if err != nil {
		switch {
		case errors.Is(err, funding.ErrVerificationInProgress):
			return response.Conflict(c, "Verification already in progress")
		case errors.Is(err, funding.ErrPaymentFailed):
			return response.BadRequest(c, "Payment failed at processor")
		case errors.Is(err, funding.ErrVerificationExhausted):
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"message":   "Verification attempts exhausted, transaction still pending",
				"reference": input.Reference,
			})
		case errors.Is(err, ledger.ErrTransactionNotFound):
			return response.NotFound(c, "Transaction not found")
		default:
			return response.ServerError(c, "Verification failed")
		}
	}

	return response.Success(c, "Payment verified", txn)
}

// PendingRetries lists the caller's funding transactions eligible for a
// manual verification retry.
func (h *FundingHandler) PendingRetries(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	txs, err := h.fundingService.PendingRetries(c.Context(), claims.UserID)
	if err != nil {
		return response.ServerError(c, "Failed to list pending transactions")
	}

	return response.Success(c, "Pending transactions", txs)
}
