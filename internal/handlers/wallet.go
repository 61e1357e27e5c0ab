package handlers

import (
	"errors"

	"peza/internal/models"
	"peza/internal/services/ledger"
	"peza/internal/utils/response"
	"peza/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const recentTransactionCount = 10

type WalletHandler struct {
	ledgerService ledger.Service
}

func NewWalletHandler(ledgerService ledger.Service) *WalletHandler {
	return &WalletHandler{ledgerService: ledgerService}
}

// extractUserClaims is a helper function to reduce duplication
func extractUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok || claims == nil {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

// GetWallet returns the balance and the most recent transactions.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	wallet, err := h.ledgerService.GetWallet(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return response.NotFound(c, "Wallet not found")
		}
		return response.ServerError(c, "Failed to get wallet")
	}

	txs, err := h.ledgerService.RecentTransactions(c.Context(), claims.UserID, recentTransactionCount)
	if err != nil {
		return response.ServerError(c, "Failed to get transactions")
	}

	return response.Success(c, "Wallet retrieved", fiber.Map{
		"wallet_id":    wallet.ID,
		"balance":      wallet.Balance,
		"currency":     wallet.Currency,
		"status":       wallet.Status,
		"transactions": txs,
	})
}

// Spend debits the wallet for a scheduled purchase. The caller supplies
// the reference; a reused one gets 409 without touching the balance.
func (h *WalletHandler) Spend(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Reference   string `json:"reference"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := validation.ValidateAmount(input.Amount); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := validation.ValidateReference(input.Reference); err != nil {
		return response.BadRequest(c, err.Error())
	}

	txn, err := h.ledgerService.Debit(c.Context(), ledger.DebitRequest{
		UserID:      claims.UserID,
		Amount:      input.Amount,
		Category:    input.Category,
		Description: input.Description,
		Reference:   input.Reference,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateReference):
			return response.Conflict(c, "Reference already used")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return response.BadRequest(c, "Insufficient balance")
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrLimitExceeded), errors.Is(err, ledger.ErrDailyLimitExceeded):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			return response.NotFound(c, "Wallet not found")
		case errors.Is(err, ledger.ErrWalletInactive):
			return response.BadRequest(c, "Wallet is not active")
		default:
			return response.ServerError(c, "Failed to process debit")
		}
	}

	return response.Success(c, "Debit successful", fiber.Map{
		"new_balance": txn.BalanceAfter,
		"transaction": txn,
	})
}
