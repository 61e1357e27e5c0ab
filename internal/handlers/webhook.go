package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"peza/internal/processor"
	"peza/internal/services/ledger"
	"peza/internal/services/webhook"
	"peza/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// signatureHeader carries the processor's HMAC of the raw body.
const signatureHeader = "verif-hash"

type WebhookHandler struct {
	dispatcher *webhook.Dispatcher
	verifier   processor.EventVerifier
}

func NewWebhookHandler(dispatcher *webhook.Dispatcher, verifier processor.EventVerifier) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		verifier:   verifier,
	}
}

// HandleEvent receives processor webhooks. Processed and intentionally
// ignored events are acknowledged with 2xx; authentication failures and
// internal failures return an error status so the processor's
// at-least-once delivery retries them.
func (h *WebhookHandler) HandleEvent(c *fiber.Ctx) error {
	body := c.Body()
	if !h.verifier.Verify(body, c.Get(signatureHeader)) {
		return response.Unauthorized(c)
	}

	var evt webhook.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return response.BadRequest(c, "Invalid event payload")
	}

	result, err := h.dispatcher.Dispatch(c.Context(), evt)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) || errors.Is(err, ledger.ErrTransactionNotFound) {
			// Error status on purpose: the processor redelivers, which is
			// the only retry path an unmatched event has.
			return response.NotFound(c, "No wallet for event")
		}
		log.Printf("webhook dispatch failed for %s: %v", evt.Event, err)
		return response.ServerError(c, "Failed to process event")
	}

	return response.Success(c, "Event "+result.Outcome, fiber.Map{
		"event":   evt.Event,
		"outcome": result.Outcome,
	})
}
