// Package webhook classifies authenticated processor events and routes
// them into the ledger. Authenticity is decided before dispatch; this
// package only decides what an event means for the ledger, if anything.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"

	"peza/internal/models"
	"peza/internal/services/ledger"
)

// Event types delivered by the processor.
const (
	EventChargeCompleted   = "charge.completed"
	EventTransferCompleted = "transfer.completed"
	EventAccountCredit     = "virtualaccount.credit"
)

// Delivery statuses carried in event data.
const (
	statusSuccessful = "successful"
	statusFailed     = "failed"
)

// Outcomes of a dispatch. Everything except an error is acknowledged with
// 2xx so the processor stops redelivering.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// AccountCreditReferencePrefix derives a deterministic reference from the
// processor's event id, so a replayed account-credit event maps onto the
// same ledger row.
const AccountCreditReferencePrefix = "va-"

// Event is the inbound processor payload, already authenticated.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	ID            int64  `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	TxRef         string `json:"tx_ref"`
	FlwRef        string `json:"flw_ref"`
	AccountNumber string `json:"account_number"`
	Narration     string `json:"narration"`
}

// Result reports what a dispatch did.
type Result struct {
	Outcome     string
	Transaction *models.Transaction
}

// Dispatcher routes events to the credit processor or the compensating
// reversal path.
type Dispatcher struct {
	ledger  ledger.Service
	metrics ledger.MetricsCollector
}

func NewDispatcher(ledgerSvc ledger.Service, metrics ledger.MetricsCollector) *Dispatcher {
	if ledgerSvc == nil {
		panic("ledger service is required")
	}
	if metrics == nil {
		metrics = &ledger.NoopMetricsCollector{}
	}
	return &Dispatcher{ledger: ledgerSvc, metrics: metrics}
}

// Dispatch classifies one event. A nil error means the event must be
// acknowledged; an error means the processor should redeliver (unknown
// wallet, storage failure).
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (*Result, error) {
	switch evt.Event {
	case EventChargeCompleted:
		return d.handleCharge(ctx, evt)
	case EventTransferCompleted:
		return d.handleTransfer(ctx, evt)
	case EventAccountCredit:
		return d.handleAccountCredit(ctx, evt)
	default:
		// Acknowledged so the processor does not retry an event type we
		// will never handle.
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

// handleCharge settles a processor-confirmed funding charge against the
// pending transaction created at start-funding time.
func (d *Dispatcher) handleCharge(ctx context.Context, evt Event) (*Result, error) {
	if evt.Data.Status != statusSuccessful {
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if evt.Data.TxRef == "" {
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	txn, err := d.ledger.Credit(ctx, ledger.CreditRequest{
		Reference:         evt.Data.TxRef,
		Amount:            evt.Data.Amount,
		Category:          models.CategoryFunding,
		ExternalReference: externalRef(evt.Data),
		Description:       "Wallet funding confirmed by processor",
	})
	return d.creditResult(evt.Event, txn, err)
}

// handleTransfer reacts to payout outcomes. A processor-side failure
// reverses the originating debit with a compensating credit; success needs
// no ledger work because the debit settled when it was made.
func (d *Dispatcher) handleTransfer(ctx context.Context, evt Event) (*Result, error) {
	if evt.Data.Status != statusFailed {
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	comp, err := d.ledger.Reverse(ctx, ledger.ReversalRequest{
		Reference:         evt.Data.TxRef,
		ExternalReference: externalRef(evt.Data),
		Reason:            "transfer failed at processor",
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			d.metrics.RecordWebhookEvent(evt.Event, OutcomeDuplicate)
			return &Result{Outcome: OutcomeDuplicate}, nil
		}
		d.metrics.RecordWebhookEvent(evt.Event, "error")
		return nil, err
	}
	d.metrics.RecordWebhookEvent(evt.Event, OutcomeProcessed)
	return &Result{Outcome: OutcomeProcessed, Transaction: comp}, nil
}

// handleAccountCredit books an inbound bank transfer to a processor-issued
// virtual account. The wallet resolves by account number; the reference
// derives from the event id so redelivery is a no-op.
func (d *Dispatcher) handleAccountCredit(ctx context.Context, evt Event) (*Result, error) {
	if evt.Data.Status != statusSuccessful {
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if evt.Data.AccountNumber == "" {
		d.metrics.RecordWebhookEvent(evt.Event, OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	txn, err := d.ledger.Credit(ctx, ledger.CreditRequest{
		AccountNumber:     evt.Data.AccountNumber,
		Amount:            evt.Data.Amount,
		Category:          models.CategoryFunding,
		Reference:         fmt.Sprintf("%s%d", AccountCreditReferencePrefix, evt.Data.ID),
		ExternalReference: externalRef(evt.Data),
		Description:       "Inbound transfer to virtual account",
	})
	return d.creditResult(evt.Event, txn, err)
}

func (d *Dispatcher) creditResult(event string, txn *models.Transaction, err error) (*Result, error) {
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// At-least-once delivery doing its thing.
			d.metrics.RecordWebhookEvent(event, OutcomeDuplicate)
			return &Result{Outcome: OutcomeDuplicate, Transaction: txn}, nil
		}
		if errors.Is(err, ledger.ErrWalletNotFound) {
			log.Printf("webhook %s: no wallet for event", event)
		}
		d.metrics.RecordWebhookEvent(event, "error")
		return nil, err
	}
	d.metrics.RecordWebhookEvent(event, OutcomeProcessed)
	return &Result{Outcome: OutcomeProcessed, Transaction: txn}, nil
}

func externalRef(data EventData) string {
	if data.FlwRef != "" {
		return data.FlwRef
	}
	if data.ID != 0 {
		return fmt.Sprintf("%d", data.ID)
	}
	return ""
}
