package notification

import (
	"context"
	"log"

	"peza/internal/services/ledger"
)

// Service consumes ledger events on behalf of the notification
// collaborator. Delivery and content live outside this system; this
// implementation records the event and moves on.
type Service struct{}

// NewService creates a new notification service.
func NewService() *Service { return &Service{} }

// Emit implements ledger.EventEmitter.
func (s *Service) Emit(ctx context.Context, event ledger.Event) {
	log.Printf("ledger event %s for user %d: %s %d (%s)",
		event.Type, event.UserID, event.Transaction.Kind,
		event.Transaction.Amount, event.Transaction.Reference)
}
