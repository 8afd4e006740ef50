package service

import (
	"context"
	"fmt"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/messaging"
	"taquilla/internal/models"
	"taquilla/internal/repository"
)

type Services struct {
	Checkout    *CheckoutService
	Fulfillment *FulfillmentEngine
	Webhooks    *WebhookReconciler
	Status      *StatusProjector
	Tickets     *TicketService
}

func NewServices(repos *repository.Repositories, gateway PaymentGateway, guard RequestGuard, ledger EventLedger, publisher messaging.Publisher) *Services {
	engine := NewFulfillmentEngine(gateway, repos.Tickets, publisher)

	return &Services{
		Checkout:    NewCheckoutService(gateway, repos.Events, repos.Users, guard, publisher),
		Fulfillment: engine,
		Webhooks:    NewWebhookReconciler(gateway, engine, ledger, publisher),
		Status:      NewStatusProjector(gateway, repos.Tickets),
		Tickets:     NewTicketService(repos.Tickets),
	}
}

type TicketService struct {
	tickets TicketStore
}

func NewTicketService(tickets TicketStore) *TicketService {
	return &TicketService{tickets: tickets}
}

// ListForUser returns the user's active tickets.
func (s *TicketService) ListForUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	tickets, err := s.tickets.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tickets: %v", apperrors.ErrPersistence, err)
	}
	return tickets, nil
}
